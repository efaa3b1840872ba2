package transcript

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler collects scheduled callbacks so tests fire them by hand.
type fakeScheduler struct {
	funcs    []func()
	canceled int
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() {
	s.funcs = append(s.funcs, f)
	return func() { s.canceled++ }
}

func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, s.funcs)
	f := s.funcs[0]
	s.funcs = s.funcs[1:]
	f()
}

const sideLog = `{"type":"user","uuid":"su1","message":{"role":"user","content":"investigate"}}
{"type":"assistant","uuid":"sa1","parentUuid":"su1","timestamp":"2026-01-01T10:00:01Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"st1","name":"Grep"}]}}
{"type":"user","uuid":"sr1","parentUuid":"sa1","timestamp":"2026-01-01T10:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"st1","content":"3 matches"}]}}
{"type":"assistant","uuid":"sa2","parentUuid":"sr1","timestamp":"2026-01-01T10:00:03Z","message":{"role":"assistant","content":[{"type":"text","text":"found the race condition"}]}}
`

func TestHydrateRetriesUntilSideLogAppears(t *testing.T) {
	attempts := 0
	source := func(agentID string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, fs.ErrNotExist
		}
		return []byte(sideLog), nil
	}
	sched := &fakeScheduler{}
	h := &Hydrator{Source: source, Scheduler: sched, Backoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}

	sub := &SubagentInfo{
		ID:          "t1",
		Mode:        SubagentAsync,
		AgentID:     "bg-1",
		Status:      ToolCompleted,
		AsyncStatus: AsyncCompleted,
		Result:      "notification summary",
	}
	h.Hydrate(sub)

	// Two retries fire before the side-log materializes.
	require.Len(t, sched.funcs, 1)
	sched.fire(t)
	require.Len(t, sched.funcs, 1)
	sched.fire(t)

	assert.Empty(t, sched.funcs)
	assert.Equal(t, "found the race condition", sub.Result)
	require.Len(t, sub.ToolCalls, 1)
	assert.Equal(t, "Grep", sub.ToolCalls[0].Name)
	assert.Equal(t, "3 matches", sub.ToolCalls[0].Result)
}

func TestHydrateGivesUpAfterBackoffsAndKeepsPartialResult(t *testing.T) {
	source := func(string) ([]byte, error) { return nil, fs.ErrNotExist }
	sched := &fakeScheduler{}
	h := &Hydrator{Source: source, Scheduler: sched, Backoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}

	sub := &SubagentInfo{ID: "t1", Mode: SubagentAsync, AgentID: "bg-1", AsyncStatus: AsyncError, Result: "partial"}
	h.Hydrate(sub)

	for i := 0; i < 3; i++ {
		sched.fire(t)
	}
	assert.Empty(t, sched.funcs)
	assert.Equal(t, "partial", sub.Result)
}

func TestHydrateNonTerminalDoesNotRetry(t *testing.T) {
	source := func(string) ([]byte, error) { return nil, fs.ErrNotExist }
	sched := &fakeScheduler{}
	h := &Hydrator{Source: source, Scheduler: sched, Backoffs: defaultBackoffs}

	sub := &SubagentInfo{ID: "t1", Mode: SubagentAsync, AgentID: "bg-1", Status: ToolRunning, AsyncStatus: AsyncRunning}
	h.Hydrate(sub)

	assert.Empty(t, sched.funcs)
}

func TestHydrateOrphanedWithoutAgentIDDoesNotRetry(t *testing.T) {
	called := false
	source := func(string) ([]byte, error) { called = true; return nil, fs.ErrNotExist }
	sched := &fakeScheduler{}
	h := &Hydrator{Source: source, Scheduler: sched, Backoffs: defaultBackoffs}

	sub := &SubagentInfo{ID: "t1", Mode: SubagentAsync, Status: ToolCompleted, AsyncStatus: AsyncOrphaned}
	h.Hydrate(sub)

	assert.Empty(t, sched.funcs)
	assert.False(t, called)
}

func TestHydrateCloseCancelsScheduledRetries(t *testing.T) {
	source := func(string) ([]byte, error) { return nil, fs.ErrNotExist }
	sched := &fakeScheduler{}
	h := &Hydrator{Source: source, Scheduler: sched, Backoffs: defaultBackoffs}

	sub := &SubagentInfo{ID: "t1", Mode: SubagentAsync, AgentID: "bg-1", AsyncStatus: AsyncCompleted}
	h.Hydrate(sub)
	require.Len(t, sched.funcs, 1)

	h.Close()
	assert.Equal(t, 1, sched.canceled)

	// A timer that fires anyway is ignored after Close.
	sched.fire(t)
	assert.Empty(t, sched.funcs)
}

func TestHydrateNotifiesOnUpdate(t *testing.T) {
	source := func(string) ([]byte, error) { return []byte(sideLog), nil }
	var updated []*SubagentInfo
	h := &Hydrator{
		Source:    source,
		Scheduler: &fakeScheduler{},
		OnUpdate:  func(s *SubagentInfo) { updated = append(updated, s) },
	}

	sub := &SubagentInfo{ID: "t1", Mode: SubagentAsync, AgentID: "bg-1", AsyncStatus: AsyncCompleted}
	h.HydrateAll([]*SubagentInfo{sub})

	require.Len(t, updated, 1)
	assert.Same(t, sub, updated[0])
}
