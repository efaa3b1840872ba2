package transcript

import (
	"sync"
	"time"
)

// SideLogSource supplies raw side-log bytes for an external agent id. A
// missing side-log must satisfy errors.Is(err, fs.ErrNotExist): the
// background writer may simply not have flushed yet.
type SideLogSource func(agentID string) ([]byte, error)

// Scheduler defers work; AfterFunc returns a cancel function. The host
// environment provides the real timer implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) func()
}

// TimerScheduler schedules on the process clock.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Default retry backoffs: short, longer, longest.
var defaultBackoffs = []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

// Hydrator loads async subagent detail from per-agent side-logs. A side-log
// becomes available only eventually, so a subagent whose status is already
// terminal but whose result has not surfaced is retried a bounded number of
// times before the best-known partial result is left in place.
type Hydrator struct {
	Source    SideLogSource
	Scheduler Scheduler
	Backoffs  []time.Duration
	OnUpdate  func(*SubagentInfo)

	mu      sync.Mutex
	cancels map[*SubagentInfo]func()
	closed  bool
}

// NewHydrator builds a hydrator with the default timer scheduler and
// backoff schedule.
func NewHydrator(source SideLogSource) *Hydrator {
	return &Hydrator{
		Source:    source,
		Scheduler: TimerScheduler{},
		Backoffs:  defaultBackoffs,
	}
}

// HydrateAll issues the first load for each subagent concurrently and waits
// for those first attempts; the side-logs are independent of each other and
// of the rest of the reconstruction. Retries are scheduled, not awaited.
func (h *Hydrator) HydrateAll(subs []*SubagentInfo) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *SubagentInfo) {
			defer wg.Done()
			h.Hydrate(s)
		}(sub)
	}
	wg.Wait()
}

// Hydrate attempts to load the subagent's nested tool calls and final result
// and schedules retries when the result has not surfaced yet.
func (h *Hydrator) Hydrate(sub *SubagentInfo) {
	h.attempt(sub, 0)
}

// Close cancels all scheduled retries. Timers firing after Close are ignored.
func (h *Hydrator) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, cancel := range h.cancels {
		cancel()
	}
	h.cancels = nil
}

func (h *Hydrator) attempt(sub *SubagentInfo, try int) {
	if sub.AgentID == "" || h.Source == nil {
		// No side-log key to poll; a retry could never find anything.
		h.notify(sub)
		return
	}
	done := h.load(sub)
	if done {
		h.notify(sub)
		return
	}
	if !terminal(sub) {
		// Still running as far as anyone knows; nothing to chase.
		h.notify(sub)
		return
	}
	backoffs := h.Backoffs
	if backoffs == nil {
		backoffs = defaultBackoffs
	}
	if try >= len(backoffs) {
		// Give up; the partial result stays in place.
		h.notify(sub)
		return
	}
	h.schedule(sub, backoffs[try], func() { h.attempt(sub, try+1) })
}

// load reads and reconstructs the side-log, updating the subagent in place.
// Returns true when the final result is now known.
func (h *Hydrator) load(sub *SubagentInfo) bool {
	res := ReadLog(ByteSource(func(string) ([]byte, error) { return h.Source(sub.AgentID) }), sub.AgentID)
	if res.Err != "" || len(res.Entries) == 0 {
		return false
	}
	active := ResolveActive(res.Entries, "")
	idx := BuildIndex(active)
	messages := MergeTurns(active, idx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return true
	}
	var calls []*ToolCallInfo
	finalResult := ""
	for _, msg := range messages {
		calls = append(calls, msg.ToolCalls...)
		if msg.Role == KindAssistant && msg.Content != "" {
			finalResult = msg.Content
		}
	}
	if len(calls) > 0 {
		sub.ToolCalls = calls
	}
	if finalResult != "" {
		sub.Result = finalResult
		return true
	}
	return false
}

func (h *Hydrator) schedule(sub *SubagentInfo, d time.Duration, f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.Scheduler == nil {
		return
	}
	if h.cancels == nil {
		h.cancels = make(map[*SubagentInfo]func())
	}
	h.cancels[sub] = h.Scheduler.AfterFunc(d, func() {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		delete(h.cancels, sub)
		h.mu.Unlock()
		f()
	})
}

func (h *Hydrator) notify(sub *SubagentInfo) {
	if h.OnUpdate != nil {
		h.OnUpdate(sub)
	}
}

func terminal(sub *SubagentInfo) bool {
	switch sub.AsyncStatus {
	case AsyncCompleted, AsyncError:
		return true
	}
	return sub.Status == ToolCompleted || sub.Status == ToolError
}
