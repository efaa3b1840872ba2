package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"convlog/internal/transcript"
)

const asyncSessionLog = `{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Task"}]}}
{"type":"user","uuid":"r1","parentUuid":"a1","timestamp":"2026-01-01T10:00:01Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"launched"}]},"toolUseResult":{"agentId":"bg-1"}}
{"type":"queue-operation","operation":"enqueue","content":"<task-id>bg-1</task-id><status>completed</status><result>short summary</result>"}
`

const asyncSideLog = `{"type":"user","uuid":"su1","timestamp":"2026-01-01T10:00:01Z","message":{"role":"user","content":"go"}}
{"type":"assistant","uuid":"sa1","parentUuid":"su1","timestamp":"2026-01-01T10:00:02Z","message":{"role":"assistant","content":[{"type":"text","text":"full background detail"}]}}
`

func writeAsyncSession(t *testing.T, dir, session string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, session+".jsonl"), []byte(asyncSessionLog), 0o644); err != nil {
		t.Fatal(err)
	}
	sideDir := filepath.Join(dir, session, "subagents")
	if err := os.MkdirAll(sideDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sideDir, "agent-bg-1.jsonl"), []byte(asyncSideLog), 0o644); err != nil {
		t.Fatal(err)
	}
}

// The subagent callback may be driven by a consumer that is not running yet
// (the TUI program starts after reconstruction), so OpenConversation must
// never wait on it: hydration results from the first pass arrive in the
// returned conversation, and the callback fires only for later retries.
func TestOpenConversationReturnsBeforeSubagentCallbacks(t *testing.T) {
	dir := t.TempDir()
	writeAsyncSession(t, dir, "sess")

	svc := NewService(Config{TranscriptDir: dir, HydrationRetries: 3}, NewLogger(io.Discard, false))

	type opened struct {
		conv transcript.Conversation
		h    *transcript.Hydrator
	}
	done := make(chan opened, 1)
	go func() {
		conv, h := svc.OpenConversation("sess", "", func(*transcript.SubagentInfo) {
			select {} // a consumer with no event loop yet
		})
		done <- opened{conv, h}
	}()

	select {
	case got := <-done:
		got.h.Close()
		if len(got.conv.Messages) == 0 {
			t.Fatal("no messages reconstructed")
		}
		tc := got.conv.Messages[0].ToolCall("t1")
		if tc == nil || tc.Subagent == nil {
			t.Fatal("subagent not linked")
		}
		if tc.Subagent.Result != "full background detail" {
			t.Errorf("Result = %q, want side-log detail", tc.Subagent.Result)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("OpenConversation did not return: subagent callback blocked reconstruction")
	}
}
