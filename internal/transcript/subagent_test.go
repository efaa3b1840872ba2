package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSubagentsSyncNestedCalls(t *testing.T) {
	nested := assistantEntry(t, "n1", "", "2026-01-01T10:00:02Z", toolUseBlock("nt1", "Read"), toolUseBlock("nt2", "Grep"))
	nested.ParentToolUseID = "t1"
	nested.AgentID = "agent-sync"
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", toolUseBlock("t1", TaskToolName)),
		nested,
		resultEntry(t, "r1", "a1", "nt1", "read ok", "2026-01-01T10:00:03Z", false),
		resultEntry(t, "r2", "r1", "t1", "task summary", "2026-01-01T10:00:04Z", false),
	}

	idx := BuildIndex(entries)
	messages := MergeTurns(entries, idx)
	LinkSubagents(messages, entries, idx, nil)

	tc := messages[0].ToolCall("t1")
	require.NotNil(t, tc)
	sub := tc.Subagent
	require.NotNil(t, sub)
	assert.Equal(t, SubagentSync, sub.Mode)
	assert.Equal(t, "t1", sub.ID)
	assert.Equal(t, "task summary", sub.Result)
	require.Len(t, sub.ToolCalls, 2)
	assert.Equal(t, "read ok", sub.ToolCalls[0].Result)
	assert.Equal(t, ToolCompleted, sub.ToolCalls[0].Status)
}

func TestLinkSubagentsAsyncNotificationPrecedence(t *testing.T) {
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", toolUseBlock("t1", TaskToolName)),
	}
	carrier := resultEntry(t, "r1", "a1", "t1", "short summary", "2026-01-01T10:00:01Z", false)
	carrier.ToolUseResult = []byte(`{"agentId":"bg-1"}`)
	entries = append(entries, carrier)
	entries = append(entries, RawEntry{
		Kind:      KindQueueOp,
		Operation: "enqueue",
		Content:   "<task-id>bg-1</task-id><status>completed</status><result>the full background report</result>",
	})

	idx := BuildIndex(entries)
	messages := MergeTurns(entries, idx)
	LinkSubagents(messages, entries, idx, nil)

	sub := messages[0].ToolCall("t1").Subagent
	require.NotNil(t, sub)
	assert.Equal(t, SubagentAsync, sub.Mode)
	assert.Equal(t, "bg-1", sub.AgentID)
	assert.Equal(t, "the full background report", sub.Result)
	assert.Equal(t, ToolCompleted, sub.Status)
	assert.Equal(t, AsyncCompleted, sub.AsyncStatus)
}

func TestLinkSubagentsAsyncWithoutNoticeStaysPending(t *testing.T) {
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", toolUseBlock("t1", TaskToolName)),
	}
	carrier := resultEntry(t, "r1", "a1", "t1", "launched", "2026-01-01T10:00:01Z", false)
	carrier.ToolUseResult = []byte(`{"agentId":"bg-2"}`)
	entries = append(entries, carrier)

	idx := BuildIndex(entries)
	messages := MergeTurns(entries, idx)
	LinkSubagents(messages, entries, idx, nil)

	sub := messages[0].ToolCall("t1").Subagent
	require.NotNil(t, sub)
	assert.Equal(t, AsyncPending, sub.AsyncStatus)
	assert.Equal(t, "launched", sub.Result)
}

func TestLinkSubagentsBackgroundFlagWithoutPayloadIsOrphaned(t *testing.T) {
	block := toolUseBlock("t1", TaskToolName)
	block.Input = []byte(`{"run_in_background":true}`)
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", block),
	}

	idx := BuildIndex(entries)
	messages := MergeTurns(entries, idx)
	LinkSubagents(messages, entries, idx, nil)

	sub := messages[0].ToolCall("t1").Subagent
	require.NotNil(t, sub)
	assert.Equal(t, SubagentAsync, sub.Mode)
	assert.Equal(t, AsyncOrphaned, sub.AsyncStatus)
}

func TestLinkSubagentsNonTaskToolHasNoSubagent(t *testing.T) {
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", toolUseBlock("t1", "Bash")),
	}

	idx := BuildIndex(entries)
	messages := MergeTurns(entries, idx)
	LinkSubagents(messages, entries, idx, nil)

	assert.Nil(t, messages[0].ToolCall("t1").Subagent)
}
