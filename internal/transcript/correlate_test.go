package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexCollectsToolResults(t *testing.T) {
	entries := []RawEntry{
		assistantEntry(t, "a1", "", "2026-01-01T10:00:00Z", toolUseBlock("t1", "Read")),
		resultEntry(t, "r1", "a1", "t1", "file contents", "2026-01-01T10:00:01Z", false),
		resultEntry(t, "r2", "r1", "t2", "boom", "2026-01-01T10:00:02Z", true),
	}

	idx := BuildIndex(entries)
	require.Contains(t, idx.Results, "t1")
	assert.Equal(t, ToolOutcome{Text: "file contents"}, idx.Results["t1"])
	assert.Equal(t, ToolOutcome{Text: "boom", IsError: true}, idx.Results["t2"])
}

func TestBuildIndexSidePayloadNeedsFlag(t *testing.T) {
	flagged := resultEntry(t, "r1", "", "t1", "ok", "2026-01-01T10:00:00Z", false)
	flagged.ToolUseResult = json.RawMessage(`{"agentId":"bg-7"}`)
	bare := resultEntry(t, "r2", "r1", "t2", "ok", "2026-01-01T10:00:01Z", false)

	idx := BuildIndex([]RawEntry{flagged, bare})
	assert.Contains(t, idx.Payloads, "t1")
	assert.NotContains(t, idx.Payloads, "t2")
}

func TestBuildIndexNoticesTolerateMissingTags(t *testing.T) {
	entries := []RawEntry{
		{Kind: KindQueueOp, Operation: "enqueue", Content: "<task-id>bg-1</task-id><status>completed</status><result>all done</result>"},
		{Kind: KindQueueOp, Operation: "enqueue", Content: "<task-id>bg-2</task-id>no result tag here"},
		{Kind: KindQueueOp, Operation: "enqueue", Content: "<result>orphan result</result>"},
		{Kind: KindQueueOp, Operation: "dequeue", Content: "<task-id>bg-3</task-id><result>x</result>"},
	}

	idx := BuildIndex(entries)
	require.Len(t, idx.Notices, 1)
	assert.Equal(t, TaskNotice{Result: "all done", Status: "completed"}, idx.Notices["bg-1"])
}

func TestResultContentTextFlattensBlockList(t *testing.T) {
	raw := json.RawMessage(`[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]`)
	assert.Equal(t, "line one\nline two", resultContentText(raw))

	raw = json.RawMessage(`"plain"`)
	assert.Equal(t, "plain", resultContentText(raw))
}
