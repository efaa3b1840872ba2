package transcript

import (
	"encoding/json"
	"strings"
)

// ToolOutcome is the correlated result of one tool call.
type ToolOutcome struct {
	Text    string
	IsError bool
}

// TaskNotice is an out-of-band completion notification for a background task.
type TaskNotice struct {
	Result string
	Status string
}

// Index holds the correlation tables built in one pass over the active
// subsequence. Results commonly arrive in a later, separate entry than the
// call, so lookup is by tool_use id regardless of which turn carried it.
type Index struct {
	Results  map[string]ToolOutcome
	Payloads map[string]json.RawMessage
	Notices  map[string]TaskNotice
}

// BuildIndex scans entries once, collecting tool results, out-of-band side
// payloads (diff data, resolved answers) and background-task notifications.
func BuildIndex(entries []RawEntry) *Index {
	idx := &Index{
		Results:  make(map[string]ToolOutcome),
		Payloads: make(map[string]json.RawMessage),
		Notices:  make(map[string]TaskNotice),
	}
	for i := range entries {
		e := &entries[i]
		switch e.Kind {
		case KindQueueOp:
			idx.addNotice(e)
		default:
			idx.addResults(e)
		}
	}
	return idx
}

func (idx *Index) addResults(e *RawEntry) {
	blocks, _, ok := decodeBlocks(e.Message)
	if ok {
		for _, b := range blocks {
			if b.Type != BlockToolResult || b.ToolUseID == "" {
				continue
			}
			idx.Results[b.ToolUseID] = ToolOutcome{
				Text:    resultContentText(b.Content),
				IsError: b.IsError,
			}
			// The side payload rides on the same entry as the carried
			// result block, flagged by a non-empty toolUseResult.
			if len(e.ToolUseResult) > 0 {
				idx.Payloads[b.ToolUseID] = e.ToolUseResult
			}
		}
	}
}

func (idx *Index) addNotice(e *RawEntry) {
	if e.Operation != "enqueue" {
		return
	}
	taskID := extractTag(e.Content, "task-id")
	result := extractTag(e.Content, "result")
	if taskID == "" || result == "" {
		// Tolerant of missing tags: an incomplete notification
		// contributes nothing.
		return
	}
	idx.Notices[taskID] = TaskNotice{
		Result: result,
		Status: extractTag(e.Content, "status"),
	}
}

// resultContentText flattens tool_result content, which may be a bare string
// or a list of text blocks.
func resultContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == BlockText && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// extractTag returns the content between <tag> and </tag>, empty if either
// tag is absent.
func extractTag(text, tag string) string {
	start := "<" + tag + ">"
	end := "</" + tag + ">"
	i := strings.Index(text, start)
	if i == -1 {
		return ""
	}
	i += len(start)
	j := strings.Index(text[i:], end)
	if j == -1 {
		return ""
	}
	return text[i : i+j]
}

// decodeBlocks decodes a message payload into content blocks. A plain string
// content is returned as a single text block. The second return is the role.
func decodeBlocks(raw json.RawMessage) ([]ContentBlock, string, bool) {
	if len(raw) == 0 {
		return nil, "", false
	}
	var msg entryMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, "", false
	}
	if len(msg.Content) == 0 {
		return nil, msg.Role, true
	}
	var s string
	if err := json.Unmarshal(msg.Content, &s); err == nil {
		if s == "" {
			return nil, msg.Role, true
		}
		return []ContentBlock{{Type: BlockText, Text: s}}, msg.Role, true
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil, msg.Role, false
	}
	return blocks, msg.Role, true
}
