package transcript

import (
	"encoding/json"
	"testing"
)

func marshalMessage(t *testing.T, role string, content any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{"role": role, "content": content})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return data
}

func userEntry(t *testing.T, id, parent, text, ts string) RawEntry {
	t.Helper()
	return RawEntry{
		Kind:      KindUser,
		ID:        id,
		ParentID:  parent,
		Timestamp: ts,
		Message:   marshalMessage(t, "user", text),
	}
}

func assistantEntry(t *testing.T, id, parent, ts string, blocks ...ContentBlock) RawEntry {
	t.Helper()
	return RawEntry{
		Kind:      KindAssistant,
		ID:        id,
		ParentID:  parent,
		Timestamp: ts,
		Message:   marshalMessage(t, "assistant", blocks),
	}
}

func textBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func toolUseBlock(id, name string) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name}
}

// resultEntry is a user-role carrier holding one tool_result block.
func resultEntry(t *testing.T, id, parent, toolUseID, text, ts string, isError bool) RawEntry {
	t.Helper()
	content, err := json.Marshal(text)
	if err != nil {
		t.Fatalf("marshal result text: %v", err)
	}
	block := ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
	return RawEntry{
		Kind:      KindUser,
		ID:        id,
		ParentID:  parent,
		Timestamp: ts,
		Message:   marshalMessage(t, "user", []ContentBlock{block}),
	}
}

func ids(entries []RawEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
