package transcript

import (
	"encoding/json"
	"sort"
	"strings"
)

// Command echo tags embedded in user entries.
const (
	tagCommandName   = "command-name"
	tagCommandArgs   = "command-args"
	tagCommandStdout = "command-stdout"
)

// MergeTurns folds the active subsequence into ordered chat messages using
// the correlation index. Consecutive assistant entries merge into one turn;
// compact boundaries always stand alone; plumbing entries (tool-result
// carriers, meta records, compaction continuations, bare command echoes) are
// filtered out first.
func MergeTurns(entries []RawEntry, idx *Index) []*ChatMessage {
	var (
		messages []*ChatMessage
		pending  *ChatMessage // open assistant turn being merged
	)

	flush := func() {
		if pending != nil {
			messages = append(messages, pending)
			pending = nil
		}
	}

	for i := range entries {
		e := &entries[i]
		switch e.Kind {
		case KindSystem:
			if e.Subtype == SubtypeCompactBoundary {
				flush()
				messages = append(messages, compactBoundaryMessage(e))
			}
		case KindUser:
			if e.IsMeta || e.IsCompactSummary {
				continue
			}
			blocks, _, ok := decodeBlocks(e.Message)
			if !ok || onlyToolResults(blocks) {
				continue
			}
			text := blocksText(blocks)
			if out := extractTag(text, tagCommandStdout); out != "" {
				if n := len(messages); n > 0 && messages[n-1].CommandName != "" {
					messages[n-1].CommandOutput = out
				}
				continue
			}
			flush()
			if msg := userMessage(e, blocks, text); msg != nil {
				messages = append(messages, msg)
			}
		case KindAssistant:
			mergeAssistant(e, idx, &messages, &pending, flush)
		}
		// result, queue-operation and snapshot records are plumbing.
	}
	flush()

	attachPayloads(messages, idx)

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages
}

func mergeAssistant(e *RawEntry, idx *Index, messages *[]*ChatMessage, pending **ChatMessage, flush func()) {
	blocks, _, ok := decodeBlocks(e.Message)
	if !ok {
		return
	}
	for _, b := range blocks {
		if b.Type == BlockCompactBoundary {
			// Never merged into a neighboring turn.
			flush()
			*messages = append(*messages, &ChatMessage{
				ID:        e.ID,
				Role:      KindAssistant,
				Blocks:    []ContentBlock{b},
				Timestamp: e.Time(),
			})
			continue
		}
		if *pending == nil {
			*pending = &ChatMessage{
				ID:        e.ID,
				Role:      KindAssistant,
				Timestamp: e.Time(),
			}
		}
		msg := *pending
		switch b.Type {
		case BlockText:
			if b.Text == "" {
				continue
			}
			if msg.Content != "" {
				msg.Content += "\n\n"
			}
			msg.Content += b.Text
			msg.Blocks = append(msg.Blocks, b)
		case BlockThinking:
			msg.Blocks = append(msg.Blocks, b)
		case BlockToolUse:
			msg.Blocks = append(msg.Blocks, b)
			msg.ToolCalls = append(msg.ToolCalls, newToolCall(b, idx))
		}
	}
}

// newToolCall resolves a tool_use block against the correlation index.
// An unresolved call defaults to completed with no result text: the source
// behavior optimistically assumes a call finished when no explicit failure
// was recorded. Callers needing "still running" semantics must check for a
// live conversation separately.
func newToolCall(b ContentBlock, idx *Index) *ToolCallInfo {
	tc := &ToolCallInfo{
		ID:     b.ID,
		Name:   b.Name,
		Input:  decodeInput(b.Input),
		Status: ToolCompleted,
	}
	if outcome, ok := idx.Results[b.ID]; ok {
		tc.Result = outcome.Text
		if outcome.IsError {
			tc.Status = ToolError
		}
	}
	return tc
}

// attachPayloads is deliberately a second pass: a side payload may describe a
// tool whose result blocks were synthesized differently.
func attachPayloads(messages []*ChatMessage, idx *Index) {
	if len(idx.Payloads) == 0 {
		return
	}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if payload, ok := idx.Payloads[tc.ID]; ok {
				tc.Structured = payload
			}
		}
	}
}

func userMessage(e *RawEntry, blocks []ContentBlock, text string) *ChatMessage {
	msg := &ChatMessage{
		ID:        e.ID,
		Role:      KindUser,
		Timestamp: e.Time(),
	}
	if name := extractTag(text, tagCommandName); name != "" {
		msg.CommandName = name
		msg.Content = strings.TrimSpace(name + " " + extractTag(text, tagCommandArgs))
		msg.Blocks = []ContentBlock{{Type: BlockText, Text: msg.Content}}
		return msg
	}
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			if b.Text == "" {
				continue
			}
			if msg.Content != "" {
				msg.Content += "\n\n"
			}
			msg.Content += b.Text
			msg.Blocks = append(msg.Blocks, b)
		case BlockToolResult:
			// Carrier blocks are plumbing even when mixed with text.
		default:
			msg.Blocks = append(msg.Blocks, b)
		}
	}
	if len(msg.Blocks) == 0 {
		return nil
	}
	return msg
}

func compactBoundaryMessage(e *RawEntry) *ChatMessage {
	return &ChatMessage{
		ID:        e.ID,
		Role:      KindAssistant,
		Blocks:    []ContentBlock{{Type: BlockCompactBoundary}},
		Timestamp: e.Time(),
	}
}

func onlyToolResults(blocks []ContentBlock) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}

func blocksText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil
	}
	return input
}
