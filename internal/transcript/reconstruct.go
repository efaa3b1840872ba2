package transcript

// Conversation is the reconstructed, UI-consumable view of one log.
type Conversation struct {
	Messages     []*ChatMessage
	SkippedLines int
	Err          string
}

// Reconstruct runs the full persisted-path pipeline: read, resolve the
// active branch, build the correlation index, merge turns and link
// subagents. The hydrator is optional; without one, async subagents keep
// whatever the main log and its notifications already resolved.
func Reconstruct(source ByteSource, key, resumePointID string, h *Hydrator) Conversation {
	res := ReadLog(source, key)
	if res.Err != "" {
		return Conversation{SkippedLines: res.SkippedLines, Err: res.Err}
	}
	active := ResolveActive(res.Entries, resumePointID)
	idx := BuildIndex(active)
	messages := MergeTurns(active, idx)
	LinkSubagents(messages, active, idx, h)
	return Conversation{Messages: messages, SkippedLines: res.SkippedLines}
}
