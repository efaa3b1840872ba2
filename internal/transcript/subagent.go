package transcript

// TaskToolName is the spawning tool signature for inline sub-conversations.
const TaskToolName = "Task"

// payloadLaunchKey marks a side payload as a background launch and carries
// the external key of the subagent's own side-log.
const payloadLaunchKey = "agentId"

// LinkSubagents attaches nested sub-conversations to their spawning tool
// calls across all messages. Sync subagents are fully linked from the log
// itself; async subagents get their result and status resolved from the
// notification map and are then handed to the hydrator, which loads the
// side-log with bounded retries.
func LinkSubagents(messages []*ChatMessage, entries []RawEntry, idx *Index, h *Hydrator) {
	var async []*SubagentInfo
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			sub := linkOne(tc, entries, idx)
			if sub != nil && sub.Mode == SubagentAsync {
				async = append(async, sub)
			}
		}
	}
	if h != nil && len(async) > 0 {
		h.HydrateAll(async)
	}
}

func linkOne(tc *ToolCallInfo, entries []RawEntry, idx *Index) *SubagentInfo {
	mode, agentID, ok := classifySpawn(tc)
	if !ok {
		return nil
	}
	sub := &SubagentInfo{
		ID:      tc.ID,
		Mode:    mode,
		AgentID: agentID,
	}
	tc.Subagent = sub

	switch mode {
	case SubagentSync:
		// The spawning call's own result entry is the subagent's final
		// result; nested calls declared this id as their parent.
		sub.Result = tc.Result
		sub.Status = tc.Status
		sub.ToolCalls = nestedToolCalls(tc.ID, entries, idx)
	case SubagentAsync:
		resolveAsync(sub, tc, idx)
	}
	return sub
}

// classifySpawn decides whether a tool call spawns a subagent and in which
// execution mode. A side payload carrying a launch marker wins over the
// plain Task signature.
func classifySpawn(tc *ToolCallInfo) (SubagentMode, string, bool) {
	if agentID := launchAgentID(tc); agentID != "" {
		return SubagentAsync, agentID, true
	}
	if tc.Name == TaskToolName {
		if flag, _ := tc.Input["run_in_background"].(bool); flag {
			// Background launch whose payload never materialized; there
			// is no side-log key to hydrate from.
			return SubagentAsync, "", true
		}
		return SubagentSync, "", true
	}
	return "", "", false
}

func launchAgentID(tc *ToolCallInfo) string {
	if len(tc.Structured) == 0 {
		return ""
	}
	payload := decodeInput(tc.Structured)
	if payload == nil {
		return ""
	}
	agentID, _ := payload[payloadLaunchKey].(string)
	return agentID
}

// resolveAsync fills result and status for a background subagent. The
// notification result is fuller text than the tool-result summary, so it
// takes precedence; so does the notification status over the spawning
// call's own status.
func resolveAsync(sub *SubagentInfo, tc *ToolCallInfo, idx *Index) {
	sub.Result = tc.Result
	sub.Status = tc.Status
	sub.AsyncStatus = AsyncPending
	if sub.AgentID == "" {
		sub.AsyncStatus = AsyncOrphaned
		return
	}
	notice, ok := idx.Notices[sub.AgentID]
	if !ok {
		return
	}
	if notice.Result != "" {
		sub.Result = notice.Result
	}
	switch notice.Status {
	case "completed", "":
		sub.Status = ToolCompleted
		sub.AsyncStatus = AsyncCompleted
	case "error":
		sub.Status = ToolError
		sub.AsyncStatus = AsyncError
	case "running":
		sub.Status = ToolRunning
		sub.AsyncStatus = AsyncRunning
	}
}

// nestedToolCalls collects the tool calls that appeared in the log with the
// spawning id as their declared parent reference, resolved against the same
// correlation index as top-level calls.
func nestedToolCalls(spawnID string, entries []RawEntry, idx *Index) []*ToolCallInfo {
	var calls []*ToolCallInfo
	for i := range entries {
		e := &entries[i]
		if e.ParentToolUseID != spawnID || e.Kind != KindAssistant {
			continue
		}
		blocks, _, ok := decodeBlocks(e.Message)
		if !ok {
			continue
		}
		for _, b := range blocks {
			if b.Type == BlockToolUse {
				calls = append(calls, newToolCall(b, idx))
			}
		}
	}
	return calls
}
