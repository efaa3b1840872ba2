// Package transcript reconstructs an ordered conversation from a raw,
// possibly-branching, possibly-duplicated agent transcript log.
package transcript

import (
	"encoding/json"
	"time"
)

// Entry kinds as they appear in the persisted log.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindSystem    = "system"
	KindResult    = "result"
	KindQueueOp   = "queue-operation"
	KindSnapshot  = "snapshot"
)

// System entry subtypes.
const (
	SubtypeCompactBoundary = "compact_boundary"
)

// Content block types.
const (
	BlockText            = "text"
	BlockThinking        = "thinking"
	BlockToolUse         = "tool_use"
	BlockToolResult      = "tool_result"
	BlockCompactBoundary = "compact_boundary"
)

// RawEntry is one persisted log record. Entries are immutable once written;
// the log is append-only but may contain duplicate ids (compaction artifact)
// and more than one child per parent (rewind-and-resend artifact).
type RawEntry struct {
	Kind             string          `json:"type"`
	ID               string          `json:"uuid,omitempty"`
	ParentID         string          `json:"parentUuid,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	Timestamp        string          `json:"timestamp,omitempty"`
	Subtype          string          `json:"subtype,omitempty"`
	Message          json.RawMessage `json:"message,omitempty"`
	IsMeta           bool            `json:"isMeta,omitempty"`
	IsCompactSummary bool            `json:"isCompactSummary,omitempty"`
	ToolUseResult    json.RawMessage `json:"toolUseResult,omitempty"`
	AgentID          string          `json:"agentId,omitempty"`
	ParentToolUseID  string          `json:"parentToolUseId,omitempty"`

	// queue-operation fields
	Operation string `json:"operation,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Time parses the entry timestamp, zero on failure.
func (e *RawEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// entryMessage is the decoded form of RawEntry.Message.
type entryMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentBlock is one element of a message's content list. Type selects which
// fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking   string `json:"thinking,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolStatus is the lifecycle state of a tool call.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
	ToolBlocked   ToolStatus = "blocked"
)

// ToolCallInfo describes one tool invocation and, once correlated, its result.
type ToolCallInfo struct {
	ID         string
	Name       string
	Input      map[string]any
	Status     ToolStatus
	Result     string
	Structured json.RawMessage
	Subagent   *SubagentInfo
}

// SubagentMode distinguishes inline from detached sub-conversations.
type SubagentMode string

const (
	SubagentSync  SubagentMode = "sync"
	SubagentAsync SubagentMode = "async"
)

// AsyncStatus tracks the detached lifecycle of a background subagent.
type AsyncStatus string

const (
	AsyncPending   AsyncStatus = "pending"
	AsyncRunning   AsyncStatus = "running"
	AsyncCompleted AsyncStatus = "completed"
	AsyncError     AsyncStatus = "error"
	AsyncOrphaned  AsyncStatus = "orphaned"
)

// SubagentInfo is a nested sub-conversation spawned by a tool call. ID equals
// the spawning tool call's id.
type SubagentInfo struct {
	ID          string
	Mode        SubagentMode
	Status      ToolStatus
	AsyncStatus AsyncStatus
	AgentID     string
	ToolCalls   []*ToolCallInfo
	Result      string
}

// ChatMessage is one reconstructed logical turn. Blocks order is the ground
// truth for render order; ToolCalls holds one entry per tool_use block, keyed
// by the same id.
type ChatMessage struct {
	ID            string
	Role          string
	Content       string
	Blocks        []ContentBlock
	ToolCalls     []*ToolCallInfo
	Timestamp     time.Time
	CommandName   string
	CommandOutput string
	Interrupted   bool
}

// ToolCall returns the tool call with the given id, or nil.
func (m *ChatMessage) ToolCall(id string) *ToolCallInfo {
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return tc
		}
	}
	return nil
}
