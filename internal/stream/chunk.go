// Package stream aggregates a live, ordered chunk feed into the same
// conversation model the persisted-path reconstruction produces.
package stream

// Kind identifies a chunk's payload shape. Unknown kinds are ignored for
// forward compatibility.
type Kind string

const (
	KindThinking        Kind = "thinking"
	KindText            Kind = "text"
	KindToolUse         Kind = "tool_use"
	KindToolResult      Kind = "tool_result"
	KindBlocked         Kind = "blocked"
	KindError           Kind = "error"
	KindDone            Kind = "done"
	KindCompactBoundary Kind = "compact_boundary"
	KindUsage           Kind = "usage"
)

// Chunk is one typed record of the live feed. Any chunk may carry a
// ParentToolUseID, which routes it to the subagent state open for that
// parent instead of the top-level message.
type Chunk struct {
	Kind            Kind           `json:"kind"`
	SessionID       string         `json:"sessionId,omitempty"`
	ParentToolUseID string         `json:"parentToolUseId,omitempty"`
	Text            string         `json:"text,omitempty"`
	ToolID          string         `json:"toolId,omitempty"`
	ToolName        string         `json:"toolName,omitempty"`
	Input           map[string]any `json:"input,omitempty"`
	IsError         bool           `json:"isError,omitempty"`
	AgentID         string         `json:"agentId,omitempty"`
	InputTokens     int            `json:"inputTokens,omitempty"`
	OutputTokens    int            `json:"outputTokens,omitempty"`
}

// Usage is the per-turn token tally accumulated from accepted usage chunks.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
