package gateway

import (
	"encoding/json"

	"convlog/internal/stream"
)

// Frame is one wire message from the runtime feed.
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Frame types.
const (
	FrameHello = "hello"
	FrameChunk = "chunk"
	FrameBye   = "bye"
)

// DecodeChunk decodes a chunk frame payload. Unknown chunk kinds pass
// through; the aggregator ignores them.
func DecodeChunk(f *Frame) (stream.Chunk, bool) {
	if f.Type != FrameChunk || len(f.Payload) == 0 {
		return stream.Chunk{}, false
	}
	var c stream.Chunk
	if err := json.Unmarshal(f.Payload, &c); err != nil {
		return stream.Chunk{}, false
	}
	if c.SessionID == "" {
		c.SessionID = f.SessionID
	}
	return c, true
}
