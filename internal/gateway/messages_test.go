package gateway

import (
	"encoding/json"
	"testing"

	"convlog/internal/stream"
)

func TestDecodeChunk(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  stream.Chunk
		ok    bool
	}{
		{
			name:  "text chunk",
			frame: Frame{Type: FrameChunk, Payload: json.RawMessage(`{"kind":"text","text":"hi","sessionId":"s1"}`)},
			want:  stream.Chunk{Kind: stream.KindText, Text: "hi", SessionID: "s1"},
			ok:    true,
		},
		{
			name:  "session inherited from frame",
			frame: Frame{Type: FrameChunk, SessionID: "s2", Payload: json.RawMessage(`{"kind":"done"}`)},
			want:  stream.Chunk{Kind: stream.KindDone, SessionID: "s2"},
			ok:    true,
		},
		{
			name:  "hello frame is not a chunk",
			frame: Frame{Type: FrameHello},
			ok:    false,
		},
		{
			name:  "empty payload",
			frame: Frame{Type: FrameChunk},
			ok:    false,
		},
		{
			name:  "malformed payload",
			frame: Frame{Type: FrameChunk, Payload: json.RawMessage(`{`)},
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeChunk(&tt.frame)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Kind != tt.want.Kind || got.Text != tt.want.Text || got.SessionID != tt.want.SessionID {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
