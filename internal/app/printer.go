package app

import (
	"fmt"
	"io"
	"strings"

	"convlog/internal/transcript"
)

// RenderPlain writes a conversation as indented text, one turn per section.
// Meant for piping; the TUI handles interactive display.
func RenderPlain(w io.Writer, conv transcript.Conversation) {
	for _, msg := range conv.Messages {
		renderMessage(w, msg)
	}
	if conv.SkippedLines > 0 {
		fmt.Fprintf(w, "(%d unparseable log lines skipped)\n", conv.SkippedLines)
	}
	if conv.Err != "" {
		fmt.Fprintf(w, "(read error: %s)\n", conv.Err)
	}
}

func renderMessage(w io.Writer, msg *transcript.ChatMessage) {
	header := strings.ToUpper(msg.Role)
	if !msg.Timestamp.IsZero() {
		header += "  " + msg.Timestamp.Format("15:04:05")
	}
	if msg.Interrupted {
		header += "  (interrupted)"
	}
	fmt.Fprintln(w, header)

	for _, b := range msg.Blocks {
		switch b.Type {
		case transcript.BlockCompactBoundary:
			fmt.Fprintln(w, "  ── conversation compacted ──")
		case transcript.BlockThinking:
			fmt.Fprintf(w, "  [thinking %dms]\n", b.DurationMs)
		case transcript.BlockText:
			for _, line := range strings.Split(b.Text, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		case transcript.BlockToolUse:
			renderToolCall(w, msg.ToolCall(b.ID), "  ")
		}
	}
	if msg.CommandOutput != "" {
		fmt.Fprintf(w, "  stdout: %s\n", strings.TrimSpace(msg.CommandOutput))
	}
	fmt.Fprintln(w)
}

func renderToolCall(w io.Writer, tc *transcript.ToolCallInfo, indent string) {
	if tc == nil {
		return
	}
	fmt.Fprintf(w, "%s• %s [%s]\n", indent, tc.Name, tc.Status)
	if tc.Result != "" {
		fmt.Fprintf(w, "%s  → %s\n", indent, firstLine(tc.Result))
	}
	if sub := tc.Subagent; sub != nil {
		mode := string(sub.Mode)
		if sub.Mode == transcript.SubagentAsync {
			mode += "/" + string(sub.AsyncStatus)
		}
		fmt.Fprintf(w, "%s  subagent (%s): %d tool calls\n", indent, mode, len(sub.ToolCalls))
		for _, nested := range sub.ToolCalls {
			renderToolCall(w, nested, indent+"    ")
		}
		if sub.Result != "" {
			fmt.Fprintf(w, "%s    result: %s\n", indent, firstLine(sub.Result))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
