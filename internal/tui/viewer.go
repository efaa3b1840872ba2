// Package tui paints reconstructed conversations. It consumes the model the
// reconstruction pipelines produce and knows nothing about how it was built.
package tui

import (
	"fmt"
	"strings"

	"convlog/internal/transcript"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MessagesMsg delivers a fresh snapshot of the conversation to the viewer.
// The live path sends one after every committed aggregator mutation.
type MessagesMsg struct {
	Messages []*transcript.ChatMessage
	Skipped  int
}

// DoneMsg tells the viewer the feed ended.
type DoneMsg struct{}

type Viewer struct {
	title    string
	live     bool
	theme    Theme
	viewport viewport.Model
	spin     spinner.Model
	messages []*transcript.ChatMessage
	skipped  int
	width    int
	height   int
	ready    bool
	finished bool
}

func NewViewer(title string, live bool) *Viewer {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	theme := NewTheme()
	sp.Style = theme.Spinner
	return &Viewer{title: title, live: live, theme: theme, spin: sp}
}

func (v *Viewer) Init() tea.Cmd {
	if v.live {
		return v.spin.Tick
	}
	return nil
}

func (v *Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		vpHeight := msg.Height - 3
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !v.ready {
			v.viewport = viewport.New(msg.Width, vpHeight)
			v.ready = true
		} else {
			v.viewport.Width = msg.Width
			v.viewport.Height = vpHeight
		}
		v.refresh(false)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return v, tea.Quit
		}
		var cmd tea.Cmd
		v.viewport, cmd = v.viewport.Update(msg)
		return v, cmd
	case MessagesMsg:
		v.messages = msg.Messages
		v.skipped = msg.Skipped
		v.refresh(true)
	case DoneMsg:
		v.finished = true
	case spinner.TickMsg:
		if v.live && !v.finished {
			var cmd tea.Cmd
			v.spin, cmd = v.spin.Update(msg)
			return v, cmd
		}
	}
	return v, nil
}

func (v *Viewer) View() string {
	if !v.ready {
		return "loading…"
	}
	top := v.theme.TopBar.Render("convlog · " + v.title)
	footer := v.theme.Footer.Render(v.footerText())
	return top + "\n" + v.viewport.View() + "\n" + footer
}

func (v *Viewer) footerText() string {
	parts := []string{"q quit · ↑/↓ scroll"}
	if v.skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d lines skipped", v.skipped))
	}
	if v.live && !v.finished {
		parts = append(parts, v.spin.View()+" streaming")
	}
	return strings.Join(parts, "  ·  ")
}

func (v *Viewer) refresh(follow bool) {
	if !v.ready {
		return
	}
	v.viewport.SetContent(v.render())
	if follow {
		v.viewport.GotoBottom()
	}
}

func (v *Viewer) render() string {
	var b strings.Builder
	for _, msg := range v.messages {
		v.renderMessage(&b, msg)
	}
	return b.String()
}

func (v *Viewer) renderMessage(b *strings.Builder, msg *transcript.ChatMessage) {
	role := v.theme.RoleAI.Render("assistant")
	if msg.Role == transcript.KindUser {
		role = v.theme.RoleUser.Render("you")
	}
	header := role
	if !msg.Timestamp.IsZero() {
		header += "  " + v.theme.Muted.Render(msg.Timestamp.Format("15:04:05"))
	}
	if msg.Interrupted {
		header += "  " + v.theme.ToolErr.Render("interrupted")
	}
	b.WriteString(header + "\n")

	for _, block := range msg.Blocks {
		switch block.Type {
		case transcript.BlockCompactBoundary:
			b.WriteString(v.theme.Boundary.Render("── conversation compacted ──") + "\n")
		case transcript.BlockThinking:
			b.WriteString(v.theme.Muted.Render(fmt.Sprintf("thought for %s", thinkingDuration(block.DurationMs))) + "\n")
		case transcript.BlockText:
			b.WriteString(wrap(block.Text, v.width) + "\n")
		case transcript.BlockToolUse:
			v.renderToolCall(b, msg.ToolCall(block.ID), 1)
		}
	}
	if msg.CommandOutput != "" {
		b.WriteString(v.theme.Muted.Render("stdout: "+strings.TrimSpace(msg.CommandOutput)) + "\n")
	}
	b.WriteString("\n")
}

func (v *Viewer) renderToolCall(b *strings.Builder, tc *transcript.ToolCallInfo, depth int) {
	if tc == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	style := v.theme.Tool
	if tc.Status == transcript.ToolError || tc.Status == transcript.ToolBlocked {
		style = v.theme.ToolErr
	}
	b.WriteString(indent + style.Render(fmt.Sprintf("• %s [%s]", tc.Name, tc.Status)) + "\n")
	if tc.Result != "" {
		b.WriteString(indent + "  " + v.theme.Muted.Render(clip(tc.Result, 120)) + "\n")
	}
	if sub := tc.Subagent; sub != nil {
		label := fmt.Sprintf("subagent %s", sub.Mode)
		if sub.Mode == transcript.SubagentAsync {
			label += "/" + string(sub.AsyncStatus)
		}
		b.WriteString(indent + "  " + v.theme.Muted.Render(label) + "\n")
		for _, nested := range sub.ToolCalls {
			v.renderToolCall(b, nested, depth+2)
		}
		if sub.Result != "" {
			b.WriteString(indent + "    " + v.theme.Muted.Render(clip(sub.Result, 120)) + "\n")
		}
	}
}

func thinkingDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
