package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	TextPrimary lipgloss.AdaptiveColor
	TextMuted   lipgloss.AdaptiveColor
	Accent      lipgloss.AdaptiveColor
	Success     lipgloss.AdaptiveColor
	Warn        lipgloss.AdaptiveColor
	Error       lipgloss.AdaptiveColor

	TopBar   lipgloss.Style
	Footer   lipgloss.Style
	RoleUser lipgloss.Style
	RoleAI   lipgloss.Style
	Muted    lipgloss.Style
	Tool     lipgloss.Style
	ToolErr  lipgloss.Style
	Boundary lipgloss.Style
	Spinner  lipgloss.Style
}

func NewTheme() Theme {
	if os.Getenv("CONVLOG_NO_COLOR") == "1" {
		return noColorTheme()
	}

	t := Theme{
		TextPrimary: lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#e6e6e6"},
		TextMuted:   lipgloss.AdaptiveColor{Light: "#6b6b6b", Dark: "#8a8a8a"},
		Accent:      lipgloss.AdaptiveColor{Light: "#005f87", Dark: "#5fafd7"},
		Success:     lipgloss.AdaptiveColor{Light: "#007a3d", Dark: "#5fd787"},
		Warn:        lipgloss.AdaptiveColor{Light: "#8a6d00", Dark: "#d7af5f"},
		Error:       lipgloss.AdaptiveColor{Light: "#ab0000", Dark: "#ff5f5f"},
	}
	t.TopBar = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.Footer = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.RoleUser = lipgloss.NewStyle().Bold(true).Foreground(t.Success)
	t.RoleAI = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.Muted = lipgloss.NewStyle().Foreground(t.TextMuted)
	t.Tool = lipgloss.NewStyle().Foreground(t.Warn)
	t.ToolErr = lipgloss.NewStyle().Foreground(t.Error)
	t.Boundary = lipgloss.NewStyle().Foreground(t.TextMuted).Italic(true)
	t.Spinner = lipgloss.NewStyle().Foreground(t.Accent)
	return t
}

func noColorTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		TopBar:   plain.Bold(true),
		Footer:   plain,
		RoleUser: plain.Bold(true),
		RoleAI:   plain.Bold(true),
		Muted:    plain,
		Tool:     plain,
		ToolErr:  plain,
		Boundary: plain,
		Spinner:  plain,
	}
}
