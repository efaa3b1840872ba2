package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"convlog/internal/app"
	"convlog/internal/transcript"
	"convlog/internal/tui"

	"github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:           "convlog",
		Short:         "Reconstruct and view agent conversation transcripts",
		Long:          "convlog rebuilds ordered conversations from append-only agent transcript logs,\nboth from persisted files and from a live chunk feed.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: user config dir)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	newService := func() (*app.Service, app.Config, error) {
		path := configPath
		if path == "" {
			path = app.DefaultConfigPath()
		}
		cfg, err := app.LoadConfig(path)
		if err != nil {
			return nil, cfg, err
		}
		if debug {
			cfg.Debug = true
		}
		logger := app.NewLogger(os.Stderr, cfg.Debug)
		return app.NewService(cfg, logger), cfg, nil
	}

	showCmd := &cobra.Command{
		Use:   "show <session-id|path>",
		Short: "Reconstruct a persisted conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, _ := cmd.Flags().GetBool("plain")
			resumePoint, _ := cmd.Flags().GetString("resume-point")
			service, cfg, err := newService()
			if err != nil {
				return err
			}
			if plain || cfg.PlainOutput {
				return runShowPlain(service, args[0], resumePoint)
			}
			return runShowTUI(service, args[0], resumePoint)
		},
	}
	showCmd.Flags().Bool("plain", false, "print to stdout instead of the TUI")
	showCmd.Flags().String("resume-point", "", "reconstruct up to this entry id")

	watchCmd := &cobra.Command{
		Use:   "watch [feed-url]",
		Short: "Follow a live conversation feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cfg, err := newService()
			if err != nil {
				return err
			}
			feedURL := cfg.GatewayURL
			if len(args) == 1 {
				feedURL = args[0]
			}
			return runWatch(service, feedURL)
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			service, _, err := newService()
			if err != nil {
				return err
			}
			sessions, err := service.ListSessions(limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions found")
				return nil
			}
			for _, s := range sessions {
				ts := "-"
				if !s.LastActivity.IsZero() {
					ts = s.LastActivity.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-38s %4d msgs  %s  %s\n", s.ID, s.MessageCount, ts, s.Title)
			}
			return nil
		},
	}
	sessionsCmd.Flags().Int("limit", 20, "maximum sessions to list (0 = all)")

	root.AddCommand(showCmd, watchCmd, sessionsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runShowPlain(service *app.Service, session, resumePoint string) error {
	conv, hydrator := service.OpenConversation(session, resumePoint, nil)
	defer hydrator.Close()
	if conv.Err != "" {
		return fmt.Errorf("reading transcript: %s", conv.Err)
	}
	app.RenderPlain(os.Stdout, conv)
	return nil
}

func runShowTUI(service *app.Service, session, resumePoint string) error {
	viewer := tui.NewViewer(session, false)
	p := tea.NewProgram(viewer, tea.WithAltScreen())

	// Retry hydration completes in the background; re-send the snapshot so
	// the viewer picks up newly filled subagent detail. Send blocks until
	// the program's event loop is running, so it must not be called
	// synchronously from a hydration timer.
	var conv transcript.Conversation
	conv, hydrator := service.OpenConversation(session, resumePoint, func(*transcript.SubagentInfo) {
		go p.Send(tui.MessagesMsg{Messages: conv.Messages, Skipped: conv.SkippedLines})
	})
	defer hydrator.Close()
	if conv.Err != "" {
		return fmt.Errorf("reading transcript: %s", conv.Err)
	}

	go p.Send(tui.MessagesMsg{Messages: conv.Messages, Skipped: conv.SkippedLines})
	_, err := p.Run()
	return err
}

func runWatch(service *app.Service, feedURL string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	viewer := tui.NewViewer(feedURL, true)
	p := tea.NewProgram(viewer, tea.WithAltScreen())

	errc := make(chan error, 1)
	go func() {
		err := service.Watch(ctx, feedURL, func(messages []*transcript.ChatMessage) {
			p.Send(tui.MessagesMsg{Messages: messages})
		})
		p.Send(tui.DoneMsg{})
		errc <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errc
		return err
	}
	cancel()
	return <-errc
}
