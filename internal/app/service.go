// Package app wires configuration, logging and the reconstruction pipelines
// into a conversation service consumed by the CLI and the TUI.
package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"convlog/internal/gateway"
	"convlog/internal/stream"
	"convlog/internal/transcript"
)

type Service struct {
	cfg    Config
	logger *Logger
}

func NewService(cfg Config, logger *Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// fileSource reads transcript bytes from disk. The reconstruction core only
// ever sees this function, never the filesystem.
func fileSource(key string) ([]byte, error) {
	return os.ReadFile(key)
}

// sideLogPath is {dir}/{session}/subagents/agent-{agentID}.jsonl, next to
// the main session file.
func (s *Service) sideLogSource(sessionPath string) transcript.SideLogSource {
	dir := filepath.Dir(sessionPath)
	session := sessionKey(sessionPath)
	return func(agentID string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, session, "subagents", "agent-"+agentID+".jsonl"))
	}
}

func sessionKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// newHydrator builds a hydrator for the session's side-logs with the
// configured retry count. Beyond the third retry the longest backoff repeats.
func (s *Service) newHydrator(sessionPath string) *transcript.Hydrator {
	h := transcript.NewHydrator(s.sideLogSource(sessionPath))
	h.Backoffs = retryBackoffs(s.cfg.HydrationRetries)
	return h
}

func retryBackoffs(n int) []time.Duration {
	base := []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}
	if n <= len(base) {
		return base[:n]
	}
	out := base
	for len(out) < n {
		out = append(out, base[len(base)-1])
	}
	return out
}

// SessionPath resolves a session id or path to a transcript file path.
func (s *Service) SessionPath(idOrPath string) string {
	if strings.ContainsAny(idOrPath, "/\\") || strings.HasSuffix(idOrPath, ".jsonl") {
		return idOrPath
	}
	return filepath.Join(s.cfg.TranscriptDir, idOrPath+".jsonl")
}

// OpenConversation reconstructs a persisted conversation. onSubagent, when
// non-nil, is invoked as async subagents finish hydrating on a retry; the
// first hydration pass is already reflected in the returned conversation, so
// the callback is registered only afterwards and can never block the
// reconstruction itself. The returned hydrator must be closed when the
// conversation is torn down.
func (s *Service) OpenConversation(idOrPath, resumePointID string, onSubagent func(*transcript.SubagentInfo)) (transcript.Conversation, *transcript.Hydrator) {
	path := s.SessionPath(idOrPath)
	h := s.newHydrator(path)
	conv := transcript.Reconstruct(fileSource, path, resumePointID, h)
	h.OnUpdate = onSubagent
	s.logger.Debug("conversation reconstructed", map[string]interface{}{
		"path":     path,
		"messages": len(conv.Messages),
		"skipped":  conv.SkippedLines,
	})
	return conv, h
}

// Watch consumes the live chunk feed at feedURL until the feed closes or ctx
// is canceled, folding chunks into messages and notifying after each change.
func (s *Service) Watch(ctx context.Context, feedURL string, notify stream.Notify) error {
	client := gateway.NewClient()

	chunks := make(chan stream.Chunk, 64)
	var closeOnce sync.Once
	client.OnChunk(func(c stream.Chunk) {
		select {
		case chunks <- c:
		case <-ctx.Done():
		}
	})
	client.OnStateChange(func(st gateway.ConnectionState) {
		if st == gateway.StateDisconnected {
			closeOnce.Do(func() { close(chunks) })
		}
	})

	if err := client.Connect(feedURL); err != nil {
		return err
	}
	defer client.Close()

	sessionID := client.SessionID()
	s.logger.Info("watching live feed", map[string]interface{}{
		"url":     feedURL,
		"session": sessionID,
	})

	agg := stream.NewAggregator(sessionID, notify)
	sidePath := filepath.Join(s.cfg.TranscriptDir, sessionID+".jsonl")
	agg.Hydrator = s.newHydrator(sidePath)
	agg.Run(ctx, chunks)
	return nil
}

// SessionSummary describes one transcript file for listings.
type SessionSummary struct {
	ID           string
	Path         string
	Title        string
	MessageCount int
	LastActivity time.Time
}

// ListSessions enumerates transcript files in the configured directory,
// newest first. limit <= 0 means all.
func (s *Service) ListSessions(limit int) ([]SessionSummary, error) {
	matches, err := filepath.Glob(filepath.Join(s.cfg.TranscriptDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	var out []SessionSummary
	for _, path := range matches {
		conv := transcript.Reconstruct(fileSource, path, "", nil)
		if conv.Err != "" {
			s.logger.Debug("skipping unreadable session", map[string]interface{}{
				"path":  path,
				"error": conv.Err,
			})
			continue
		}
		summary := SessionSummary{
			ID:           sessionKey(path),
			Path:         path,
			MessageCount: len(conv.Messages),
		}
		for _, msg := range conv.Messages {
			if summary.Title == "" && msg.Role == transcript.KindUser && msg.Content != "" {
				summary.Title = deriveTitle(msg.Content)
			}
			if msg.Timestamp.After(summary.LastActivity) {
				summary.LastActivity = msg.Timestamp
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func deriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	const max = 64
	if len(line) > max {
		line = line[:max-1] + "…"
	}
	return line
}
