package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"convlog/internal/transcript"

	"github.com/google/uuid"
)

// Notify is invoked after each committed mutation of the conversation. The
// aggregator assumes nothing about what the listener does with it.
type Notify func(messages []*transcript.ChatMessage)

// pendingTool is a buffered tool call that has not been rendered yet.
// Buffering tolerates runtimes that emit tool metadata incrementally.
type pendingTool struct {
	block transcript.ContentBlock
	call  *transcript.ToolCallInfo
}

// Aggregator folds a live chunk feed into chat messages, applying the same
// merge, correlation and subagent-linking rules as the persisted path, one
// chunk at a time. It is owned by a single conversation; all methods must be
// called from one goroutine (the feed consumer).
type Aggregator struct {
	SessionID string
	OnUpdate  Notify
	Hydrator  *transcript.Hydrator
	Clock     func() time.Time

	messages []*transcript.ChatMessage
	msg      *transcript.ChatMessage

	openKind      Kind // KindThinking, KindText or ""
	buffer        strings.Builder
	thinkingStart time.Time

	pending     []*pendingTool
	pendingByID map[string]*pendingTool

	subagents   map[string]*transcript.SubagentInfo
	subagentRan bool
	usage       Usage
}

// NewAggregator builds an aggregator for one live conversation.
func NewAggregator(sessionID string, notify Notify) *Aggregator {
	return &Aggregator{
		SessionID:   sessionID,
		OnUpdate:    notify,
		Clock:       time.Now,
		pendingByID: make(map[string]*pendingTool),
		subagents:   make(map[string]*transcript.SubagentInfo),
	}
}

// Messages returns the conversation built so far. The returned slice is
// mutated in place as further chunks arrive.
func (a *Aggregator) Messages() []*transcript.ChatMessage { return a.messages }

// TurnUsage returns the token tally for the current turn.
func (a *Aggregator) TurnUsage() Usage { return a.usage }

// Run consumes the feed until it closes or ctx is canceled. Cancellation
// flushes any pending tool calls before finalizing, so partially streamed
// state is never silently dropped, only marked interrupted.
func (a *Aggregator) Run(ctx context.Context, chunks <-chan Chunk) {
	for {
		select {
		case <-ctx.Done():
			a.Cancel()
			return
		case c, ok := <-chunks:
			if !ok {
				a.finishTurn()
				a.notify()
				return
			}
			a.Apply(c)
		}
	}
}

// Apply processes one chunk synchronously.
func (a *Aggregator) Apply(c Chunk) {
	if c.ParentToolUseID != "" {
		if a.routeToSubagent(c) {
			a.notify()
		}
		return
	}
	switch c.Kind {
	case KindThinking:
		a.flushPending()
		a.openBuffer(KindThinking)
		a.buffer.WriteString(c.Text)
	case KindText:
		a.flushPending()
		a.openBuffer(KindText)
		a.buffer.WriteString(c.Text)
	case KindToolUse:
		a.closeBuffer()
		a.bufferTool(c)
	case KindToolResult:
		a.applyToolResult(c)
	case KindBlocked:
		a.annotate(c, transcript.ToolBlocked)
	case KindError:
		a.annotate(c, transcript.ToolError)
	case KindCompactBoundary:
		a.finishTurn()
		a.messages = append(a.messages, &transcript.ChatMessage{
			ID:        uuid.NewString(),
			Role:      transcript.KindAssistant,
			Blocks:    []transcript.ContentBlock{{Type: transcript.BlockCompactBoundary}},
			Timestamp: a.Clock(),
		})
	case KindUsage:
		a.applyUsage(c)
		return // no visible mutation
	case KindDone:
		a.finishTurn()
	default:
		return // forward-compatible: unknown kinds are ignored
	}
	a.notify()
}

// Cancel stops the turn early. Buffered tool calls are still rendered and
// the message is marked interrupted.
func (a *Aggregator) Cancel() {
	a.flushPending()
	a.closeBuffer()
	if a.msg != nil {
		a.msg.Interrupted = true
	}
	a.finishTurn()
	if a.Hydrator != nil {
		a.Hydrator.Close()
	}
	a.notify()
}

func (a *Aggregator) ensureMessage() *transcript.ChatMessage {
	if a.msg == nil {
		a.msg = &transcript.ChatMessage{
			ID:        uuid.NewString(),
			Role:      transcript.KindAssistant,
			Timestamp: a.Clock(),
		}
		a.messages = append(a.messages, a.msg)
	}
	return a.msg
}

// openBuffer switches the single open accumulation buffer to kind, closing
// the other kind first. At most one of thinking/text is open at a time.
func (a *Aggregator) openBuffer(kind Kind) {
	if a.openKind == kind {
		return
	}
	a.closeBuffer()
	a.openKind = kind
	if kind == KindThinking {
		a.thinkingStart = a.Clock()
	}
}

// closeBuffer finalizes the open buffer into a content block.
func (a *Aggregator) closeBuffer() {
	if a.openKind == "" {
		return
	}
	text := a.buffer.String()
	a.buffer.Reset()
	kind := a.openKind
	a.openKind = ""
	if text == "" {
		return
	}
	msg := a.ensureMessage()
	switch kind {
	case KindThinking:
		msg.Blocks = append(msg.Blocks, transcript.ContentBlock{
			Type:       transcript.BlockThinking,
			Thinking:   text,
			DurationMs: a.Clock().Sub(a.thinkingStart).Milliseconds(),
		})
	case KindText:
		if msg.Content != "" {
			msg.Content += "\n\n"
		}
		msg.Content += text
		msg.Blocks = append(msg.Blocks, transcript.ContentBlock{Type: transcript.BlockText, Text: text})
	}
}

// bufferTool holds a newly observed tool call without rendering it. A second
// tool_use chunk for the same id merges its input fields into the buffered
// call instead of opening a new one.
func (a *Aggregator) bufferTool(c Chunk) {
	if p, ok := a.pendingByID[c.ToolID]; ok {
		if p.call.Input == nil {
			p.call.Input = make(map[string]any)
		}
		for k, v := range c.Input {
			p.call.Input[k] = v
		}
		if c.ToolName != "" {
			p.call.Name = c.ToolName
			p.block.Name = c.ToolName
		}
		return
	}
	p := &pendingTool{
		block: transcript.ContentBlock{Type: transcript.BlockToolUse, ID: c.ToolID, Name: c.ToolName, Input: marshalInput(c.Input)},
		call: &transcript.ToolCallInfo{
			ID:     c.ToolID,
			Name:   c.ToolName,
			Input:  c.Input,
			Status: transcript.ToolRunning,
		},
	}
	// A background launch is classified immediately by its signature; a
	// plain Task stays unclassified until its first child chunk.
	if isBackgroundLaunch(c.ToolName, c.Input) {
		p.call.Subagent = &transcript.SubagentInfo{
			ID:          c.ToolID,
			Mode:        transcript.SubagentAsync,
			Status:      transcript.ToolRunning,
			AsyncStatus: transcript.AsyncPending,
		}
		a.subagents[c.ToolID] = p.call.Subagent
		a.markSubagentRan()
	}
	a.pending = append(a.pending, p)
	a.pendingByID[c.ToolID] = p
}

// flushPending renders buffered tool calls in the order they were first
// observed. Rendering is reordered; the id-to-result correlation is not.
func (a *Aggregator) flushPending() {
	if len(a.pending) == 0 {
		return
	}
	msg := a.ensureMessage()
	for _, p := range a.pending {
		msg.Blocks = append(msg.Blocks, p.block)
		msg.ToolCalls = append(msg.ToolCalls, p.call)
		delete(a.pendingByID, p.call.ID)
	}
	a.pending = nil
}

func (a *Aggregator) applyToolResult(c Chunk) {
	// The buffered tool's own result forces a flush so the call renders
	// before its outcome lands.
	if _, ok := a.pendingByID[c.ToolID]; ok {
		a.flushPending()
	}
	tc := a.findToolCall(c.ToolID)
	if tc == nil {
		return
	}
	tc.Result = c.Text
	if c.IsError {
		tc.Status = transcript.ToolError
	} else {
		tc.Status = transcript.ToolCompleted
	}
	if sub := tc.Subagent; sub != nil {
		sub.Status = tc.Status
		if sub.Mode == transcript.SubagentAsync {
			if c.AgentID != "" {
				sub.AgentID = c.AgentID
			}
			if sub.AsyncStatus == transcript.AsyncPending {
				sub.AsyncStatus = transcript.AsyncRunning
			}
			if a.Hydrator != nil && sub.AgentID != "" {
				a.Hydrator.Hydrate(sub)
			}
		} else if sub.Result == "" {
			sub.Result = c.Text
		}
	}
}

// annotate surfaces blocked/error chunks as visible text rather than
// silently dropping them.
func (a *Aggregator) annotate(c Chunk, status transcript.ToolStatus) {
	if c.ToolID != "" {
		if _, ok := a.pendingByID[c.ToolID]; ok {
			a.flushPending()
		}
		if tc := a.findToolCall(c.ToolID); tc != nil {
			tc.Status = status
		}
	}
	if c.Text == "" {
		return
	}
	a.flushPending()
	a.closeBuffer()
	msg := a.ensureMessage()
	label := "[" + string(c.Kind) + "] " + c.Text
	if msg.Content != "" {
		msg.Content += "\n\n"
	}
	msg.Content += label
	msg.Blocks = append(msg.Blocks, transcript.ContentBlock{Type: transcript.BlockText, Text: label})
}

// markSubagentRan flags the turn and drops any usage already accumulated:
// the parent's tally double-counts once a nested agent contributes, no
// matter which arrived first.
func (a *Aggregator) markSubagentRan() {
	a.subagentRan = true
	a.usage = Usage{}
}

// applyUsage accepts a usage chunk unless nested subagents ran this turn
// (their cumulative usage double-counts the parent) or the chunk reports a
// different session than the active one (stale chunk from a superseded
// turn).
func (a *Aggregator) applyUsage(c Chunk) {
	if a.subagentRan {
		return
	}
	if c.SessionID != "" && a.SessionID != "" && c.SessionID != a.SessionID {
		return
	}
	a.usage.InputTokens += c.InputTokens
	a.usage.OutputTokens += c.OutputTokens
}

// finishTurn flushes everything and closes the current message.
func (a *Aggregator) finishTurn() {
	a.flushPending()
	a.closeBuffer()
	a.msg = nil
	a.subagentRan = false
	a.usage = Usage{}
	a.subagents = make(map[string]*transcript.SubagentInfo)
}

// routeToSubagent hands a parent-referenced chunk to the subagent state open
// for that parent. The first child chunk observed for a pending Task call is
// what confirms it is synchronous.
func (a *Aggregator) routeToSubagent(c Chunk) bool {
	parent := c.ParentToolUseID
	sub, ok := a.subagents[parent]
	if !ok {
		tc := a.parentToolCall(parent)
		if tc == nil {
			return false
		}
		sub = tc.Subagent
		if sub == nil {
			sub = &transcript.SubagentInfo{
				ID:     parent,
				Mode:   transcript.SubagentSync,
				Status: transcript.ToolRunning,
			}
			tc.Subagent = sub
		}
		a.subagents[parent] = sub
		a.markSubagentRan()
	}
	switch c.Kind {
	case KindToolUse:
		sub.ToolCalls = append(sub.ToolCalls, &transcript.ToolCallInfo{
			ID:     c.ToolID,
			Name:   c.ToolName,
			Input:  c.Input,
			Status: transcript.ToolRunning,
		})
	case KindToolResult:
		for _, tc := range sub.ToolCalls {
			if tc.ID == c.ToolID {
				tc.Result = c.Text
				if c.IsError {
					tc.Status = transcript.ToolError
				} else {
					tc.Status = transcript.ToolCompleted
				}
				break
			}
		}
	case KindText:
		if sub.Result != "" {
			sub.Result += "\n\n"
		}
		sub.Result += c.Text
	case KindError:
		sub.Status = transcript.ToolError
		if sub.Mode == transcript.SubagentAsync {
			sub.AsyncStatus = transcript.AsyncError
		}
	case KindDone:
		if sub.Status == transcript.ToolRunning {
			sub.Status = transcript.ToolCompleted
		}
		if sub.Mode == transcript.SubagentAsync && sub.AsyncStatus != transcript.AsyncError {
			sub.AsyncStatus = transcript.AsyncCompleted
		}
	default:
		return false
	}
	return true
}

// parentToolCall looks the parent up among buffered and rendered calls of
// the current turn.
func (a *Aggregator) parentToolCall(id string) *transcript.ToolCallInfo {
	if p, ok := a.pendingByID[id]; ok {
		return p.call
	}
	if a.msg != nil {
		if tc := a.msg.ToolCall(id); tc != nil {
			return tc
		}
	}
	return nil
}

func (a *Aggregator) findToolCall(id string) *transcript.ToolCallInfo {
	if p, ok := a.pendingByID[id]; ok {
		return p.call
	}
	for i := len(a.messages) - 1; i >= 0; i-- {
		if tc := a.messages[i].ToolCall(id); tc != nil {
			return tc
		}
	}
	return nil
}

func (a *Aggregator) notify() {
	if a.OnUpdate != nil {
		a.OnUpdate(a.messages)
	}
}

// isBackgroundLaunch recognizes the distinct background-launch tool
// signature.
func isBackgroundLaunch(name string, input map[string]any) bool {
	if name != transcript.TaskToolName {
		return false
	}
	flag, _ := input["run_in_background"].(bool)
	return flag
}

func marshalInput(input map[string]any) json.RawMessage {
	if len(input) == 0 {
		return nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	return data
}
