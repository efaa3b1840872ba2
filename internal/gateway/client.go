// Package gateway implements the WebSocket client for the live chunk feed.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"convlog/internal/stream"

	"github.com/gorilla/websocket"
)

// ConnectionState tracks the feed connection lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client manages the WebSocket connection to the runtime feed and delivers
// decoded chunks in arrival order.
type Client struct {
	mu        sync.RWMutex
	conn      *websocket.Conn
	state     ConnectionState
	sessionID string

	onChunk       func(stream.Chunk)
	onStateChange func(ConnectionState)
}

// NewClient creates a disconnected client.
func NewClient() *Client {
	return &Client{state: StateDisconnected}
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID returns the session announced by the feed's hello frame.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// OnChunk sets the handler for incoming chunks. Chunks are delivered from a
// single goroutine, preserving arrival order.
func (c *Client) OnChunk(fn func(stream.Chunk)) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

// OnStateChange sets the handler for connection state changes.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Connect dials the feed and waits for the hello frame announcing the
// session.
func (c *Client) Connect(feedURL string) error {
	c.setState(StateConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.Dial(feedURL, nil)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("websocket dial: %w", err)
	}

	var hello Frame
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != FrameHello {
		conn.Close()
		c.setState(StateError)
		if err == nil {
			err = fmt.Errorf("unexpected frame %q", hello.Type)
		}
		return fmt.Errorf("waiting for hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.sessionID = hello.SessionID
	c.mu.Unlock()

	c.setState(StateConnected)
	go c.readLoop()
	return nil
}

// Close disconnects from the feed. StateDisconnected is reported by the read
// loop once it observes the closed connection, never from the closing
// goroutine, so the disconnect callback is always sequenced after the last
// in-flight chunk delivery.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

func (c *Client) readLoop() {
	defer c.setState(StateDisconnected)

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Client) handleFrame(f *Frame) {
	switch f.Type {
	case FrameChunk:
		chunk, ok := DecodeChunk(f)
		if !ok {
			return
		}
		c.mu.RLock()
		cb := c.onChunk
		c.mu.RUnlock()
		if cb != nil {
			cb(chunk)
		}
	case FrameBye:
		c.Close()
	}
}
