package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medagent/voicecall/internal/observability"
	"github.com/medagent/voicecall/internal/protocol"
	"github.com/medagent/voicecall/internal/reliability"
)

// State is the connection state of the transcription socket.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateStreaming     State = "streaming"
	StateFailed        State = "failed"
)

// ErrAuthMissing indicates no transcription credential is configured.
// Fatal: the call cannot transcribe anything without it.
var ErrAuthMissing = errors.New("transcription api key not configured")

type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
	EventFatal   EventType = "fatal"
)

// Event is a transcript or error surfaced by the socket client.
type Event struct {
	Type   EventType
	Text   string
	Detail string
}

// Conn is the subset of *websocket.Conn the client needs; swapped for a
// fake in tests.
type Conn interface {
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Dialer opens a connection to the transcription service.
type Dialer func(ctx context.Context) (Conn, error)

type Config struct {
	URL       string
	APIKey    string
	Reconnect reliability.ReconnectPolicy

	// Dial overrides the websocket dialer; tests use this.
	Dial Dialer
}

// Client maintains a persistent streaming connection to the remote
// recognition service: it authenticates on open, forwards encoded audio
// frames, emits transcript events, and retries failed connections on a
// fixed delay up to the attempt cap. After the cap is exhausted the
// client stays Failed for the remainder of the call and reports that
// exactly once.
type Client struct {
	cfg     Config
	dial    Dialer
	metrics *observability.Metrics
	events  chan Event

	mu             sync.Mutex
	writeMu        sync.Mutex
	state          State
	conn           Conn
	attempts       int
	reconnectTimer *time.Timer
	closed         bool
	terminal       bool
	runCtx         context.Context
}

func NewClient(cfg Config, metrics *observability.Metrics) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAuthMissing
	}
	if cfg.Reconnect.Delay <= 0 {
		cfg.Reconnect.Delay = 2 * time.Second
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		cfg.Reconnect.MaxAttempts = 5
	}
	c := &Client{
		cfg:     cfg,
		metrics: metrics,
		events:  make(chan Event, 256),
		state:   StateDisconnected,
	}
	c.dial = cfg.Dial
	if c.dial == nil {
		c.dial = func(ctx context.Context) (Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	return c, nil
}

// Events delivers transcript and error events. The channel is never
// closed; consumers stop reading on call teardown.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the first connection. ctx bounds the whole call; when it
// is cancelled no further reconnects are scheduled.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
	c.connect()
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	c.state = StateConnecting
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.connectionLost(nil)
		return
	}

	auth := protocol.NewAuthMessage(c.cfg.APIKey, time.Now())
	c.writeMu.Lock()
	err = conn.WriteJSON(auth)
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		c.connectionLost(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	// The service does not acknowledge the auth message before
	// transcripts start flowing, so the client treats itself as ready
	// to stream as soon as the write succeeds.
	c.state = StateAuthenticated
	c.state = StateStreaming
	c.attempts = 0
	c.mu.Unlock()

	go c.readLoop(conn)
}

// Send transmits one encoded PCM frame. Frames offered while the socket
// is not streaming are dropped, never queued.
func (c *Client) Send(pcm []byte) {
	c.mu.Lock()
	conn := c.conn
	streaming := c.state == StateStreaming
	c.mu.Unlock()

	if !streaming || conn == nil {
		if c.metrics != nil {
			c.metrics.CaptureBlocks.WithLabelValues("dropped_not_streaming").Inc()
		}
		return
	}

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, pcm)
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		c.connectionLost(conn)
	}
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			c.connectionLost(conn)
			return
		}

		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch msg.Type {
		case protocol.TypeSessionBegins:
			// informational only
		case protocol.TypePartialTranscript:
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			c.observeTranscript("partial")
			c.emit(Event{Type: EventPartial, Text: msg.Text})
		case protocol.TypeFinalTranscript:
			c.observeTranscript("final")
			c.emit(Event{Type: EventFinal, Text: msg.Text})
		case protocol.TypeError:
			detail := msg.Error
			if strings.TrimSpace(detail) == "" {
				detail = "unknown transcription error"
			}
			c.emit(Event{Type: EventError, Detail: fmt.Sprintf("speech recognition error: %s", detail)})
		}
	}
}

// connectionLost transitions to Failed and schedules one bounded
// reconnection attempt. conn identifies which connection failed so a
// stale read loop cannot tear down its replacement; nil means the
// failure happened before a connection was established.
func (c *Client) connectionLost(conn Conn) {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateFailed

	if c.runCtx != nil && c.runCtx.Err() != nil {
		c.mu.Unlock()
		return
	}

	delay, ok := c.cfg.Reconnect.Next(c.attempts)
	if !ok {
		c.terminal = true
		attempts := c.attempts
		c.mu.Unlock()
		c.emit(Event{
			Type:   EventFatal,
			Detail: fmt.Sprintf("transcription unavailable after %d reconnection attempts", attempts),
		})
		return
	}
	c.attempts++
	if c.metrics != nil {
		c.metrics.SocketReconnects.Inc()
	}
	c.reconnectTimer = time.AfterFunc(delay, c.connect)
	c.mu.Unlock()
}

// Close tears the socket down. Idempotent, callable from any state.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	timer := c.reconnectTimer
	c.reconnectTimer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) observeTranscript(kind string) {
	if c.metrics != nil {
		c.metrics.TranscriptEvents.WithLabelValues(kind).Inc()
	}
}

// emit never blocks; if the consumer has fallen this far behind the
// event is dropped.
func (c *Client) emit(evt Event) {
	select {
	case c.events <- evt:
	default:
	}
}
