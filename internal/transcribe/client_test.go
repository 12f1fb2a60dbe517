package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/medagent/voicecall/internal/observability"
	"github.com/medagent/voicecall/internal/protocol"
	"github.com/medagent/voicecall/internal/reliability"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_transcribe_%d", time.Now().UnixNano()))
}

type fakeConn struct {
	mu       sync.Mutex
	json     []any
	binary   [][]byte
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.json = append(f.json, v)
	return nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = append(f.binary, data)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.incoming:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) serve(t *testing.T, msgType protocol.MessageType, text string) {
	t.Helper()
	data, err := json.Marshal(map[string]string{"message_type": string(msgType), "text": text})
	if err != nil {
		t.Fatalf("marshal server message: %v", err)
	}
	f.incoming <- data
}

func TestClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "}, testMetrics())
	if !errors.Is(err, ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
}

func TestClientAuthenticatesAndStreams(t *testing.T) {
	conn := newFakeConn()
	client, err := NewClient(Config{
		APIKey: "secret",
		Dial: func(context.Context) (Conn, error) {
			return conn, nil
		},
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Start(context.Background())

	if got := client.State(); got != StateStreaming {
		t.Fatalf("expected streaming state, got %q", got)
	}

	conn.mu.Lock()
	if len(conn.json) != 1 {
		conn.mu.Unlock()
		t.Fatalf("expected exactly one auth message, got %d", len(conn.json))
	}
	auth, ok := conn.json[0].(protocol.AuthMessage)
	conn.mu.Unlock()
	if !ok {
		t.Fatalf("expected AuthMessage, got %T", conn.json[0])
	}
	if auth.Token != "secret" {
		t.Fatalf("unexpected auth token %q", auth.Token)
	}
	if _, err := time.Parse(time.RFC3339, auth.ExpiresAt); err != nil {
		t.Fatalf("expires_at not RFC3339: %v", err)
	}

	client.Send([]byte{0x01, 0x02})
	conn.mu.Lock()
	frames := len(conn.binary)
	conn.mu.Unlock()
	if frames != 1 {
		t.Fatalf("expected one forwarded frame, got %d", frames)
	}
}

func TestClientEmitsTranscriptEvents(t *testing.T) {
	conn := newFakeConn()
	client, err := NewClient(Config{
		APIKey: "secret",
		Dial: func(context.Context) (Conn, error) {
			return conn, nil
		},
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Start(context.Background())

	conn.serve(t, protocol.TypeSessionBegins, "")
	conn.serve(t, protocol.TypePartialTranscript, "   ")
	conn.serve(t, protocol.TypePartialTranscript, "hello th")
	conn.serve(t, protocol.TypeFinalTranscript, "")
	conn.serve(t, protocol.TypeFinalTranscript, "hello there")

	want := []Event{
		{Type: EventPartial, Text: "hello th"},
		{Type: EventFinal, Text: ""},
		{Type: EventFinal, Text: "hello there"},
	}
	for i, expected := range want {
		select {
		case got := <-client.Events():
			if got.Type != expected.Type || got.Text != expected.Text {
				t.Fatalf("event %d: got %+v, want %+v", i, got, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestClientDropsFramesWhenNotStreaming(t *testing.T) {
	client, err := NewClient(Config{
		APIKey: "secret",
		Dial: func(context.Context) (Conn, error) {
			return nil, errors.New("unreachable")
		},
		Reconnect: reliability.ReconnectPolicy{Delay: time.Hour, MaxAttempts: 5},
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Start(context.Background())
	client.Send([]byte{0x01})

	if got := client.State(); got != StateFailed {
		t.Fatalf("expected failed state, got %q", got)
	}
}

func TestClientStopsAfterReconnectCap(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	client, err := NewClient(Config{
		APIKey: "secret",
		Dial: func(context.Context) (Conn, error) {
			mu.Lock()
			dials++
			mu.Unlock()
			return nil, errors.New("unreachable")
		},
		Reconnect: reliability.ReconnectPolicy{Delay: 5 * time.Millisecond, MaxAttempts: 5},
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Start(context.Background())

	var fatal Event
	select {
	case fatal = <-client.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal error")
	}
	if fatal.Type != EventFatal {
		t.Fatalf("expected fatal event, got %+v", fatal)
	}

	// Give any stray timers a chance to fire before counting.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	total := dials
	mu.Unlock()
	if total != 6 {
		t.Fatalf("expected 1 initial dial plus 5 reconnects, got %d dials", total)
	}
	if got := client.State(); got != StateFailed {
		t.Fatalf("expected failed state, got %q", got)
	}

	select {
	case evt := <-client.Events():
		t.Fatalf("unexpected extra event after terminal error: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientRecoversAfterReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newFakeConn()
	client, err := NewClient(Config{
		APIKey: "secret",
		Dial: func(context.Context) (Conn, error) {
			mu.Lock()
			dials++
			n := dials
			mu.Unlock()
			if n == 1 {
				return nil, errors.New("unreachable")
			}
			return conn, nil
		},
		Reconnect: reliability.ReconnectPolicy{Delay: 5 * time.Millisecond, MaxAttempts: 5},
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	client.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for client.State() != StateStreaming {
		if time.Now().After(deadline) {
			t.Fatalf("client never recovered, state %q", client.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.serve(t, protocol.TypeFinalTranscript, "back online")
	select {
	case got := <-client.Events():
		if got.Type != EventFinal || got.Text != "back online" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transcript after reconnect")
	}
}
