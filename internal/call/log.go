package call

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry; Timestamp is unix milliseconds.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp int64
}

// Log holds the conversation in insertion order and rejects duplicates:
// a message with the same role and content as an existing entry whose
// timestamp lies within the dedup window is dropped.
type Log struct {
	mu       sync.Mutex
	window   time.Duration
	messages []Message
}

func NewLog(window time.Duration) *Log {
	if window <= 0 {
		window = time.Second
	}
	return &Log{window: window}
}

// Append records a message unless it duplicates a recent entry. The
// returned bool reports whether the message was actually added.
func (l *Log) Append(role Role, content string, at time.Time) (Message, bool) {
	ts := at.UnixMilli()

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.messages) - 1; i >= 0; i-- {
		existing := l.messages[i]
		if existing.Role != role || existing.Content != content {
			continue
		}
		delta := ts - existing.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta < l.window.Milliseconds() {
			return Message{}, false
		}
	}

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	l.messages = append(l.messages, msg)
	return msg, true
}

func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}
