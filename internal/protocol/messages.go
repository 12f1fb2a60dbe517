package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies inbound realtime transcription payload variants.
type MessageType string

const (
	TypeSessionBegins     MessageType = "SessionBegins"
	TypePartialTranscript MessageType = "PartialTranscript"
	TypeFinalTranscript   MessageType = "FinalTranscript"
	TypeError             MessageType = "Error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// AuthMessage is the single control message sent right after the socket
// opens. ExpiresAt is an ISO8601 timestamp one hour in the future.
type AuthMessage struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// NewAuthMessage builds the authentication message for the given token,
// stamped relative to now.
func NewAuthMessage(token string, now time.Time) AuthMessage {
	return AuthMessage{
		Token:     token,
		ExpiresAt: now.Add(time.Hour).UTC().Format(time.RFC3339),
	}
}

type envelope struct {
	MessageType MessageType `json:"message_type"`
}

// ServerMessage is a decoded inbound message from the transcription
// service. Text is set for transcript types, Error for the error type.
type ServerMessage struct {
	Type  MessageType
	Text  string
	Error string
}

// ParseServerMessage decodes a raw inbound frame, dispatching on the
// message_type tag.
func ParseServerMessage(raw []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ServerMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.MessageType {
	case TypeSessionBegins:
		return ServerMessage{Type: TypeSessionBegins}, nil
	case TypePartialTranscript, TypeFinalTranscript:
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{Type: env.MessageType, Text: msg.Text}, nil
	case TypeError:
		var msg struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{Type: TypeError, Error: msg.Error}, nil
	default:
		return ServerMessage{}, fmt.Errorf("%w: %q", ErrUnsupportedType, env.MessageType)
	}
}
