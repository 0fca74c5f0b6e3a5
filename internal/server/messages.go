package server

import (
	"fmt"
	"time"
)

// Inbound message types. The set is closed: anything else is a protocol
// error, not silently ignored.
const (
	TypeJoin = "join"
	TypeChat = "chat"
)

// Outbound message types.
const (
	TypeMessage = "message"
	TypeError   = "error"
)

// ClientMessage is the envelope for frames received from a client.
type ClientMessage struct {
	Type      string `json:"type"`
	CarpoolId string `json:"carpool_id"`
	UserId    int    `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message,omitempty"`

	client *Client
}

func (m *ClientMessage) validate() error {
	switch m.Type {
	case TypeJoin:
	case TypeChat:
		if m.Message == "" {
			return fmt.Errorf("chat message cannot be empty")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}

	if m.CarpoolId == "" {
		return fmt.Errorf("carpool id cannot be empty")
	}

	return nil
}

// ServerMessage is the envelope for frames sent to clients. A frame of type
// "message" is also the payload published on the shared channel.
type ServerMessage struct {
	Type      string    `json:"type"`
	MessageId int       `json:"message_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func errFrame(msg string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		Error:     msg,
		Timestamp: Now(),
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
