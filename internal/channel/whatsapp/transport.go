package whatsapp

import (
	"context"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventAuthFailure   EventType = "auth_failure"
	EventReady         EventType = "ready"
	EventDisconnected  EventType = "disconnected"
)

// Event is a session lifecycle notification from the transport.
type Event struct {
	Type    EventType `json:"type"`
	QR      string    `json:"qr,omitempty"`
	Session []byte    `json:"session,omitempty"` // set on authenticated
	Reason  string    `json:"reason,omitempty"`
}

type Chat struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsGroup   bool   `json:"is_group"`
	IsChannel bool   `json:"is_channel"`
	ReadOnly  bool   `json:"read_only"`
}

type OutgoingMessage struct {
	ChatID     string             `json:"chat_id"`
	Text       string             `json:"text"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
}

// Transport is the wire side of a session. Start begins connecting, resuming
// session when it is non-nil, and returns the lifecycle event stream. The
// stream is closed when the connection ends or ctx is cancelled.
type Transport interface {
	Start(ctx context.Context, session []byte) (<-chan Event, error)
	Chats(ctx context.Context) ([]Chat, error)
	Send(ctx context.Context, msg OutgoingMessage) (string, error)
	Close() error
}
