// Package channel defines the contract every messaging backend satisfies.
package channel

import (
	"context"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

// Message is a rendered alert ready to send.
type Message struct {
	Text       string
	Attachment *models.Attachment
}

// Receipt is what a channel reports back for a delivered message.
type Receipt struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id,omitempty"`
}

type Channel interface {
	Name() string
	// Configured reports whether the channel has what it needs to attempt a send.
	Configured() bool
	Send(ctx context.Context, msg Message, dest models.Destination) (*Receipt, error)
}

// Status is a channel's configuration and readiness as shown to operators.
type Status struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	State      string `json:"state,omitempty"`
	HasCode    bool   `json:"pairing_code_available,omitempty"`
	Ready      bool   `json:"ready"`
	Detail     string `json:"detail,omitempty"`
}

// StatusReporter is implemented by channels that expose more than a
// configured flag.
type StatusReporter interface {
	Status() Status
}
