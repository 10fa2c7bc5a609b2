// Package apperr defines the error kinds shared by the incident store, the
// channel adapters and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or out-of-range input. Nothing is
// persisted or sent when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ChannelConfigError means a channel was used without the credentials or
// destination it needs.
type ChannelConfigError struct {
	Channel string
	Reason  string
}

func (e *ChannelConfigError) Error() string {
	return fmt.Sprintf("%s: not configured: %s", e.Channel, e.Reason)
}

// ChannelStateError means a stateful channel was used outside its ready
// state, or pointed at a destination it can not write to.
type ChannelStateError struct {
	Channel string
	State   string
	Reason  string
}

func (e *ChannelStateError) Error() string {
	return fmt.Sprintf("%s: %s (state %s)", e.Channel, e.Reason, e.State)
}

// RemoteServiceError wraps a rejection or transport failure from the
// service behind a channel.
type RemoteServiceError struct {
	Channel     string
	StatusCode  int
	Description string
	Err         error
}

func (e *RemoteServiceError) Error() string {
	msg := e.Channel + ": remote service error"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
