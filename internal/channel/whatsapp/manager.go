// Package whatsapp implements the session-based messaging channel. A Manager
// owns the pairing lifecycle and relays sends through a Transport.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel"
	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/repository"
)

const Name = "whatsapp"

type State string

const (
	StateUnpaired      State = "unpaired"
	StatePairing       State = "pairing"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
)

const qrSize = 256

type Options struct {
	// Defaults is used when a send carries no destination.
	Defaults models.Destination
	// GroupID is the initially bound fallback group.
	GroupID string
	Metrics *metrics.Metrics
}

type Manager struct {
	transport Transport
	sessions  repository.SessionStore
	metrics   *metrics.Metrics
	defaults  models.Destination

	mu       sync.RWMutex
	state    State
	qr       string
	group    string
	lastErr  string
	running  bool
	starting bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewManager returns a manager in the unpaired state. A nil transport means
// the channel is disabled; it still reports status but never sends.
func NewManager(t Transport, sessions repository.SessionStore, opts Options) *Manager {
	m := &Manager{
		transport: t,
		sessions:  sessions,
		metrics:   opts.Metrics,
		defaults:  opts.Defaults,
		group:     opts.GroupID,
		state:     StateUnpaired,
	}
	m.setReadyGauge(false)
	return m
}

func (m *Manager) Name() string { return Name }

func (m *Manager) Configured() bool { return m.transport != nil }

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Status() channel.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return channel.Status{
		Name:       Name,
		Configured: m.transport != nil,
		State:      string(m.state),
		HasCode:    m.qr != "",
		Ready:      m.state == StateReady,
		Detail:     m.lastErr,
	}
}

// Init starts the session if none is running and returns the resulting
// state. Calling it while a session is already starting or up is a no-op
// that reports the current state.
func (m *Manager) Init(ctx context.Context) (State, error) {
	if m.transport == nil {
		return StateUnpaired, &apperr.ChannelConfigError{Channel: Name, Reason: "session bridge is not configured"}
	}

	m.mu.Lock()
	if m.running {
		st := m.state
		m.mu.Unlock()
		return st, nil
	}
	if m.starting {
		m.mu.Unlock()
		return StatePairing, nil
	}
	m.starting = true
	m.mu.Unlock()

	// The bridge round trips happen unlocked so status reads and sends on
	// other goroutines are not held up.
	var session []byte
	if m.sessions != nil {
		var err error
		session, err = m.sessions.LoadSession(ctx, Name)
		if err != nil {
			m.mu.Lock()
			m.starting = false
			m.mu.Unlock()
			return StateUnpaired, fmt.Errorf("load session: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	events, err := m.transport.Start(runCtx, session)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if err != nil {
		cancel()
		m.lastErr = err.Error()
		return m.state, fmt.Errorf("start session: %w", err)
	}

	m.running = true
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.lastErr = ""
	m.state = StatePairing
	slog.Info("whatsapp session starting", "resumed", session != nil)

	go m.loop(runCtx, events, m.loopDone)
	return m.state, nil
}

// Shutdown stops the event loop and closes the transport.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.transport == nil {
		return nil
	}

	m.mu.Lock()
	cancel, done := m.cancel, m.loopDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.transport.Close()
}

func (m *Manager) loop(ctx context.Context, events <-chan Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			m.stop("")
			return
		case ev, ok := <-events:
			if !ok {
				m.stop("event stream closed")
				return
			}
			if !m.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle applies ev and reports whether the loop should keep running.
func (m *Manager) handle(ctx context.Context, ev Event) bool {
	switch ev.Type {
	case EventQR:
		m.mu.Lock()
		m.state = StatePairing
		m.qr = ev.QR
		m.mu.Unlock()
		slog.Info("whatsapp pairing code received")

	case EventAuthenticated:
		m.mu.Lock()
		m.state = StateAuthenticated
		m.qr = ""
		m.mu.Unlock()
		if ev.Session != nil && m.sessions != nil {
			if err := m.sessions.SaveSession(ctx, Name, ev.Session); err != nil {
				slog.Error("failed to persist whatsapp session", "error", err)
			}
		}
		slog.Info("whatsapp session authenticated")

	case EventReady:
		m.mu.Lock()
		m.state = StateReady
		m.mu.Unlock()
		m.setReadyGauge(true)
		slog.Info("whatsapp session ready")

	case EventAuthFailure:
		if m.sessions != nil {
			if err := m.sessions.DeleteSession(ctx, Name); err != nil {
				slog.Error("failed to discard whatsapp session", "error", err)
			}
		}
		slog.Warn("whatsapp authentication failed", "reason", ev.Reason)
		m.stop(reason("authentication failed", ev.Reason))
		return false

	case EventDisconnected:
		slog.Warn("whatsapp session disconnected", "reason", ev.Reason)
		m.stop(reason("disconnected", ev.Reason))
		return false

	default:
		slog.Debug("ignoring unknown whatsapp event", "type", ev.Type)
	}
	return true
}

// stop returns the manager to unpaired so a later Init starts over.
func (m *Manager) stop(detail string) {
	m.mu.Lock()
	m.state = StateUnpaired
	m.qr = ""
	m.running = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if detail != "" {
		m.lastErr = detail
	}
	m.mu.Unlock()
	m.setReadyGauge(false)
}

// PairingCode returns the current pairing code and its QR rendering as PNG.
func (m *Manager) PairingCode() (string, []byte, error) {
	m.mu.RLock()
	code := m.qr
	m.mu.RUnlock()

	if code == "" {
		return "", nil, apperr.ErrNotFound
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return "", nil, fmt.Errorf("render pairing code: %w", err)
	}
	return code, png, nil
}

// BindGroup sets the fallback group. When the session is ready the group is
// checked against the account's chats first.
func (m *Manager) BindGroup(ctx context.Context, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return apperr.Invalid("group_id", "is required")
	}

	if m.State() == StateReady {
		chats, err := m.transport.Chats(ctx)
		if err != nil {
			return err
		}
		chat := findChat(chats, func(c Chat) bool { return c.IsGroup && c.ID == groupID })
		if chat == nil {
			return &apperr.ChannelConfigError{Channel: Name, Reason: fmt.Sprintf("group %q not found", groupID)}
		}
	}

	m.mu.Lock()
	m.group = groupID
	m.mu.Unlock()
	slog.Info("whatsapp group bound", "group_id", groupID)
	return nil
}

func (m *Manager) Group() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.group
}

// Send delivers msg once the session is ready. The recipient is the contact
// if given, else the named or identified broadcast channel, else the bound
// group.
func (m *Manager) Send(ctx context.Context, msg channel.Message, dest models.Destination) (*channel.Receipt, error) {
	if m.transport == nil {
		return nil, &apperr.ChannelConfigError{Channel: Name, Reason: "session bridge is not configured"}
	}
	if st := m.State(); st != StateReady {
		return nil, &apperr.ChannelStateError{Channel: Name, State: string(st), Reason: "session not ready"}
	}

	chatID, err := m.resolve(ctx, dest)
	if err != nil {
		return nil, err
	}

	id, err := m.transport.Send(ctx, OutgoingMessage{ChatID: chatID, Text: msg.Text, Attachment: msg.Attachment})
	if err != nil {
		var remote *apperr.RemoteServiceError
		if errors.As(err, &remote) {
			return nil, err
		}
		return nil, &apperr.RemoteServiceError{Channel: Name, Err: err}
	}
	return &channel.Receipt{Channel: Name, Success: true, MessageID: id, ChatID: chatID}, nil
}

func (m *Manager) resolve(ctx context.Context, dest models.Destination) (string, error) {
	if dest.IsZero() {
		dest = m.defaults
	}

	if dest.Contact != "" {
		return contactChatID(dest.Contact)
	}

	if dest.ChannelID != "" || dest.ChannelName != "" {
		chats, err := m.transport.Chats(ctx)
		if err != nil {
			return "", err
		}
		chat := findChat(chats, func(c Chat) bool {
			if !c.IsChannel {
				return false
			}
			if dest.ChannelID != "" {
				return c.ID == dest.ChannelID
			}
			return strings.EqualFold(c.Name, dest.ChannelName)
		})
		if chat == nil {
			return "", &apperr.ChannelConfigError{Channel: Name, Reason: fmt.Sprintf("broadcast channel %q not found", firstNonEmpty(dest.ChannelID, dest.ChannelName))}
		}
		if chat.ReadOnly {
			return "", &apperr.ChannelStateError{Channel: Name, State: string(StateReady), Reason: fmt.Sprintf("broadcast channel %q is read-only", chat.Name)}
		}
		return chat.ID, nil
	}

	if g := m.Group(); g != "" {
		return g, nil
	}
	return "", &apperr.ChannelConfigError{Channel: Name, Reason: "no contact, broadcast channel or bound group"}
}

// contactChatID turns a phone number in any common notation into a chat id.
func contactChatID(contact string) (string, error) {
	if strings.HasSuffix(contact, "@c.us") {
		return contact, nil
	}
	var b strings.Builder
	for _, r := range contact {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", apperr.Invalid("destination.contact", "%q is not a phone number", contact)
	}
	return b.String() + "@c.us", nil
}

func findChat(chats []Chat, match func(Chat) bool) *Chat {
	for i := range chats {
		if match(chats[i]) {
			return &chats[i]
		}
	}
	return nil
}

func (m *Manager) setReadyGauge(ready bool) {
	if m.metrics == nil {
		return
	}
	if ready {
		m.metrics.SessionReady.Set(1)
	} else {
		m.metrics.SessionReady.Set(0)
	}
}

func reason(prefix, detail string) string {
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
