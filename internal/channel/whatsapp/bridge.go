package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
)

const (
	defaultPongWait = 60 * time.Second
	writeWait       = 10 * time.Second
	maxEventSize    = 64 << 10
	eventQueueSize  = 16
)

// Bridge is a Transport that talks to a session bridge sidecar: REST calls
// for commands and a websocket for lifecycle events.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	// pongWait bounds how long the event stream may stay silent. Pings go
	// out at nine tenths of it.
	pongWait time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout},
		pongWait:   defaultPongWait,
	}
}

type startRequest struct {
	Session []byte `json:"session,omitempty"`
}

func (b *Bridge) Start(ctx context.Context, session []byte) (<-chan Event, error) {
	if err := b.doJSON(ctx, http.MethodPost, "/session/start", startRequest{Session: session}, nil); err != nil {
		return nil, err
	}

	wsURL, err := b.eventsURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := b.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &apperr.RemoteServiceError{Channel: Name, Description: "dial event stream", Err: err}
	}

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()

	events := make(chan Event, eventQueueSize)
	done := make(chan struct{})
	go b.readPump(ctx, conn, events, done)
	go b.pingPump(ctx, conn, done)
	return events, nil
}

func (b *Bridge) readPump(ctx context.Context, conn *websocket.Conn, events chan<- Event, done chan<- struct{}) {
	defer close(events)
	defer close(done)
	defer conn.Close()

	extend := func() { conn.SetReadDeadline(time.Now().Add(b.pongWait)) }
	conn.SetReadLimit(maxEventSize)
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("whatsapp bridge stream error", "error", err)
			}
			select {
			case events <- Event{Type: EventDisconnected, Reason: err.Error()}:
			case <-ctx.Done():
			}
			return
		}
		extend()

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// pingPump keeps a quiet stream alive. It closes the connection when ctx
// ends, which unblocks readPump.
func (b *Bridge) pingPump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(b.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			// WriteControl is safe alongside the pong replies in readPump.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Warn("whatsapp bridge ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (b *Bridge) Chats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := b.doJSON(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

type sendResponse struct {
	ID string `json:"id"`
}

func (b *Bridge) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	var resp sendResponse
	if err := b.doJSON(ctx, http.MethodPost, "/messages", msg, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

func (b *Bridge) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &apperr.RemoteServiceError{Channel: Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var er errorResponse
		desc := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			desc = er.Error
		}
		return &apperr.RemoteServiceError{Channel: Name, StatusCode: resp.StatusCode, Description: desc}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.RemoteServiceError{Channel: Name, StatusCode: resp.StatusCode, Description: "unparseable response", Err: err}
	}
	return nil
}

func (b *Bridge) eventsURL() (string, error) {
	u, err := url.Parse(b.baseURL + "/events")
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
