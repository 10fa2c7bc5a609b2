package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel"
	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTransport struct {
	mu       sync.Mutex
	events   chan Event
	starts   int
	session  []byte
	chats    []Chat
	sent     []OutgoingMessage
	sendErr  error
	startErr error
	closed   bool
	// entered and gate, when set, hold Start open until gate is closed.
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeTransport) Start(_ context.Context, session []byte) (<-chan Event, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.starts++
	f.session = session
	f.events = make(chan Event, 8)
	return f.events, nil
}

func (f *fakeTransport) Chats(context.Context) ([]Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats, nil
}

func (f *fakeTransport) Send(_ context.Context, msg OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	return "wamid-1", nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) emit(ev Event) {
	f.mu.Lock()
	ch := f.events
	f.mu.Unlock()
	ch <- ev
}

func (f *fakeTransport) sentMessages() []OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutgoingMessage(nil), f.sent...)
}

type memSessions struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string][]byte{}}
}

func (s *memSessions) LoadSession(_ context.Context, ch string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[ch], nil
}

func (s *memSessions) SaveSession(_ context.Context, ch string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ch] = data
	return nil
}

func (s *memSessions) DeleteSession(_ context.Context, ch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, ch)
	return nil
}

func (s *memSessions) get(ch string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[ch]
}

func newTestManager(t *testing.T, tr *fakeTransport, opts Options) (*Manager, *memSessions) {
	t.Helper()
	sessions := newMemSessions()
	m := NewManager(tr, sessions, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, sessions
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, time.Second, 5*time.Millisecond,
		"expected state %s, got %s", want, m.State())
}

func readyManager(t *testing.T, tr *fakeTransport, opts Options) *Manager {
	t.Helper()
	m, _ := newTestManager(t, tr, opts)
	_, err := m.Init(context.Background())
	require.NoError(t, err)
	tr.emit(Event{Type: EventAuthenticated, Session: []byte("blob")})
	tr.emit(Event{Type: EventReady})
	waitForState(t, m, StateReady)
	return m
}

func TestManager_PairingFlow(t *testing.T) {
	tr := &fakeTransport{}
	met := metrics.NewForTesting()
	m, sessions := newTestManager(t, tr, Options{Metrics: met})

	assert.Equal(t, StateUnpaired, m.State())
	_, _, err := m.PairingCode()
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	st, err := m.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePairing, st)

	tr.emit(Event{Type: EventQR, QR: "2@abcdef,ghijk,lmnop"})
	require.Eventually(t, func() bool { return m.Status().HasCode }, time.Second, 5*time.Millisecond)

	code, png, err := m.PairingCode()
	require.NoError(t, err)
	assert.Equal(t, "2@abcdef,ghijk,lmnop", code)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	tr.emit(Event{Type: EventAuthenticated, Session: []byte("session-blob")})
	waitForState(t, m, StateAuthenticated)
	assert.Equal(t, []byte("session-blob"), sessions.get(Name))
	assert.False(t, m.Status().HasCode)

	tr.emit(Event{Type: EventReady})
	waitForState(t, m, StateReady)
	assert.True(t, m.Status().Ready)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.SessionReady))
}

func TestManager_ConcurrentInitStartsOnce(t *testing.T) {
	tr := &fakeTransport{entered: make(chan struct{}, 8), gate: make(chan struct{})}
	m, _ := newTestManager(t, tr, Options{})

	const n = 8
	var wg sync.WaitGroup
	states := make([]State, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			states[i], errs[i] = m.Init(context.Background())
		}()
	}

	select {
	case <-tr.entered:
	case <-time.After(time.Second):
		t.Fatal("transport was never started")
	}

	// Status reads must not wait on the bridge.
	statusDone := make(chan channel.Status, 1)
	go func() { statusDone <- m.Status() }()
	select {
	case st := <-statusDone:
		assert.Equal(t, string(StateUnpaired), st.State)
	case <-time.After(time.Second):
		t.Fatal("Status blocked while the transport was starting")
	}

	close(tr.gate)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, StatePairing, states[i])
	}
	tr.mu.Lock()
	assert.Equal(t, 1, tr.starts)
	tr.mu.Unlock()
	assert.Equal(t, StatePairing, m.State())
}

func TestManager_InitIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, Options{})

	for range 3 {
		st, err := m.Init(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatePairing, st)
	}
	assert.Equal(t, 1, tr.starts)

	tr.emit(Event{Type: EventReady})
	waitForState(t, m, StateReady)

	st, err := m.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, st)
	assert.Equal(t, 1, tr.starts)
}

func TestManager_ResumesStoredSession(t *testing.T) {
	tr := &fakeTransport{}
	m, sessions := newTestManager(t, tr, Options{})
	require.NoError(t, sessions.SaveSession(context.Background(), Name, []byte("stored")))

	_, err := m.Init(context.Background())
	require.NoError(t, err)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []byte("stored"), tr.session)
}

func TestManager_AuthFailureDiscardsSession(t *testing.T) {
	tr := &fakeTransport{}
	m, sessions := newTestManager(t, tr, Options{})
	require.NoError(t, sessions.SaveSession(context.Background(), Name, []byte("stale")))

	_, err := m.Init(context.Background())
	require.NoError(t, err)
	tr.emit(Event{Type: EventAuthFailure, Reason: "session expired"})

	waitForState(t, m, StateUnpaired)
	require.Eventually(t, func() bool { return sessions.get(Name) == nil }, time.Second, 5*time.Millisecond)
	assert.Contains(t, m.Status().Detail, "session expired")

	// A fresh Init pairs from scratch.
	st, err := m.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePairing, st)
	assert.Equal(t, 2, tr.starts)
	tr.mu.Lock()
	assert.Nil(t, tr.session)
	tr.mu.Unlock()
}

func TestManager_DisconnectReturnsToUnpaired(t *testing.T) {
	tr := &fakeTransport{}
	met := metrics.NewForTesting()
	m := readyManager(t, tr, Options{Metrics: met})

	tr.emit(Event{Type: EventDisconnected, Reason: "phone offline"})
	waitForState(t, m, StateUnpaired)
	assert.Equal(t, 0.0, testutil.ToFloat64(met.SessionReady))

	_, err := m.Send(context.Background(), channel.Message{Text: "x"}, models.Destination{Contact: "+357 99 123456"})
	var stateErr *apperr.ChannelStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestManager_SendBeforeReady(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, Options{GroupID: "123@g.us"})

	_, err := m.Init(context.Background())
	require.NoError(t, err)

	_, err = m.Send(context.Background(), channel.Message{Text: "x"}, models.Destination{})
	var stateErr *apperr.ChannelStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(StatePairing), stateErr.State)
	assert.Empty(t, tr.sentMessages())
}

func TestManager_DestinationResolution(t *testing.T) {
	chats := []Chat{
		{ID: "111@newsletter", Name: "Limassol Fire Updates", IsChannel: true},
		{ID: "222@newsletter", Name: "Civil Defence", IsChannel: true, ReadOnly: true},
		{ID: "333@g.us", Name: "Volunteers", IsGroup: true},
	}

	cases := []struct {
		name     string
		opts     Options
		dest     models.Destination
		wantChat string
		wantErr  any
	}{
		{
			name:     "contact wins",
			opts:     Options{GroupID: "333@g.us"},
			dest:     models.Destination{Contact: "+357 99-123456", ChannelName: "Limassol Fire Updates"},
			wantChat: "35799123456@c.us",
		},
		{
			name:     "channel by name",
			opts:     Options{GroupID: "333@g.us"},
			dest:     models.Destination{ChannelName: "limassol fire updates"},
			wantChat: "111@newsletter",
		},
		{
			name:     "channel by id",
			dest:     models.Destination{ChannelID: "111@newsletter"},
			wantChat: "111@newsletter",
		},
		{
			name:     "bound group fallback",
			opts:     Options{GroupID: "333@g.us"},
			wantChat: "333@g.us",
		},
		{
			name:     "configured default destination",
			opts:     Options{Defaults: models.Destination{ChannelName: "Limassol Fire Updates"}, GroupID: "333@g.us"},
			wantChat: "111@newsletter",
		},
		{
			name:    "unknown channel does not fall back",
			opts:    Options{GroupID: "333@g.us"},
			dest:    models.Destination{ChannelName: "Paphos"},
			wantErr: &apperr.ChannelConfigError{},
		},
		{
			name:    "read-only channel",
			dest:    models.Destination{ChannelName: "Civil Defence"},
			wantErr: &apperr.ChannelStateError{},
		},
		{
			name:    "nothing to send to",
			wantErr: &apperr.ChannelConfigError{},
		},
		{
			name:    "bad contact",
			dest:    models.Destination{Contact: "fire chief"},
			wantErr: &apperr.ValidationError{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &fakeTransport{chats: chats}
			m := readyManager(t, tr, tc.opts)

			receipt, err := m.Send(context.Background(), channel.Message{Text: "Evacuate now"}, tc.dest)

			switch want := tc.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tc.wantChat, receipt.ChatID)
				assert.Equal(t, "wamid-1", receipt.MessageID)
				sent := tr.sentMessages()
				require.Len(t, sent, 1)
				assert.Equal(t, tc.wantChat, sent[0].ChatID)
				assert.Equal(t, "Evacuate now", sent[0].Text)
			case *apperr.ChannelConfigError:
				assert.ErrorAs(t, err, &want)
				assert.Empty(t, tr.sentMessages())
			case *apperr.ChannelStateError:
				assert.ErrorAs(t, err, &want)
				assert.Empty(t, tr.sentMessages())
			case *apperr.ValidationError:
				assert.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestManager_TransportErrorBecomesRemote(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("connection reset")}
	m := readyManager(t, tr, Options{GroupID: "333@g.us"})

	_, err := m.Send(context.Background(), channel.Message{Text: "x"}, models.Destination{})
	var remote *apperr.RemoteServiceError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, Name, remote.Channel)
}

func TestManager_BindGroup(t *testing.T) {
	tr := &fakeTransport{chats: []Chat{{ID: "333@g.us", Name: "Volunteers", IsGroup: true}}}

	unready, _ := newTestManager(t, &fakeTransport{}, Options{})
	require.NoError(t, unready.BindGroup(context.Background(), "999@g.us"))
	assert.Equal(t, "999@g.us", unready.Group())

	m := readyManager(t, tr, Options{})
	assert.True(t, apperr.IsValidation(m.BindGroup(context.Background(), "  ")))

	var cfgErr *apperr.ChannelConfigError
	assert.ErrorAs(t, m.BindGroup(context.Background(), "404@g.us"), &cfgErr)

	require.NoError(t, m.BindGroup(context.Background(), "333@g.us"))
	_, err := m.Send(context.Background(), channel.Message{Text: "x"}, models.Destination{})
	require.NoError(t, err)
	assert.Equal(t, "333@g.us", tr.sentMessages()[0].ChatID)
}

func TestManager_StartFailure(t *testing.T) {
	tr := &fakeTransport{startErr: errors.New("bridge down")}
	m, _ := newTestManager(t, tr, Options{})

	st, err := m.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnpaired, st)
	assert.Contains(t, m.Status().Detail, "bridge down")
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(nil, nil, Options{})

	assert.False(t, m.Configured())
	assert.False(t, m.Status().Configured)

	var cfgErr *apperr.ChannelConfigError
	_, err := m.Init(context.Background())
	assert.ErrorAs(t, err, &cfgErr)
	_, err = m.Send(context.Background(), channel.Message{Text: "x"}, models.Destination{})
	assert.ErrorAs(t, err, &cfgErr)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ShutdownClosesTransport(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, nil, Options{})

	_, err := m.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Equal(t, StateUnpaired, m.State())
	assert.True(t, tr.closed)
}
