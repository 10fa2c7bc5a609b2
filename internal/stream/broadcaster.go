// Package stream fans committed incident changes out to live subscribers.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

const bufferSize = 64

type Broadcaster struct {
	subscribers map[uint64]chan *models.IncidentEvent
	nextID      atomic.Uint64
	closed      bool
	mu          sync.RWMutex
	metrics     *metrics.Metrics
}

// NewBroadcaster returns an empty broadcaster. m may be nil.
func NewBroadcaster(m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.IncidentEvent),
		metrics:     m,
	}
}

// Subscribe registers a new subscriber. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.IncidentEvent) {
	id := b.nextID.Add(1)
	ch := make(chan *models.IncidentEvent, bufferSize)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast never blocks: a subscriber whose buffer is full misses ev.
func (b *Broadcaster) Broadcast(ev *models.IncidentEvent) {
	if b.metrics != nil {
		b.metrics.IncidentEvents.WithLabelValues(string(ev.Type)).Inc()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping incident event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels so their readers exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
