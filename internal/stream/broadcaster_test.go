package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func created(id int64) *models.IncidentEvent {
	return &models.IncidentEvent{
		Type:       models.IncidentCreated,
		IncidentID: id,
		Incident:   &models.Incident{ID: id, Latitude: 34.6857, Longitude: 33.0437},
		OccurredAt: time.Now().UTC(),
	}
}

func TestBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)

	id, ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	default:
		t.Error("channel should be closed and readable")
	}

	// Unsubscribing twice is harmless.
	b.Unsubscribe(id)
}

func TestBroadcaster_Broadcast(t *testing.T) {
	m := metrics.NewForTesting()
	b := NewBroadcaster(m)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Broadcast(created(5))

	select {
	case received := <-ch:
		if received.IncidentID != 5 || received.Type != models.IncidentCreated {
			t.Errorf("unexpected event %+v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast")
	}

	if got := testutil.ToFloat64(m.IncidentEvents.WithLabelValues("created")); got != 1 {
		t.Errorf("expected 1 counted event, got %v", got)
	}
}

func TestBroadcaster_PreservesOrderPerSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Broadcast(created(1))
	b.Broadcast(&models.IncidentEvent{Type: models.IncidentDeleted, IncidentID: 1})
	b.Broadcast(&models.IncidentEvent{Type: models.IncidentCleared, Count: 0})

	want := []models.IncidentEventType{models.IncidentCreated, models.IncidentDeleted, models.IncidentCleared}
	for i, w := range want {
		if got := (<-ch).Type; got != w {
			t.Errorf("event %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestBroadcaster_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := b.Subscribe()
			time.Sleep(time.Millisecond)
			b.Unsubscribe(id)
		}()
	}

	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cleanup, got %d", b.SubscriberCount())
	}
}

func TestBroadcaster_ConcurrentSubscribeBroadcast(t *testing.T) {
	b := NewBroadcaster(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ch := b.Subscribe()
			go func() {
				for range ch {
				}
			}()
			time.Sleep(5 * time.Millisecond)
			b.Unsubscribe(id)
		}()
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Broadcast(created(int64(n)))
		}(i)
	}

	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(nil)

	var channels []<-chan *models.IncidentEvent
	for i := 0; i < 5; i++ {
		_, ch := b.Subscribe()
		channels = append(channels, ch)
	}

	b.Close()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
	for i, ch := range channels {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("channel %d should be closed", i)
			}
		default:
			t.Errorf("channel %d should be closed and readable", i)
		}
	}

	// Late subscribers get a closed channel and broadcasts are dropped.
	_, late := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected closed channel after Close")
	}
	b.Broadcast(created(1))
}

func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < bufferSize+1; i++ {
		b.Broadcast(created(int64(i)))
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:

	if count != bufferSize {
		t.Errorf("expected %d buffered events, got %d", bufferSize, count)
	}
}
