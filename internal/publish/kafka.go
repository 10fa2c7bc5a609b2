// Package publish forwards committed incident changes to a Kafka topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-wildfire-alerts/internal/geo"
	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

const writeTimeout = 5 * time.Second

// MessageWriter is the subset of *kafkago.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewKafkaWriter creates a producer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

type Publisher struct {
	writer  MessageWriter
	metrics *metrics.Metrics
}

// NewPublisher wraps w. m may be nil.
func NewPublisher(w MessageWriter, m *metrics.Metrics) *Publisher {
	return &Publisher{writer: w, metrics: m}
}

// Run publishes every event from events until the channel is closed or ctx
// is done. A failed write is logged and counted; the event is not retried.
func (p *Publisher) Run(ctx context.Context, events <-chan *models.IncidentEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev *models.IncidentEvent) {
	msg, err := serializeToMessage(ev)
	if err == nil {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = p.writer.WriteMessages(wctx, msg)
		cancel()
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		slog.Error("failed to publish incident event", "type", ev.Type, "id", ev.IncidentID, "error", err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(outcome).Inc()
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage keys per incident so one incident's changes stay on one
// partition in order. Clears use a fixed key.
func serializeToMessage(ev *models.IncidentEvent) (kafkago.Message, error) {
	data, err := json.Marshal(geo.ToEventMessage(ev))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident event: %w", err)
	}

	key := "all"
	if ev.Type != models.IncidentCleared {
		key = strconv.FormatInt(ev.IncidentID, 10)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "occurred_at", Value: []byte(ev.OccurredAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
