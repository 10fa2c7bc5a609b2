// Package notify formats evacuation alerts and fans them out to every
// configured messaging channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel"
	"github.com/mr1hm/go-wildfire-alerts/internal/metrics"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/validation"
)

type Failure struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// Result aggregates one dispatch. Results has an entry for every registered
// channel; the value is nil when the channel was not configured or failed.
type Result struct {
	ID      uuid.UUID                   `json:"id"`
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	Results map[string]*channel.Receipt `json:"results"`
	Errors  []Failure                   `json:"errors"`
}

type Dispatcher struct {
	channels []channel.Channel
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewDispatcher registers channels in the order failures are reported.
// m may be nil.
func NewDispatcher(m *metrics.Metrics, channels ...channel.Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		metrics:  m,
		validate: validation.New(),
	}
}

func (d *Dispatcher) Channels() []channel.Channel {
	return d.channels
}

// Dispatch validates and formats req, then sends it on every configured
// channel concurrently. A channel failure never stops the others. The only
// error returned is a validation error, in which case nothing was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.AlertRequest) (*Result, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, validation.ToError(err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.Invalid("message", "is required")
	}

	msg := channel.Message{Text: Format(req), Attachment: req.Attachment}
	res := &Result{
		ID:      uuid.New(),
		Message: msg.Text,
		Results: make(map[string]*channel.Receipt, len(d.channels)),
		Errors:  []Failure{},
	}

	type outcome struct {
		receipt *channel.Receipt
		err     error
		sent    bool
	}
	outcomes := make([]outcome, len(d.channels))

	var wg sync.WaitGroup
	for i, ch := range d.channels {
		res.Results[ch.Name()] = nil
		if !ch.Configured() {
			continue
		}
		wg.Add(1)
		go func(i int, ch channel.Channel) {
			defer wg.Done()
			receipt, err := d.send(ctx, ch, msg, req.Destination)
			outcomes[i] = outcome{receipt: receipt, err: err, sent: true}
		}(i, ch)
	}
	wg.Wait()

	for i, ch := range d.channels {
		o := outcomes[i]
		if !o.sent {
			continue
		}
		if o.err != nil {
			res.Errors = append(res.Errors, Failure{Channel: ch.Name(), Error: o.err.Error(), Err: o.err})
			continue
		}
		res.Results[ch.Name()] = o.receipt
		res.Success = true
	}

	result := "failure"
	if res.Success {
		result = "success"
	}
	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(result).Inc()
	}
	slog.Info("alert dispatched", "dispatch_id", res.ID, "result", result, "failures", len(res.Errors))
	return res, nil
}

func (d *Dispatcher) send(ctx context.Context, ch channel.Channel, msg channel.Message, dest models.Destination) (receipt *channel.Receipt, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: send panicked: %v", ch.Name(), r)
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
			slog.Warn("channel send failed", "channel", ch.Name(), "error", err)
		}
		if d.metrics != nil {
			d.metrics.ChannelSends.WithLabelValues(ch.Name(), outcome).Inc()
			d.metrics.ChannelDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
		}
	}()

	receipt, err = ch.Send(ctx, msg, dest)
	if err == nil && receipt == nil {
		receipt = &channel.Receipt{Channel: ch.Name(), Success: true}
	}
	return receipt, err
}
