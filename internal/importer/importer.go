// Package importer bulk-loads incidents through the incident store,
// optionally clearing the table first.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
	"github.com/mr1hm/go-wildfire-alerts/internal/worker"
)

// Store is the part of incident.Store the importer drives.
type Store interface {
	Create(ctx context.Context, req models.CreateIncidentRequest) (*models.Incident, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type Options struct {
	Workers    int
	BufferSize int
	// Replace clears every incident before loading.
	Replace bool
}

type RecordError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type Result struct {
	Cleared int64         `json:"cleared"`
	Created int64         `json:"created"`
	Failed  int64         `json:"failed"`
	Errors  []RecordError `json:"errors"`
}

type Importer struct {
	store Store
	opts  Options
}

func New(store Store, opts Options) *Importer {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = 100
	}
	return &Importer{store: store, opts: opts}
}

type job struct {
	index int
	req   models.CreateIncidentRequest
}

// Run creates every record. A bad record is counted and reported but does
// not stop the others; the returned error is reserved for the clear step
// and cancellation.
func (im *Importer) Run(ctx context.Context, reqs []models.CreateIncidentRequest) (*Result, error) {
	res := &Result{Errors: []RecordError{}}

	if im.opts.Replace {
		n, err := im.store.DeleteAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("clear incidents: %w", err)
		}
		res.Cleared = n
		slog.Info("cleared incidents before import", "count", n)
	}

	var mu sync.Mutex
	pool := worker.NewPool(im.opts.Workers, im.opts.BufferSize,
		func(ctx context.Context, j job) error {
			inc, err := im.store.Create(ctx, j.req)
			if err != nil {
				return err
			}
			slog.Debug("imported incident", "index", j.index, "id", inc.ID)
			return nil
		},
		func(j job, err error) {
			slog.Warn("import record failed", "index", j.index, "error", err)
			mu.Lock()
			res.Errors = append(res.Errors, RecordError{Index: j.index, Error: err.Error()})
			mu.Unlock()
		},
	)
	pool.Start(ctx)

	var submitErr error
	for i, req := range reqs {
		if err := pool.Submit(ctx, job{index: i, req: req}); err != nil {
			submitErr = err
			break
		}
	}
	pool.Stop()

	res.Created, res.Failed = pool.Stats()
	sort.Slice(res.Errors, func(a, b int) bool { return res.Errors[a].Index < res.Errors[b].Index })

	if submitErr != nil {
		return res, fmt.Errorf("import interrupted: %w", submitErr)
	}
	slog.Info("import complete", "created", res.Created, "failed", res.Failed, "cleared", res.Cleared)
	return res, nil
}
