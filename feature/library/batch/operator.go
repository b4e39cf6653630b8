package batch

import (
	"context"
	"slices"
	"sync"
	"time"

	"library-sync/core/errs"
	"library-sync/core/metrics"
	"library-sync/feature/library/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the subset of the record store the operator writes through.
type Store interface {
	Count(ctx context.Context, filter models.Filter) (int, error)
	ListIDs(ctx context.Context, filter models.Filter, afterID string, limit int) ([]string, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch models.Patch) (*models.Record, error)
	Upsert(ctx context.Context, rec models.Record, lib *models.LibraryRef) (*models.Record, error)
}

// Flusher pushes buffered replication writes ahead of schedule.
type Flusher interface {
	PendingOperations() int
	ForcePushPending(ctx context.Context) error
}

// Progress receives the number of items attempted so far and the total.
type Progress func(processed, total int)

// Operator executes bulk operations.
type Operator struct {
	store   Store
	logger  *zap.Logger
	cfg     Config
	metrics *metrics.Metrics
	flusher Flusher
}

// Option customizes an Operator.
type Option func(*Operator)

// WithMetrics counts item outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Operator) { o.metrics = m }
}

// WithFlusher forces a replication push after large sweeps.
func WithFlusher(f Flusher) Option {
	return func(o *Operator) { o.flusher = f }
}

// New creates an operator. Zero config values fall back to defaults.
func New(store Store, logger *zap.Logger, cfg Config, opts ...Option) *Operator {
	if cfg.ClearSize <= 0 {
		cfg.ClearSize = 50
	}
	if cfg.UpdateSize <= 0 {
		cfg.UpdateSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	o := &Operator{store: store, logger: logger, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetFlusher attaches a flusher after construction.
func (o *Operator) SetFlusher(f Flusher) {
	o.flusher = f
}

// Result is the outcome of a bulk operation.
type Result struct {
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Errors     []errs.ItemFailure `json:"errors"`
}

// Err returns a PartialBatchFailure when any item failed.
func (r *Result) Err(op string) error {
	if r.Failed == 0 {
		return nil
	}
	return &errs.PartialBatchFailure{Op: op, Total: r.Successful + r.Failed, Failed: r.Failed, Items: r.Errors}
}

func (r *Result) merge(failures []errs.ItemFailure, attempted int) {
	r.Failed += len(failures)
	r.Successful += attempted - len(failures)
	r.Errors = append(r.Errors, failures...)
}

// runBatch applies fn to every item concurrently. Failures are collected, never returned.
func runBatch[T any](ctx context.Context, o *Operator, op string, items []T, id func(T) string, fn func(context.Context, T) error) []errs.ItemFailure {
	var (
		mu       sync.Mutex
		failures []errs.ItemFailure
	)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				o.logger.Warn("Batch item failed",
					zap.String("op", op),
					zap.String("id", id(item)),
					zap.Error(err))
				mu.Lock()
				failures = append(failures, errs.ItemFailure{ID: id(item), ErrorMessage: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	o.metrics.ObserveBatch(op, len(items)-len(failures), len(failures))
	sortFailures(failures, items, id)
	return failures
}

// sortFailures orders failures like the input so results are deterministic.
func sortFailures[T any](failures []errs.ItemFailure, items []T, id func(T) string) {
	if len(failures) < 2 {
		return
	}
	pos := make(map[string]int, len(items))
	for i, item := range items {
		if _, seen := pos[id(item)]; !seen {
			pos[id(item)] = i
		}
	}
	slices.SortStableFunc(failures, func(a, b errs.ItemFailure) int { return pos[a.ID] - pos[b.ID] })
}

// yield pauses between batches. It returns early when ctx is done.
func (o *Operator) yield(ctx context.Context) error {
	if o.cfg.YieldDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.cfg.YieldDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// flush forces a replication push when enough writes are pending.
func (o *Operator) flush(ctx context.Context) {
	if o.flusher == nil {
		return
	}
	pending := o.flusher.PendingOperations()
	if pending <= o.cfg.FlushThreshold {
		return
	}
	if err := o.flusher.ForcePushPending(ctx); err != nil {
		o.logger.Warn("Forced push after batch failed", zap.Int("pending", pending), zap.Error(err))
	}
}
