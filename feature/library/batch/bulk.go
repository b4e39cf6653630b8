package batch

import (
	"context"

	"library-sync/core/errs"
	"library-sync/feature/library/models"

	"go.uber.org/zap"
)

const (
	opBulkUpdate = "bulk_update"
	opBulkUpsert = "bulk_upsert"
	opBulkDelete = "bulk_delete"
)

// Update is one entry of a bulk update.
type Update struct {
	ID    string       `json:"id"`
	Patch models.Patch `json:"patch"`
}

// BulkOptions controls BulkUpdate and BulkUpsert.
type BulkOptions struct {
	// BatchSize overrides the configured update size.
	BatchSize  int
	OnProgress Progress
	// RequireNonEmpty turns an empty input into a validation error.
	RequireNonEmpty bool
}

// BulkUpdate patches every record. Per-item failures are captured in the
// result; the only error is an empty input with RequireNonEmpty set.
func (o *Operator) BulkUpdate(ctx context.Context, updates []Update, opts BulkOptions) (*Result, error) {
	return bulk(ctx, o, opBulkUpdate, updates, opts,
		func(u Update) string { return u.ID },
		func(ctx context.Context, u Update) error {
			_, err := o.store.Update(ctx, u.ID, u.Patch)
			return err
		})
}

// BulkUpsert creates or updates every record, keeping each record's own library.
func (o *Operator) BulkUpsert(ctx context.Context, records []models.Record, opts BulkOptions) (*Result, error) {
	return bulk(ctx, o, opBulkUpsert, records, opts,
		func(r models.Record) string {
			if r.ID == "" {
				return r.MediaKey()
			}
			return r.ID
		},
		func(ctx context.Context, r models.Record) error {
			_, err := o.store.Upsert(ctx, r, nil)
			return err
		})
}

// BulkDelete removes every id. Ids that are already gone count as deleted.
func (o *Operator) BulkDelete(ctx context.Context, ids []string, opts BulkOptions) (*Result, error) {
	return bulk(ctx, o, opBulkDelete, ids, opts,
		func(id string) string { return id },
		func(ctx context.Context, id string) error {
			err := o.store.Delete(ctx, id)
			if errs.KindOf(err) == errs.KindNotFound {
				return nil
			}
			return err
		})
}

func bulk[T any](ctx context.Context, o *Operator, op string, items []T, opts BulkOptions, id func(T) string, fn func(context.Context, T) error) (*Result, error) {
	if len(items) == 0 && opts.RequireNonEmpty {
		return nil, errs.NewValidation(errs.Violation{Field: "items", Reason: "must not be empty"})
	}

	size := opts.BatchSize
	if size <= 0 {
		size = o.cfg.UpdateSize
	}

	res := &Result{Errors: []errs.ItemFailure{}}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		failures := runBatch(ctx, o, op, items[start:end], id, fn)
		res.merge(failures, end-start)

		if opts.OnProgress != nil {
			opts.OnProgress(end, len(items))
		}

		if end < len(items) {
			if err := o.yield(ctx); err != nil {
				return res, err
			}
		}
	}

	o.logger.Info("Bulk operation finished",
		zap.String("op", op),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed))

	o.flush(ctx)
	return res, nil
}
