package batch

import (
	"context"
	"fmt"

	"library-sync/core/errs"
	"library-sync/feature/library/models"

	"go.uber.org/zap"
)

const opClear = "clear_library"

// ClearOptions controls ClearLibrary.
type ClearOptions struct {
	// BatchSize overrides the configured clear size.
	BatchSize  int
	OnProgress Progress
}

// ClearResult summarizes a clear sweep.
type ClearResult struct {
	Total   int `json:"total"`
	Deleted int `json:"deleted"`
	Result
}

// ClearLibrary deletes every record of the library, or every record when lib
// is nil. The sweep always runs to the end; when items fail the result is
// returned together with a PartialBatchFailure.
func (o *Operator) ClearLibrary(ctx context.Context, lib *models.LibraryRef, opts ClearOptions) (*ClearResult, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = o.cfg.ClearSize
	}

	var filter models.Filter
	if lib != nil {
		filter.LibraryID = lib.ID
	}

	total, err := o.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count records to clear: %w", err)
	}

	res := &ClearResult{Total: total}
	processed := 0
	after := ""
	for processed < total {
		ids, err := o.store.ListIDs(ctx, filter, after, size)
		if err != nil {
			return res, fmt.Errorf("failed to list records to clear: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		after = ids[len(ids)-1]

		failures := runBatch(ctx, o, opClear, ids, func(id string) string { return id }, func(ctx context.Context, id string) error {
			err := o.store.Delete(ctx, id)
			if errs.KindOf(err) == errs.KindNotFound {
				// Removed concurrently
				return nil
			}
			return err
		})
		res.merge(failures, len(ids))
		processed += len(ids)
		if processed > total {
			// Records added during the sweep
			total = processed
			res.Total = total
		}

		if opts.OnProgress != nil {
			opts.OnProgress(processed, total)
		}

		if processed < total {
			if err := o.yield(ctx); err != nil {
				return res, err
			}
		}
	}
	res.Deleted = res.Successful

	o.logger.Info("Library cleared",
		zap.String("library", filter.LibraryID),
		zap.Int("total", res.Total),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed))

	o.flush(ctx)
	return res, res.Err(opClear)
}
