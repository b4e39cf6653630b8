package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-sync/core/errs"
	"library-sync/core/reconcile"
	"library-sync/feature/library/merge"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"go.uber.org/zap"
)

var errStreamClosed = errors.New("change stream closed")

// cycle pushes pending writes, then reconciles full snapshots of both sides.
func (c *Controller) cycle(h *Handle) error {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	started := time.Now()
	ctx := h.ctx

	if err := c.pushLocked(h); err != nil {
		return err
	}

	var (
		tombstones = map[string]Document{}
		checkpoint Checkpoint
	)
	spec := c.spec()
	local, remote, err := reconcile.Snapshot(ctx, spec,
		func(ctx context.Context) ([]models.Record, error) {
			return c.local.All(ctx, h.scope.Filter())
		},
		func(ctx context.Context) ([]models.Record, error) {
			docs, cp, err := c.pullAll(ctx, h.scope)
			if err != nil {
				return nil, err
			}
			checkpoint = cp
			live := make([]models.Record, 0, len(docs))
			for _, doc := range docs {
				if doc.Deleted {
					tombstones[doc.Record.ID] = doc
					continue
				}
				rec := fromDocument(doc, c.now())
				if h.scope.Contains(&rec) {
					live = append(live, rec)
				}
			}
			return live, nil
		})
	if err != nil {
		return &errs.SyncError{Op: "snapshot", Cause: err}
	}

	plan := reconcile.BuildPlan(spec, local, remote, reconcile.DefaultPlanOptions())
	executed, err := reconcile.ApplyPlan[models.Record](ctx, &cycleMutator{c: c, h: h, tombstones: tombstones}, plan, reconcile.PlanOptions{})
	if err != nil {
		return &errs.SyncError{Op: "apply", Cause: err}
	}

	if checkpoint.After(h.checkpoint) {
		h.checkpoint = checkpoint
	}

	now := c.now().UTC()
	c.publish(func(s *Status) { s.LastSyncTime = &now })
	c.metrics.ObserveCycle(time.Since(started).Seconds())

	c.logger.Info("Sync cycle finished",
		zap.String("scope", h.scope.String()),
		zap.Int("total", plan.Summary.TotalItems),
		zap.Int("pulled", plan.Summary.RemoteOnly+plan.Summary.LocalUpdates),
		zap.Int("pushed", plan.Summary.LocalOnly+plan.Summary.RemoteUpdates),
		zap.Int("conflicts", plan.Summary.Conflicts),
		zap.Int("executed", executed),
		zap.Duration("took", time.Since(started)))
	return nil
}

// pullAll drains the change feed from the beginning.
func (c *Controller) pullAll(ctx context.Context, scope Scope) ([]Document, Checkpoint, error) {
	var (
		all   []Document
		since Checkpoint
	)
	for {
		docs, err := c.backend.Changes(ctx, scope, since, c.cfg.PullBatchSize)
		if err != nil {
			return nil, since, fmt.Errorf("failed to read changes after %s: %w", since.ID, err)
		}
		all = append(all, docs...)
		if len(docs) > 0 {
			since = CheckpointOf(docs[len(docs)-1])
		}
		if len(docs) < c.cfg.PullBatchSize {
			return all, since, nil
		}
	}
}

func (c *Controller) push(h *Handle) error {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()
	return c.pushLocked(h)
}

// pushLocked pushes queued writes in batches, acknowledging each on success.
// It stops at the first failure, leaving the rest queued.
func (c *Controller) pushLocked(h *Handle) error {
	ops := c.pending.snapshot()
	pushed := 0
	defer func() { c.metrics.ObservePush(pushed, nil) }()

	for start := 0; start < len(ops); start += c.cfg.PushBatchSize {
		end := min(start+c.cfg.PushBatchSize, len(ops))
		for _, op := range ops[start:end] {
			if err := h.pushCtx.Err(); err != nil {
				return err
			}
			if err := c.pushOne(h, op); err != nil {
				c.metrics.ObservePush(1, err)
				return &errs.SyncError{Op: "push", Cause: fmt.Errorf("record %s: %w", op.ID, err)}
			}
			pushed++
			if err := c.local.AckPending(h.pushCtx, op.ID, op.Seq, op.Writes); err != nil {
				return fmt.Errorf("failed to acknowledge record %s: %w", op.ID, err)
			}
			n := c.pending.ack(op)
			c.metrics.SetPending(n)
			c.publish(func(s *Status) { s.PendingOperations = n })
		}
	}
	return nil
}

// pushOne writes a queued operation under last-writer-wins against the remote copy.
func (c *Controller) pushOne(h *Handle, op pendingOp) error {
	ctx := h.pushCtx
	if op.Op == store.OpDelete {
		return c.backend.Delete(ctx, h.scope, op.ID, c.now().UTC().Truncate(time.Millisecond))
	}

	local := op.Record
	doc, err := c.backend.Get(ctx, h.scope, op.ID)
	if err != nil {
		return err
	}
	if doc == nil {
		return c.put(ctx, h, local)
	}

	remote := fromDocument(*doc, c.now())
	if doc.Deleted {
		if local.LastUpdatedAt.After(remote.LastUpdatedAt) {
			return c.put(ctx, h, local)
		}
		return c.deleteLocal(ctx, op.ID)
	}

	switch reconcile.Classify(c.spec(), local, remote).Partition {
	case reconcile.PartitionNeedsRemoteUpdate:
		return c.put(ctx, h, local)
	case reconcile.PartitionNeedsLocalUpdate:
		return c.writeLocal(ctx, remote)
	case reconcile.PartitionConflict:
		return c.resolve(ctx, h, local, remote)
	}
	return nil
}

// applyBatch applies one delivery of the change stream.
func (c *Controller) applyBatch(h *Handle, batch ChangeBatch) error {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	for _, doc := range batch.Documents {
		if err := c.applyRemote(h, doc); err != nil {
			return &errs.SyncError{Op: "pull", Cause: fmt.Errorf("record %s: %w", doc.Record.ID, err)}
		}
	}
	if batch.Checkpoint.After(h.checkpoint) {
		h.checkpoint = batch.Checkpoint
	}
	c.metrics.ObservePull(len(batch.Documents))

	if len(batch.Documents) > 0 {
		now := c.now().UTC()
		c.publish(func(s *Status) { s.LastSyncTime = &now })
	}
	return nil
}

// applyRemote applies a pulled document. Records with unacknowledged local
// writes are left to the pending push, which compares both copies.
func (c *Controller) applyRemote(h *Handle, doc Document) error {
	ctx := h.ctx
	if doc.UserID != "" && doc.UserID != h.scope.UserID {
		return nil
	}
	if c.pending.has(doc.Record.ID) {
		return nil
	}

	remote := fromDocument(doc, c.now())
	if !doc.Deleted && !h.scope.Contains(&remote) {
		return nil
	}

	local, err := c.local.Read(ctx, remote.ID)
	if err != nil {
		return err
	}

	switch {
	case doc.Deleted && local == nil:
		return nil
	case doc.Deleted:
		if local.LastUpdatedAt.After(remote.LastUpdatedAt) {
			return c.put(ctx, h, *local)
		}
		return c.deleteLocal(ctx, remote.ID)
	case local == nil:
		return c.writeLocal(ctx, remote)
	}

	switch reconcile.Classify(c.spec(), *local, remote).Partition {
	case reconcile.PartitionNeedsLocalUpdate:
		return c.writeLocal(ctx, remote)
	case reconcile.PartitionNeedsRemoteUpdate:
		return c.put(ctx, h, *local)
	case reconcile.PartitionConflict:
		return c.resolve(ctx, h, *local, remote)
	}
	return nil
}

// resolve merges two concurrent edits and writes the result to both sides.
func (c *Controller) resolve(ctx context.Context, h *Handle, local, remote models.Record) error {
	c.metrics.ObserveConflict()

	rec := merge.ResolveConflict(local, remote, c.opts)
	rec.LastUpdatedAt = local.LastUpdatedAt
	if remote.LastUpdatedAt.After(rec.LastUpdatedAt) {
		rec.LastUpdatedAt = remote.LastUpdatedAt
	}

	c.logger.Debug("Resolved conflict",
		zap.String("id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Bool("favorite", rec.IsFavorite))

	if err := c.writeLocal(ctx, rec); err != nil {
		return err
	}
	return c.put(ctx, h, rec)
}

func (c *Controller) writeLocal(ctx context.Context, rec models.Record) error {
	_, err := c.local.Upsert(store.WithOrigin(ctx, store.OriginReplica), rec, nil)
	return err
}

func (c *Controller) deleteLocal(ctx context.Context, id string) error {
	err := c.local.Delete(store.WithOrigin(ctx, store.OriginReplica), id)
	if errs.KindOf(err) == errs.KindNotFound {
		return nil
	}
	return err
}

func (c *Controller) put(ctx context.Context, h *Handle, rec models.Record) error {
	_, err := c.backend.Put(ctx, h.scope, toDocument(h.scope, rec))
	return err
}

// cycleMutator applies a reconcile plan. Local-only records that were
// deleted remotely after their last edit are deleted locally instead of
// being pushed back.
type cycleMutator struct {
	c          *Controller
	h          *Handle
	tombstones map[string]Document
}

func (m *cycleMutator) CreateLocal(ctx context.Context, rec models.Record) error {
	return m.c.writeLocal(ctx, rec)
}

func (m *cycleMutator) UpdateLocal(ctx context.Context, rec models.Record) error {
	return m.c.writeLocal(ctx, rec)
}

func (m *cycleMutator) PushRemote(ctx context.Context, rec models.Record) error {
	if m.deletedRemotely(rec) {
		return m.c.deleteLocal(ctx, rec.ID)
	}
	return m.c.put(ctx, m.h, rec)
}

func (m *cycleMutator) ResolveConflict(ctx context.Context, local, remote models.Record) error {
	return m.c.resolve(ctx, m.h, local, remote)
}

// PushRemoteBatch pushes in push-sized batches, through BatchPutter when available.
func (m *cycleMutator) PushRemoteBatch(ctx context.Context, records []models.Record) error {
	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		if m.deletedRemotely(rec) {
			if err := m.c.deleteLocal(ctx, rec.ID); err != nil {
				return err
			}
			continue
		}
		docs = append(docs, toDocument(m.h.scope, rec))
	}

	putter, ok := m.c.backend.(BatchPutter)
	size := m.c.cfg.PushBatchSize
	for start := 0; start < len(docs); start += size {
		chunk := docs[start:min(start+size, len(docs))]
		if ok {
			if err := putter.PutBatch(ctx, m.h.scope, chunk); err != nil {
				return err
			}
			m.c.metrics.ObservePush(len(chunk), nil)
			continue
		}
		for _, doc := range chunk {
			if _, err := m.c.backend.Put(ctx, m.h.scope, doc); err != nil {
				return err
			}
		}
		m.c.metrics.ObservePush(len(chunk), nil)
	}
	return nil
}

func (m *cycleMutator) deletedRemotely(rec models.Record) bool {
	tomb, ok := m.tombstones[rec.ID]
	return ok && !rec.LastUpdatedAt.After(tomb.Record.LastUpdatedAt)
}
