package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"library-sync/feature/replication"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// SQLBackend stores replicated documents in a gorm database.
type SQLBackend struct {
	db           *gorm.DB
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	mu   sync.Mutex
	last time.Time
}

var (
	_ replication.Backend     = (*SQLBackend)(nil)
	_ replication.BatchPutter = (*SQLBackend)(nil)
)

// Option customizes an SQLBackend.
type Option func(*SQLBackend)

// WithPollInterval sets how often subscriptions poll for changes.
func WithPollInterval(d time.Duration) Option {
	return func(b *SQLBackend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithBatchSize caps the documents delivered per change batch.
func WithBatchSize(n int) Option {
	return func(b *SQLBackend) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *SQLBackend) { b.now = now }
}

// New creates a backend on db.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *SQLBackend {
	b := &SQLBackend{
		db:           db,
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Migrate creates or updates the document table.
func (b *SQLBackend) Migrate() error {
	if err := b.db.AutoMigrate(&DocumentRow{}); err != nil {
		return fmt.Errorf("failed to migrate library documents: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for schema inspection.
func (b *SQLBackend) DB() *gorm.DB {
	return b.db
}

// stamp returns a millisecond modification time later than every earlier one.
func (b *SQLBackend) stamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.now().UTC().Truncate(time.Millisecond)
	if !t.After(b.last) {
		t = b.last.Add(time.Millisecond)
	}
	b.last = t
	return t
}

// Get returns the document with id, tombstones included, or nil when absent.
func (b *SQLBackend) Get(ctx context.Context, scope replication.Scope, id string) (*replication.Document, error) {
	var row DocumentRow
	err := b.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", scope.UserID, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	doc := row.Document()
	return &doc, nil
}

// Put writes doc for the scope's user, replacing any earlier version.
func (b *SQLBackend) Put(ctx context.Context, scope replication.Scope, doc replication.Document) (replication.Document, error) {
	row := rowFromDocument(scope, doc, b.stamp())
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return replication.Document{}, fmt.Errorf("failed to put document %s: %w", doc.Record.ID, err)
	}
	return row.Document(), nil
}

// PutBatch writes docs in one statement.
func (b *SQLBackend) PutBatch(ctx context.Context, scope replication.Scope, docs []replication.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]DocumentRow, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, rowFromDocument(scope, doc, b.stamp()))
	}
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to put %d documents: %w", len(docs), err)
	}
	return nil
}

// Delete turns the document into a tombstone. Deleting an absent document is a no-op.
func (b *SQLBackend) Delete(ctx context.Context, scope replication.Scope, id string, at time.Time) error {
	err := b.db.WithContext(ctx).
		Model(&DocumentRow{}).
		Where("user_id = ? AND id = ?", scope.UserID, id).
		Updates(map[string]any{
			"deleted":         true,
			"last_updated_at": at.UTC(),
			"modified_at":     b.stamp(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Changes lists up to limit documents modified after since, oldest first.
// Tombstones are returned regardless of the library filter, so deletes of
// records moved out of the library still reach the client.
func (b *SQLBackend) Changes(ctx context.Context, scope replication.Scope, since replication.Checkpoint, limit int) ([]replication.Document, error) {
	if limit <= 0 {
		limit = b.batchSize
	}
	since.UpdatedAt = since.UpdatedAt.UTC()
	query := b.db.WithContext(ctx).
		Where("user_id = ?", scope.UserID).
		Where("modified_at > ? OR (modified_at = ? AND id > ?)", since.UpdatedAt, since.UpdatedAt, since.ID)
	if scope.LibraryID != "" {
		query = query.Where("library_id = ? OR deleted = ?", scope.LibraryID, true)
	}

	var rows []DocumentRow
	err := query.Order("modified_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list changes for %s: %w", scope, err)
	}
	docs := make([]replication.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.Document())
	}
	return docs, nil
}

// Subscribe polls for changes after since and delivers them in batches. The
// channel is closed when ctx is done or after a batch carrying an error.
func (b *SQLBackend) Subscribe(ctx context.Context, scope replication.Scope, since replication.Checkpoint) (<-chan replication.ChangeBatch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := b.Ping(ctx); err != nil {
		return nil, err
	}
	out := make(chan replication.ChangeBatch)
	go b.poll(ctx, scope, since, out)
	return out, nil
}

func (b *SQLBackend) poll(ctx context.Context, scope replication.Scope, since replication.Checkpoint, out chan<- replication.ChangeBatch) {
	defer close(out)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	send := func(batch replication.ChangeBatch) bool {
		select {
		case out <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		docs, err := b.Changes(ctx, scope, since, b.batchSize)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			b.logger.Warn("Change feed poll failed", zap.String("scope", scope.String()), zap.Error(err))
			send(replication.ChangeBatch{Checkpoint: since, Err: err})
			return
		case len(docs) > 0:
			since = replication.CheckpointOf(docs[len(docs)-1])
			if !send(replication.ChangeBatch{Documents: docs, Checkpoint: since}) {
				return
			}
			if len(docs) == b.batchSize {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Ping checks the database is reachable.
func (b *SQLBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping remote: %w", err)
	}
	return nil
}
