package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"library-sync/core/errs"
	"library-sync/core/metrics"
	"library-sync/core/retry"
	"library-sync/feature/library/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPageSize = 100

// Store is the validated record store and the only writer of local library state.
// Every write runs in its own transaction under the retry policy.
type Store struct {
	db       *gorm.DB
	logger   *zap.Logger
	policy   retry.Policy
	metrics  *metrics.Metrics
	now      func() time.Time
	pageSize int

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int

	seqMu   sync.Mutex
	lastSeq int64
}

// Option customizes a Store.
type Option func(*Store)

// WithRetry sets the retry policy for writes.
func WithRetry(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithMetrics records write outcomes and retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPageSize sets how many rows a query loads per round trip.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a store on db.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		db:        db,
		logger:    logger,
		policy:    retry.New(retry.Config{}),
		now:       time.Now,
		pageSize:  defaultPageSize,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	onRetry := s.policy.OnRetry
	s.policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.metrics.ObserveRetry()
		s.logger.Debug("Retrying store write", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}
	return s
}

// Migrate creates or updates the library and pending write tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.RecordRow{}, &models.PendingRow{}); err != nil {
		return fmt.Errorf("failed to migrate library records: %w", err)
	}
	var last int64
	if err := s.db.Model(&models.PendingRow{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return fmt.Errorf("failed to read pending write sequence: %w", err)
	}
	s.seqMu.Lock()
	s.lastSeq = max(s.lastSeq, last)
	s.seqMu.Unlock()
	return nil
}

// DB exposes the underlying connection for schema inspection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Observe registers l for committed mutations and returns a function removing it.
func (s *Store) Observe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Create inserts a new record. It assigns an id when absent and stamps addedAt and
// lastUpdatedAt. lib, when given, overrides the record's library reference.
func (s *Store) Create(ctx context.Context, rec models.Record, lib *models.LibraryRef) (*models.Record, error) {
	origin := OriginFrom(ctx)
	rec = rec.Clone()
	if lib != nil {
		l := *lib
		rec.Library = &l
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.StatusNone
	}
	rec.Media = models.NormalizeMedia(rec.Media)

	now := s.timestamp()
	if origin == OriginLocal || rec.LastUpdatedAt.IsZero() {
		rec.LastUpdatedAt = now
	}
	if origin == OriginLocal || rec.AddedAt.IsZero() {
		rec.AddedAt = now
	}
	rec.AddedAt = rec.AddedAt.UTC().Truncate(time.Millisecond)
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC().Truncate(time.Millisecond)

	if err := models.ValidateRecord(&rec); err != nil {
		return nil, err
	}

	row := models.RowFromRecord(&rec)
	var seq int64
	err := s.write(ctx, OpCreate, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.RecordRow{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &errs.DuplicateError{ID: rec.ID}
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &errs.DuplicateError{ID: rec.ID}
			}
			return err
		}
		return s.journalFrom(tx, origin, OpCreate, rec, &seq)
	})
	if err != nil {
		return nil, err
	}

	s.notify(Mutation{Op: OpCreate, ID: rec.ID, Record: rec, Origin: origin, At: rec.LastUpdatedAt, Seq: seq})
	return &rec, nil
}

// Read returns the record, or nil when the id is unknown.
func (s *Store) Read(ctx context.Context, id string) (*models.Record, error) {
	var row models.RecordRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	rec := row.Record()
	return &rec, nil
}

// Update applies a partial patch. A patch that changes nothing leaves the record,
// including lastUpdatedAt, untouched.
func (s *Store) Update(ctx context.Context, id string, patch models.Patch) (*models.Record, error) {
	if err := models.ValidatePatch(patch); err != nil {
		return nil, err
	}
	origin := OriginFrom(ctx)

	var (
		updated models.Record
		changed bool
		seq     int64
	)
	err := s.write(ctx, OpUpdate, func(tx *gorm.DB) error {
		var row models.RecordRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &errs.NotFoundError{ID: id}
			}
			return err
		}
		updated = row.Record()
		changed = patch.Apply(&updated)
		if !changed {
			return nil
		}

		at := s.timestamp()
		if origin != OriginLocal && patch.LastUpdatedAt != nil && !patch.LastUpdatedAt.IsZero() {
			at = patch.LastUpdatedAt.UTC().Truncate(time.Millisecond)
		}
		updated.LastUpdatedAt = at

		next := models.RowFromRecord(&updated)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		return s.journalFrom(tx, origin, OpUpdate, updated, &seq)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.notify(Mutation{Op: OpUpdate, ID: id, Record: updated, Origin: origin, At: updated.LastUpdatedAt, Seq: seq})
	}
	return &updated, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	origin := OriginFrom(ctx)
	var (
		previous models.Record
		seq      int64
	)
	err := s.write(ctx, OpDelete, func(tx *gorm.DB) error {
		var row models.RecordRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &errs.NotFoundError{ID: id}
			}
			return err
		}
		previous = row.Record()
		if err := tx.Delete(&models.RecordRow{}, "id = ?", id).Error; err != nil {
			return err
		}
		return s.journalFrom(tx, origin, OpDelete, previous, &seq)
	})
	if err != nil {
		return err
	}

	s.notify(Mutation{Op: OpDelete, ID: id, Record: previous, Origin: origin, At: s.timestamp(), Seq: seq})
	return nil
}

// Upsert creates the record or brings an existing one to its user state. Idempotent by id.
func (s *Store) Upsert(ctx context.Context, rec models.Record, lib *models.LibraryRef) (*models.Record, error) {
	if rec.ID != "" {
		existing, err := s.Read(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.Update(ctx, rec.ID, upsertPatch(rec, lib))
		}
	}

	created, err := s.Create(ctx, rec, lib)
	if errs.KindOf(err) == errs.KindDuplicate {
		// Lost a race with a concurrent create
		return s.Update(ctx, rec.ID, upsertPatch(rec, lib))
	}
	return created, err
}

func upsertPatch(rec models.Record, lib *models.LibraryRef) models.Patch {
	if rec.Status == "" {
		rec.Status = models.StatusNone
	}
	p := models.PatchFrom(&rec)
	if lib != nil {
		l := *lib
		p.Library = &l
	}
	return p
}

// write runs fn in a transaction under the retry policy.
func (s *Store) write(ctx context.Context, op Op, fn func(tx *gorm.DB) error) error {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
	s.metrics.ObserveWrite(string(op), err)
	if err != nil && errs.KindOf(err) == errs.KindMaxRetries {
		s.logger.Warn("Store write exhausted retries", zap.String("op", string(op)), zap.Error(err))
	}
	return err
}

// journalFrom journals writes that replication must push. Replicated writes
// already match the remote copy.
func (s *Store) journalFrom(tx *gorm.DB, origin Origin, op Op, rec models.Record, seq *int64) error {
	if origin == OriginReplica {
		*seq = 0
		return nil
	}
	n, err := s.journal(tx, op, rec)
	*seq = n
	return err
}

func (s *Store) notify(m Mutation) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(m)
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
