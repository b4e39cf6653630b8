package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"library-sync/core/database"
	"library-sync/core/errs"
	"library-sync/core/retry"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	s := store.New(db, zap.NewNop(), store.WithRetry(retry.New(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})))
	require.NoError(t, s.Migrate())
	return s
}

func seed(t *testing.T, s *store.Store, n int, lib *models.LibraryRef) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		rec, err := s.Create(context.Background(), models.Record{
			ID:     fmt.Sprintf("rec-%03d", i),
			Status: models.StatusWatching,
			Media:  models.Media{ExternalID: int64(i), Kind: models.MediaMovie, Title: fmt.Sprintf("Movie %d", i)},
		}, lib)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	return ids
}

func newOperator(s batch.Store, opts ...batch.Option) *batch.Operator {
	return batch.New(s, zap.NewNop(), batch.Config{Concurrency: 4}, opts...)
}

type progressCall struct{ processed, total int }

func TestClearLibrary_ReportsProgressPerBatch(t *testing.T) {
	s := setupStore(t)
	lib := &models.LibraryRef{ID: "lib-1"}
	seed(t, s, 237, lib)

	var calls []progressCall
	res, err := newOperator(s).ClearLibrary(context.Background(), lib, batch.ClearOptions{
		BatchSize:  50,
		OnProgress: func(processed, total int) { calls = append(calls, progressCall{processed, total}) },
	})
	require.NoError(t, err)

	require.Len(t, calls, 5)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].processed, calls[i-1].processed)
	}
	assert.Equal(t, progressCall{237, 237}, calls[4])
	assert.Equal(t, 237, res.Deleted)
	assert.Zero(t, res.Failed)

	count, err := s.Count(context.Background(), models.Filter{LibraryID: "lib-1"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClearLibrary_OnlyTouchesLibrary(t *testing.T) {
	s := setupStore(t)
	seed(t, s, 3, &models.LibraryRef{ID: "keep"})
	_, err := s.Create(context.Background(), models.Record{
		Media: models.Media{ExternalID: 900, Kind: models.MediaTV, Title: "Other"},
	}, &models.LibraryRef{ID: "drop"})
	require.NoError(t, err)

	res, err := newOperator(s).ClearLibrary(context.Background(), &models.LibraryRef{ID: "drop"}, batch.ClearOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	count, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestClearLibrary_EmptyLibrary(t *testing.T) {
	s := setupStore(t)
	called := false
	res, err := newOperator(s).ClearLibrary(context.Background(), nil, batch.ClearOptions{
		OnProgress: func(int, int) { called = true },
	})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.False(t, called)
}

// flakyStore fails deletes and updates for selected ids.
type flakyStore struct {
	*store.Store
	fail map[string]bool
}

func (f *flakyStore) Delete(ctx context.Context, id string) error {
	if f.fail[id] {
		return errors.New("disk on fire")
	}
	return f.Store.Delete(ctx, id)
}

func TestClearLibrary_IsolatesItemFailures(t *testing.T) {
	s := setupStore(t)
	seed(t, s, 30, nil)
	flaky := &flakyStore{Store: s, fail: map[string]bool{"rec-005": true, "rec-021": true}}

	var last progressCall
	res, err := newOperator(flaky).ClearLibrary(context.Background(), nil, batch.ClearOptions{
		BatchSize:  10,
		OnProgress: func(p, tot int) { last = progressCall{p, tot} },
	})

	var partial *errs.PartialBatchFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Failed)
	assert.Equal(t, 30, partial.Total)

	require.NotNil(t, res)
	assert.Equal(t, 28, res.Deleted)
	assert.Equal(t, progressCall{30, 30}, last, "sweep completes despite failures")
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "rec-005", res.Errors[0].ID)
	assert.Equal(t, "rec-021", res.Errors[1].ID)

	count, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBulkUpdate_MissingRecordIsCaptured(t *testing.T) {
	s := setupStore(t)
	ids := seed(t, s, 10, nil)
	ids[3] = "does-not-exist"

	completed := models.StatusCompleted
	updates := make([]batch.Update, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, batch.Update{ID: id, Patch: models.Patch{Status: &completed}})
	}

	res, err := newOperator(s).BulkUpdate(context.Background(), updates, batch.BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 9, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "does-not-exist", res.Errors[0].ID)
	assert.NotEmpty(t, res.Errors[0].ErrorMessage)

	var partial *errs.PartialBatchFailure
	assert.ErrorAs(t, res.Err("bulk_update"), &partial)
}

func TestBulkUpdate_ValidationFailureIsPerItem(t *testing.T) {
	s := setupStore(t)
	ids := seed(t, s, 3, nil)

	bad := 42
	good := 7
	res, err := newOperator(s).BulkUpdate(context.Background(), []batch.Update{
		{ID: ids[0], Patch: models.Patch{UserRating: &good}},
		{ID: ids[1], Patch: models.Patch{UserRating: &bad}},
		{ID: ids[2], Patch: models.Patch{UserRating: &good}},
	}, batch.BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, ids[1], res.Errors[0].ID)
}

func TestBulkUpdate_EmptyInput(t *testing.T) {
	op := newOperator(setupStore(t))

	res, err := op.BulkUpdate(context.Background(), nil, batch.BulkOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Successful)
	assert.NoError(t, res.Err("bulk_update"))

	_, err = op.BulkUpdate(context.Background(), nil, batch.BulkOptions{RequireNonEmpty: true})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestBulkUpdate_Progress(t *testing.T) {
	s := setupStore(t)
	ids := seed(t, s, 60, nil)
	fav := true
	updates := make([]batch.Update, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, batch.Update{ID: id, Patch: models.Patch{IsFavorite: &fav}})
	}

	var calls []progressCall
	_, err := newOperator(s).BulkUpdate(context.Background(), updates, batch.BulkOptions{
		OnProgress: func(p, tot int) { calls = append(calls, progressCall{p, tot}) },
	})
	require.NoError(t, err)
	assert.Equal(t, []progressCall{{25, 60}, {50, 60}, {60, 60}}, calls)
}

func TestBulkUpsert(t *testing.T) {
	s := setupStore(t)
	ids := seed(t, s, 2, nil)

	existing, err := s.Read(context.Background(), ids[0])
	require.NoError(t, err)
	existing.Status = models.StatusDropped

	fresh := models.Record{ID: "new-1", Media: models.Media{ExternalID: 77, Kind: models.MediaTV, Title: "Fresh"}}

	res, err := newOperator(s).BulkUpsert(context.Background(), []models.Record{*existing, fresh}, batch.BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful)

	got, err := s.Read(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusDropped, got.Status)

	created, err := s.Read(context.Background(), "new-1")
	require.NoError(t, err)
	require.NotNil(t, created)
}

func TestBulkDelete_MissingIDsCountAsDeleted(t *testing.T) {
	s := setupStore(t)
	ids := seed(t, s, 3, nil)
	flaky := &flakyStore{Store: s, fail: map[string]bool{ids[1]: true}}

	res, err := newOperator(flaky).BulkDelete(context.Background(), []string{ids[0], ids[1], "gone"}, batch.BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ids[1], res.Errors[0].ID)

	count, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// fakeFlusher records forced pushes.
type fakeFlusher struct {
	mu      sync.Mutex
	pending int
	forced  int
}

func (f *fakeFlusher) PendingOperations() int { return f.pending }

func (f *fakeFlusher) ForcePushPending(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	return nil
}

func TestFlusher_CalledAboveThreshold(t *testing.T) {
	s := setupStore(t)
	seed(t, s, 5, nil)

	quiet := &fakeFlusher{pending: 3}
	_, err := batch.New(s, zap.NewNop(), batch.Config{FlushThreshold: 10}, batch.WithFlusher(quiet)).
		ClearLibrary(context.Background(), nil, batch.ClearOptions{})
	require.NoError(t, err)
	assert.Zero(t, quiet.forced)

	seed(t, s, 5, nil)
	busy := &fakeFlusher{pending: 11}
	_, err = batch.New(s, zap.NewNop(), batch.Config{FlushThreshold: 10}, batch.WithFlusher(busy)).
		ClearLibrary(context.Background(), nil, batch.ClearOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, busy.forced)
}

func TestClearLibrary_Cancelled(t *testing.T) {
	s := setupStore(t)
	seed(t, s, 20, nil)
	ctx, cancel := context.WithCancel(context.Background())

	op := batch.New(s, zap.NewNop(), batch.Config{ClearSize: 5, YieldDelay: time.Hour})
	done := make(chan error, 1)
	go func() {
		_, err := op.ClearLibrary(ctx, nil, batch.ClearOptions{OnProgress: func(int, int) { cancel() }})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("clear did not stop after cancellation")
	}
}
