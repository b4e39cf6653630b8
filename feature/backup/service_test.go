package backup

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"library-sync/core/database"
	"library-sync/core/errs"
	"library-sync/core/retry"
	"library-sync/core/storage"
	"library-sync/core/storage/mocks"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setupService(t *testing.T, client storage.Client, cfg Config) (*Service, *store.Store) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	s := store.New(db, zap.NewNop(), store.WithRetry(retry.New(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})))
	require.NoError(t, s.Migrate())

	op := batch.New(s, zap.NewNop(), batch.Config{Concurrency: 4})
	svc := NewService(s, op, client, storage.Config{Bucket: "test-bucket"}, cfg, zap.NewNop())
	svc.now = func() time.Time { return epoch }
	return svc, s
}

func seedRecord(t *testing.T, s *store.Store, id string, ext int64, status models.Status, fav bool, updated time.Time, lib *models.LibraryRef) {
	t.Helper()
	_, err := s.Create(store.WithOrigin(context.Background(), store.OriginImport), models.Record{
		ID:            id,
		Status:        status,
		IsFavorite:    fav,
		AddedAt:       updated,
		LastUpdatedAt: updated,
		Media:         models.Media{ExternalID: ext, Kind: models.MediaMovie, Title: "Movie " + id},
	}, lib)
	require.NoError(t, err)
}

func jsonItems(items ...string) []byte {
	return []byte("[" + strings.Join(items, ",") + "]")
}

func TestImport_SmartMergesAndAdds(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	ctx := context.Background()
	seedRecord(t, s, "r1", 1, models.StatusWatching, true, epoch.Add(-48*time.Hour), nil)

	data := jsonItems(
		`{"id": 1, "media_type": "movie", "status": "completed", "isFavorite": false, "addedAt": "2024-01-01T00:00:00Z", "lastUpdatedAt": "2024-02-29T10:00:00Z"}`,
		`{"id": 2, "media_type": "tv", "title": "New Show", "status": "willWatch", "isFavorite": false, "addedAt": "2024-02-01T00:00:00Z", "lastUpdatedAt": "2024-02-02T00:00:00Z"}`,
	)
	report, err := svc.Import(ctx, data, ImportRequest{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 0, report.Failed)

	r1, err := s.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, r1.Status)
	assert.True(t, r1.IsFavorite, "existing favorite kept by default")
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), r1.LastUpdatedAt)

	all, err := s.All(ctx, models.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		if rec.Media.Kind == models.MediaTV {
			assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), rec.AddedAt)
			assert.Equal(t, "New Show", rec.Media.Title)
		}
	}
}

func TestImport_RejectsMostlyInvalidFiles(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	data := jsonItems(
		`{"id": 1, "media_type": "movie", "isFavorite": false}`,
		`{"id": "x", "media_type": "movie", "isFavorite": false}`,
		`{"id": 3, "media_type": "book", "isFavorite": false}`,
	)

	_, err := svc.Import(context.Background(), data, ImportRequest{Format: FormatJSON})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	count, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImport_ToleratesMinorityInvalid(t *testing.T) {
	svc, _ := setupService(t, nil, Config{})
	data := jsonItems(
		`{"id": 1, "media_type": "movie", "isFavorite": false}`,
		`{"id": 2, "media_type": "movie", "isFavorite": false}`,
		`{"id": 3, "media_type": "book", "isFavorite": false}`,
	)

	report, err := svc.Import(context.Background(), data, ImportRequest{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 2, report.Added)
}

func TestImport_OverwriteRemovesMissing(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	ctx := context.Background()
	seedRecord(t, s, "r1", 1, models.StatusWatching, false, epoch, nil)
	seedRecord(t, s, "r2", 2, models.StatusWatching, false, epoch, nil)

	data := jsonItems(`{"id": 1, "media_type": "movie", "status": "dropped", "isFavorite": false}`)
	report, err := svc.Import(ctx, data, ImportRequest{Format: FormatJSON, Strategy: "overwrite"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	gone, err := s.Read(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := s.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDropped, kept.Status)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	data := jsonItems(`{"id": 1, "media_type": "movie", "isFavorite": false}`)

	report, err := svc.Import(context.Background(), data, ImportRequest{Format: FormatJSON, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Zero(t, report.Written)

	count, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImport_UnknownStrategy(t *testing.T) {
	svc, _ := setupService(t, nil, Config{})
	_, err := svc.Import(context.Background(), jsonItems(`{"id": 1, "media_type": "movie", "isFavorite": false}`), ImportRequest{Strategy: "merge-harder"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestImport_IntoLibraryKeepsOtherLibrariesIntact(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	ctx := context.Background()
	seedRecord(t, s, "r1", 1, models.StatusWatching, false, epoch, &models.LibraryRef{ID: "lib-1"})

	data := jsonItems(`{"id": 1, "media_type": "movie", "isFavorite": true, "recordId": "r1"}`)
	report, err := svc.Import(ctx, data, ImportRequest{Format: FormatJSON, LibraryID: "lib-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)

	r1, err := s.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "lib-1", r1.LibraryID())
	assert.False(t, r1.IsFavorite)

	count, err := s.Count(ctx, models.Filter{LibraryID: "lib-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExportFile_WritesParsableFile(t *testing.T) {
	svc, s := setupService(t, nil, Config{})
	seedRecord(t, s, "r1", 1, models.StatusCompleted, true, epoch, nil)
	seedRecord(t, s, "r2", 2, models.StatusWatching, false, epoch, nil)

	filename := filepath.Join(t.TempDir(), "library.csv")
	n, err := svc.ExportFile(context.Background(), "", FormatCSV, filename)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	items, err := Parse(data, FormatCSV)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSnapshot_UploadsAndPrunes(t *testing.T) {
	client := new(mocks.Client)
	svc, s := setupService(t, client, Config{Prefix: "snapshots", Retain: 1})
	seedRecord(t, s, "r1", 1, models.StatusCompleted, true, epoch, &models.LibraryRef{ID: "lib-1"})

	wantKey := "snapshots/lib-1/20240301T100000.000Z.json"
	client.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	client.On("PutObject", mock.Anything, "test-bucket", wantKey, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{Key: wantKey}, nil)
	client.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(mocks.Objects(
		"snapshots/lib-1/20240101T000000.000Z.json",
		wantKey,
		"snapshots/lib-1/notes.txt",
	))
	client.On("RemoveObjects", mock.Anything, "test-bucket", mock.Anything, mock.Anything).Return(mocks.RemoveErrors())

	info, err := svc.Snapshot(context.Background(), "lib-1")
	require.NoError(t, err)
	assert.Equal(t, wantKey, info.Key)
	assert.Equal(t, 1, info.Records)
	client.AssertCalled(t, "RemoveObjects", mock.Anything, "test-bucket", mock.Anything, mock.Anything)
}

func TestSnapshots_NewestFirst(t *testing.T) {
	client := new(mocks.Client)
	svc, _ := setupService(t, client, Config{})
	client.On("ListObjects", mock.Anything, "test-bucket", minio.ListObjectsOptions{Prefix: "snapshots/all/", Recursive: true}).
		Return(mocks.Objects(
			"snapshots/all/20240101T000000.000Z.json",
			"snapshots/all/20240301T100000.000Z.json",
		))

	infos, err := svc.Snapshots(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, epoch, infos[0].TakenAt)
}

func TestRestore_ImportsSnapshot(t *testing.T) {
	client := new(mocks.Client)
	svc, s := setupService(t, client, Config{})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []models.Record{{
		ID:     "r9",
		Status: models.StatusCompleted,
		Media:  models.Media{ExternalID: 9, Kind: models.MediaMovie, Title: "Nine"},
	}}, FormatJSON, epoch))
	key := "snapshots/all/20240301T100000.000Z.json"
	client.On("GetObject", mock.Anything, "test-bucket", key, mock.Anything).
		Return(io.NopCloser(bytes.NewReader(buf.Bytes())), nil)

	report, err := svc.Restore(context.Background(), key, ImportRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)

	got, err := s.Read(context.Background(), "r9")
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = svc.Restore(context.Background(), "elsewhere/file.json", ImportRequest{})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSnapshot_WithoutStorage(t *testing.T) {
	svc, _ := setupService(t, nil, Config{})
	_, err := svc.Snapshot(context.Background(), "")
	assert.Error(t, err)
}
