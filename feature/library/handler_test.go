package library

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"library-sync/core/database"
	"library-sync/core/retry"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/metadata"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupService(t *testing.T, provider metadata.Provider) (*Service, *store.Store) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	s := store.New(db, zap.NewNop(), store.WithRetry(retry.New(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})))
	require.NoError(t, s.Migrate())
	op := batch.New(s, zap.NewNop(), batch.Config{ClearSize: 2, UpdateSize: 2, Concurrency: 2})
	return NewService(s, op, provider, zap.NewNop()), s
}

func setupTestApp(t *testing.T) (*fiber.App, *store.Store) {
	t.Helper()
	provider := metadata.ProviderFunc(func(_ context.Context, kind models.MediaKind, id int64) (*models.Media, error) {
		if id == 603 {
			return &models.Media{Title: "The Matrix", Genres: []string{"Action"}}, nil
		}
		return nil, metadata.ErrNotFound
	})
	svc, s := setupService(t, provider)
	app := fiber.New()
	f := NewFeature(svc)
	require.True(t, f.IsEnabled())
	require.NoError(t, f.Load(app))
	return app, s
}

func seed(t *testing.T, s *store.Store, id string, ext int64, lib string, status models.Status) {
	t.Helper()
	var ref *models.LibraryRef
	if lib != "" {
		ref = &models.LibraryRef{ID: lib}
	}
	_, err := s.Create(context.Background(), models.Record{
		ID:     id,
		Status: status,
		Media:  models.Media{ExternalID: ext, Kind: models.MediaMovie, Title: "Movie " + id},
	}, ref)
	require.NoError(t, err)
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestHandleTrack(t *testing.T) {
	app, s := setupTestApp(t)

	code, body := doJSON(t, app, "POST", "/library/track", `{"kind": "movie", "externalId": 603, "libraryId": "lib", "status": "willWatch"}`)
	assert.Equal(t, 201, code)
	assert.Equal(t, true, body["created"])
	rec := body["record"].(map[string]any)
	assert.Equal(t, "willWatch", rec["status"])
	assert.Equal(t, "The Matrix", rec["media"].(map[string]any)["title"])
	id := rec["id"].(string)

	// Tracking again patches the same record
	code, body = doJSON(t, app, "POST", "/library/track", `{"kind": "movie", "externalId": 603, "libraryId": "lib", "isFavorite": true}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, false, body["created"])
	rec = body["record"].(map[string]any)
	assert.Equal(t, id, rec["id"])
	assert.Equal(t, "willWatch", rec["status"])
	assert.Equal(t, true, rec["isFavorite"])

	// Clearing every user field removes it
	code, body = doJSON(t, app, "POST", "/library/track", `{"kind": "movie", "externalId": 603, "libraryId": "lib", "status": "none", "isFavorite": false}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["removed"])
	got, err := s.Read(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleTrack_UnknownTitleGetsFallback(t *testing.T) {
	app, _ := setupTestApp(t)

	code, body := doJSON(t, app, "POST", "/library/track", `{"kind": "tv", "externalId": 42}`)
	assert.Equal(t, 201, code)
	rec := body["record"].(map[string]any)
	assert.Equal(t, "tv 42", rec["media"].(map[string]any)["title"])
	assert.Equal(t, "none", rec["status"])
}

func TestHandleTrack_Validation(t *testing.T) {
	app, _ := setupTestApp(t)

	code, body := doJSON(t, app, "POST", "/library/track", `{"kind": "book", "externalId": 0}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, "VALIDATION", body["kind"])

	code, _ = doJSON(t, app, "POST", "/library/track", `{"kind": "movie", "externalId": 1, "userRating": 11}`)
	assert.Equal(t, 400, code)
}

func TestHandleCRUD(t *testing.T) {
	app, _ := setupTestApp(t)

	code, body := doJSON(t, app, "POST", "/library/records", `{"id": "r1", "status": "watching", "media": {"externalId": 1, "kind": "tv", "title": "Dark"}}`)
	require.Equal(t, 201, code)
	assert.Equal(t, "r1", body["id"])

	code, _ = doJSON(t, app, "POST", "/library/records", `{"id": "r1", "media": {"externalId": 2, "kind": "tv"}}`)
	assert.Equal(t, 409, code)

	code, body = doJSON(t, app, "GET", "/library/records/r1", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "watching", body["status"])

	code, body = doJSON(t, app, "PATCH", "/library/records/r1", `{"status": "completed", "userRating": 9}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 9, body["userRating"])

	code, _ = doJSON(t, app, "DELETE", "/library/records/r1", "")
	assert.Equal(t, 204, code)

	code, body = doJSON(t, app, "GET", "/library/records/r1", "")
	assert.Equal(t, 404, code)
	assert.Equal(t, "NOT_FOUND", body["kind"])

	code, _ = doJSON(t, app, "DELETE", "/library/records/r1", "")
	assert.Equal(t, 404, code)
}

func TestHandleList(t *testing.T) {
	app, s := setupTestApp(t)
	seed(t, s, "a", 1, "lib", models.StatusCompleted)
	seed(t, s, "b", 2, "lib", models.StatusWatching)
	seed(t, s, "c", 3, "lib", models.StatusCompleted)
	seed(t, s, "d", 4, "", models.StatusCompleted)

	code, body := doJSON(t, app, "GET", "/library/records?library=lib&status=completed&sort=id&desc=true&limit=1", "")
	require.Equal(t, 200, code)
	assert.EqualValues(t, 2, body["total"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].(map[string]any)["id"])

	code, body = doJSON(t, app, "GET", "/library/records?unassigned=true", "")
	require.Equal(t, 200, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = doJSON(t, app, "GET", "/library/records?sort=popularity", "")
	assert.Equal(t, 400, code)

	code, _ = doJSON(t, app, "GET", "/library/records?limit=-1", "")
	assert.Equal(t, 400, code)
}

func TestHandleClear(t *testing.T) {
	app, s := setupTestApp(t)
	for i, id := range []string{"a", "b", "c"} {
		seed(t, s, id, int64(i+1), "lib", models.StatusCompleted)
	}
	seed(t, s, "other", 9, "other", models.StatusCompleted)

	code, _ := doJSON(t, app, "DELETE", "/library/records", "")
	assert.Equal(t, 400, code)

	code, body := doJSON(t, app, "DELETE", "/library/records?library=lib", "")
	assert.Equal(t, 200, code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 3, body["deleted"])

	n, err := s.Count(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	code, body = doJSON(t, app, "DELETE", "/library/records?all=true", "")
	assert.Equal(t, 200, code)
	assert.EqualValues(t, 1, body["deleted"])
}

func TestHandleBulkUpdate(t *testing.T) {
	app, s := setupTestApp(t)
	seed(t, s, "a", 1, "lib", models.StatusWillWatch)
	seed(t, s, "b", 2, "lib", models.StatusWillWatch)

	code, body := doJSON(t, app, "POST", "/library/records/bulk",
		`[{"id": "a", "patch": {"status": "completed"}}, {"id": "missing", "patch": {"status": "completed"}}, {"id": "b", "patch": {"isFavorite": true}}]`)
	assert.Equal(t, 207, code)
	assert.EqualValues(t, 2, body["successful"])
	assert.EqualValues(t, 1, body["failed"])

	rec, err := s.Read(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)

	code, _ = doJSON(t, app, "POST", "/library/records/bulk", `[]`)
	assert.Equal(t, 400, code)
}

func TestHandleStats(t *testing.T) {
	app, s := setupTestApp(t)
	seed(t, s, "a", 1, "lib", models.StatusCompleted)
	seed(t, s, "b", 2, "lib", models.StatusWatching)
	seed(t, s, "c", 3, "", models.StatusWatching)

	code, body := doJSON(t, app, "GET", "/library/stats?library=lib", "")
	require.Equal(t, 200, code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["movies"])
	assert.EqualValues(t, 1, body["byStatus"].(map[string]any)["watching"])
}
