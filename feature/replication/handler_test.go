package replication_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"library-sync/feature/replication"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T, cfg replication.Config) (*fiber.App, *replication.Controller) {
	t.Helper()
	c := newController(t, setupLocal(t), setupRemote(t), cfg)
	app := fiber.New()
	f := replication.NewFeature(c, zap.NewNop())
	require.True(t, f.IsEnabled())
	require.NoError(t, f.Load(app))
	return app, c
}

func decodeStatus(t *testing.T, body io.Reader) replication.Status {
	t.Helper()
	var s replication.Status
	require.NoError(t, json.NewDecoder(body).Decode(&s))
	return s
}

func TestHandleStatus(t *testing.T) {
	app, _ := setupTestApp(t, testConfig())

	resp, err := app.Test(httptest.NewRequest("GET", "/sync/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, replication.StateOffline, decodeStatus(t, resp.Body).State)
}

func TestHandleStart_StartsAndStops(t *testing.T) {
	app, c := setupTestApp(t, testConfig())

	req := httptest.NewRequest("POST", "/sync/start", strings.NewReader(`{"userId":"alice","libraryId":"lib-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body replication.StartResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, c.Active().ID(), body.Handle)
	assert.Equal(t, replication.StateOnline, body.Status.State)
	require.NotNil(t, body.Status.Scope)
	assert.Equal(t, "lib-1", body.Status.Scope.LibraryID)

	resp, err = app.Test(httptest.NewRequest("POST", "/sync/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, replication.StateOffline, decodeStatus(t, resp.Body).State)
	assert.Nil(t, c.Active())
}

func TestHandleStart_WithoutScope(t *testing.T) {
	app, _ := setupTestApp(t, testConfig())

	resp, err := app.Test(httptest.NewRequest("POST", "/sync/start", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandleStart_FallsBackToConfiguredScope(t *testing.T) {
	cfg := testConfig()
	cfg.UserID = "alice"
	app, c := setupTestApp(t, cfg)

	resp, err := app.Test(httptest.NewRequest("POST", "/sync/start", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "alice", c.Active().Scope().UserID)
}

func TestHandleTrigger(t *testing.T) {
	app, _ := setupTestApp(t, testConfig())
	resp, err := app.Test(httptest.NewRequest("POST", "/sync/trigger", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	cfg := testConfig()
	cfg.UserID = "alice"
	app, _ = setupTestApp(t, cfg)
	resp, err = app.Test(httptest.NewRequest("POST", "/sync/trigger", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotNil(t, decodeStatus(t, resp.Body).LastSyncTime)
}

func TestHandlePush_NoopWhenInactive(t *testing.T) {
	app, _ := setupTestApp(t, testConfig())
	resp, err := app.Test(httptest.NewRequest("POST", "/sync/push", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestFeature_DisabledWithoutController(t *testing.T) {
	f := replication.NewFeature(nil, zap.NewNop())
	assert.False(t, f.IsEnabled())
	assert.Equal(t, "sync", f.Name())
}
