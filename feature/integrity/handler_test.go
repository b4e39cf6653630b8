package integrity

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"library-sync/core/storage/mocks"
	"library-sync/feature/library/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, r Remote) (*fiber.App, *mocks.Client) {
	app := fiber.New()
	client := new(mocks.Client)
	svc := newService(setupDB(t, &models.RecordRow{}, &models.PendingRow{}), client, r)
	NewHandler(svc).RegisterRoutes(app)
	return app, client
}

func decode(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandleIntegrityCheck(t *testing.T) {
	app, client := setupTestApp(t, nil)
	client.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	client.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(mocks.Objects())

	code, body := decode(t, app, "/integrity")
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["healthy"])
}

func TestHandleIntegrityCheck_Unhealthy(t *testing.T) {
	app, client := setupTestApp(t, &fakeRemote{err: errors.New("timeout")})
	client.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil)

	code, body := decode(t, app, "/integrity")
	assert.Equal(t, 503, code)
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, "error", body["remote"].(map[string]any)["status"])
}

func TestHandleSchemaCheck(t *testing.T) {
	app, _ := setupTestApp(t, nil)

	code, body := decode(t, app, "/integrity/schema")
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["local"].(map[string]any)["matched"])
	assert.NotContains(t, body, "remote")
}

func TestHandleStorageCheck_Fix(t *testing.T) {
	app, client := setupTestApp(t, nil)
	client.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil).Twice()
	client.On("MakeBucket", mock.Anything, "test-bucket", mock.Anything).Return(nil).Once()
	client.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	client.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(mocks.Objects())

	code, body := decode(t, app, "/integrity/storage?fix=true")
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["exists"])
	client.AssertExpectations(t)
}

func TestHandleRemoteCheck(t *testing.T) {
	app, _ := setupTestApp(t, &fakeRemote{})
	code, body := decode(t, app, "/integrity/remote")
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["reachable"])

	app, _ = setupTestApp(t, &fakeRemote{err: errors.New("down")})
	code, body = decode(t, app, "/integrity/remote")
	assert.Equal(t, 503, code)
	assert.Equal(t, "down", body["error"])
}
