package integrity

import (
	"context"
	"errors"
	"testing"

	"library-sync/core/database"
	"library-sync/core/storage"
	"library-sync/core/storage/mocks"
	"library-sync/feature/library/models"
	"library-sync/feature/replication/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRemote struct {
	db  *gorm.DB
	err error
}

func (f *fakeRemote) Ping(context.Context) error { return f.err }
func (f *fakeRemote) DB() *gorm.DB               { return f.db }

func setupDB(t *testing.T, tables ...any) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	if len(tables) > 0 {
		require.NoError(t, db.AutoMigrate(tables...))
	}
	return db
}

func newService(db *gorm.DB, client storage.Client, r Remote) *Service {
	return NewService(db, client, storage.Config{Bucket: "test-bucket", TimeoutSeconds: 1}, "snapshots", r, zap.NewNop())
}

func TestService_Run_Healthy(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	client.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(mocks.Objects("snapshots/all/a.json"))

	r := &fakeRemote{db: setupDB(t, &remote.DocumentRow{})}
	svc := newService(setupDB(t, &models.RecordRow{}, &models.PendingRow{}), client, r)

	report := svc.Run(context.Background())
	assert.True(t, report.Healthy, "%+v", report)
	assert.Nil(t, report.Errors)
	assert.True(t, report.Schema.Matched)
	require.NotNil(t, report.RemoteSchema)
	assert.True(t, report.RemoteSchema.Matched)
	assert.Equal(t, 1, report.Storage.Snapshots)
	assert.Equal(t, "ok", report.Remote.Status)
}

func TestService_Run_WithoutOptionalParts(t *testing.T) {
	svc := newService(setupDB(t, &models.RecordRow{}, &models.PendingRow{}), nil, nil)

	report := svc.Run(context.Background())
	assert.True(t, report.Healthy)
	assert.Nil(t, report.Storage)
	assert.Nil(t, report.RemoteSchema)
	assert.Equal(t, "disabled", report.Remote.Status)
}

func TestService_Run_Failures(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "test-bucket").Return(false, errors.New("access denied"))

	r := &fakeRemote{err: errors.New("dial tcp: connection refused")}
	svc := newService(setupDB(t), client, r)

	report := svc.Run(context.Background())
	assert.False(t, report.Healthy)
	assert.False(t, report.Schema.Matched)
	assert.Contains(t, report.Errors["storage"], "access denied")
	assert.Equal(t, "error", report.Remote.Status)
	assert.Nil(t, report.RemoteSchema)
}

func TestService_FixStorage(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil)
	client.On("MakeBucket", mock.Anything, "test-bucket", mock.Anything).Return(nil)

	svc := newService(setupDB(t), client, nil)
	require.NoError(t, svc.FixStorage(context.Background()))
	client.AssertCalled(t, "MakeBucket", mock.Anything, "test-bucket", mock.Anything)
}
