package checks

import (
	"regexp"
	"testing"

	"library-sync/core/database"
	"library-sync/feature/library/models"
	"library-sync/feature/replication/remote"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type typedRow struct {
	ID    int    `gorm:"column:id;type:int(11);primaryKey"`
	Label string `gorm:"column:label;type:varchar(64);not null"`
	Skip  string `gorm:"-"`
}

func (typedRow) TableName() string { return "typed_rows" }

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func setupSQLite(t *testing.T) *gorm.DB {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	return db
}

func TestCheckSchema_NilDB(t *testing.T) {
	report, err := CheckSchema(nil, models.RecordRow{})
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestCheckSchema_MigratedTablesMatch(t *testing.T) {
	db := setupSQLite(t)
	require.NoError(t, db.AutoMigrate(&models.RecordRow{}, &remote.DocumentRow{}))

	report, err := CheckSchema(db, models.RecordRow{}, remote.DocumentRow{})
	require.NoError(t, err)
	assert.True(t, report.Matched, "%+v", report)
	assert.Equal(t, "ok", report.Tables["library_records"].Status)

	// Embedded fields are checked too
	docs := report.Tables["library_documents"]
	assert.Equal(t, "ok", docs.Status)
	assert.Empty(t, docs.MissingColumns)
}

func TestCheckSchema_MissingTableAndColumns(t *testing.T) {
	db := setupSQLite(t)
	require.NoError(t, db.Exec("CREATE TABLE library_records (id TEXT PRIMARY KEY, status TEXT, title TEXT NOT NULL)").Error)

	report, err := CheckSchema(db, models.RecordRow{}, remote.DocumentRow{})
	require.NoError(t, err)
	assert.False(t, report.Matched)

	tbl := report.Tables["library_records"]
	assert.Equal(t, "error", tbl.Status)
	assert.Contains(t, tbl.MissingColumns, "is_favorite")
	assert.NotContains(t, tbl.MissingColumns, "title")
	assert.Contains(t, tbl.TypeMismatches, "status: expected not null, got nullable")

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "library_documents")
}

func TestCheckSchema_TypeMismatch(t *testing.T) {
	db, mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
		AddRow("id", "int(11)", "NO", "PRI", nil, "auto_increment").
		AddRow("label", "text", "NO", "", nil, "")
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM `typed_rows`")).WillReturnRows(rows)

	report, err := CheckSchema(db, typedRow{})
	require.NoError(t, err)
	assert.False(t, report.Matched)
	assert.Equal(t, []string{"label: expected varchar(64), got text"}, report.Tables["typed_rows"].TypeMismatches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSchema_InspectError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM `typed_rows`")).WillReturnError(assert.AnError)

	report, err := CheckSchema(db, typedRow{})
	require.NoError(t, err)
	assert.False(t, report.Matched)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "Failed to inspect table typed_rows")
}
