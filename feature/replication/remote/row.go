package remote

import (
	"time"

	"library-sync/feature/library/models"
	"library-sync/feature/replication"
)

// Fields mirrors models.RecordRow column for column, so documents convert
// to and from local rows directly.
type Fields struct {
	ID            string    `gorm:"column:id;primaryKey;size:100"`
	Status        string    `gorm:"column:status;size:20;not null"`
	IsFavorite    bool      `gorm:"column:is_favorite;not null"`
	UserRating    *int      `gorm:"column:user_rating"`
	Notes         string    `gorm:"column:notes;size:2000"`
	AddedAt       time.Time `gorm:"column:added_at;not null"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null"`

	ExternalID     int64    `gorm:"column:external_id;not null"`
	MediaKind      string   `gorm:"column:media_kind;size:10;not null"`
	Title          string   `gorm:"column:title;size:255;not null"`
	Overview       string   `gorm:"column:overview"`
	PosterPath     string   `gorm:"column:poster_path;size:255"`
	ReleaseDate    string   `gorm:"column:release_date;size:32"`
	Genres         []string `gorm:"column:genres;serializer:json"`
	Rating         *float64 `gorm:"column:rating"`
	RuntimeMinutes int      `gorm:"column:runtime_minutes;not null;default:0"`
	Networks       []int64  `gorm:"column:networks;serializer:json"`

	LibraryID            *string    `gorm:"column:library_id;size:100;index:idx_library_documents_library"`
	LibraryAverageRating *float64   `gorm:"column:library_average_rating"`
	LibraryUpdatedAt     *time.Time `gorm:"column:library_updated_at"`
}

// DocumentRow is a record replicated for one user.
type DocumentRow struct {
	UserID string `gorm:"column:user_id;primaryKey;size:100;index:idx_library_documents_feed,priority:1"`
	Fields
	Deleted    bool      `gorm:"column:deleted;not null;default:false"`
	ModifiedAt time.Time `gorm:"column:modified_at;not null;index:idx_library_documents_feed,priority:2"`
}

// TableName pins the table name.
func (DocumentRow) TableName() string {
	return "library_documents"
}

func rowFromDocument(scope replication.Scope, doc replication.Document, modified time.Time) DocumentRow {
	rec := doc.Record
	return DocumentRow{
		UserID:     scope.UserID,
		Fields:     Fields(models.RowFromRecord(&rec)),
		Deleted:    doc.Deleted,
		ModifiedAt: modified,
	}
}

// Document converts the row back.
func (r DocumentRow) Document() replication.Document {
	return replication.Document{
		Record:     models.RecordRow(r.Fields).Record(),
		UserID:     r.UserID,
		Deleted:    r.Deleted,
		ModifiedAt: r.ModifiedAt.UTC(),
	}
}
