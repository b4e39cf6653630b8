package models

import "time"

// RecordRow is the persisted form of a Record with the media snapshot flattened.
type RecordRow struct {
	ID            string    `gorm:"column:id;primaryKey;size:100"`
	Status        string    `gorm:"column:status;size:20;not null;index"`
	IsFavorite    bool      `gorm:"column:is_favorite;not null;index"`
	UserRating    *int      `gorm:"column:user_rating"`
	Notes         string    `gorm:"column:notes;size:2000"`
	AddedAt       time.Time `gorm:"column:added_at;not null;index"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null"`

	ExternalID     int64    `gorm:"column:external_id;not null;index:idx_library_records_media"`
	MediaKind      string   `gorm:"column:media_kind;size:10;not null;index:idx_library_records_media"`
	Title          string   `gorm:"column:title;size:255;not null"`
	Overview       string   `gorm:"column:overview"`
	PosterPath     string   `gorm:"column:poster_path;size:255"`
	ReleaseDate    string   `gorm:"column:release_date;size:32"`
	Genres         []string `gorm:"column:genres;serializer:json"`
	Rating         *float64 `gorm:"column:rating"`
	RuntimeMinutes int      `gorm:"column:runtime_minutes;not null;default:0"`
	Networks       []int64  `gorm:"column:networks;serializer:json"`

	LibraryID            *string    `gorm:"column:library_id;size:100;index"`
	LibraryAverageRating *float64   `gorm:"column:library_average_rating"`
	LibraryUpdatedAt     *time.Time `gorm:"column:library_updated_at"`
}

// TableName pins the table name.
func (RecordRow) TableName() string {
	return "library_records"
}

// RowFromRecord flattens a record for storage.
func RowFromRecord(r *Record) RecordRow {
	row := RecordRow{
		ID:             r.ID,
		Status:         string(r.Status),
		IsFavorite:     r.IsFavorite,
		UserRating:     r.UserRating,
		Notes:          r.Notes,
		AddedAt:        r.AddedAt.UTC(),
		LastUpdatedAt:  r.LastUpdatedAt.UTC(),
		ExternalID:     r.Media.ExternalID,
		MediaKind:      string(r.Media.Kind),
		Title:          r.Media.Title,
		Overview:       r.Media.Overview,
		PosterPath:     r.Media.PosterPath,
		ReleaseDate:    r.Media.ReleaseDate,
		Genres:         r.Media.Genres,
		Rating:         r.Media.Rating,
		RuntimeMinutes: r.Media.RuntimeMinutes,
		Networks:       r.Media.Networks,
	}
	if r.Library != nil {
		id := r.Library.ID
		row.LibraryID = &id
		row.LibraryAverageRating = r.Library.AverageRating
		row.LibraryUpdatedAt = r.Library.UpdatedAt
	}
	return row
}

// Record rebuilds the domain record.
func (row RecordRow) Record() Record {
	r := Record{
		ID:            row.ID,
		Status:        Status(row.Status),
		IsFavorite:    row.IsFavorite,
		UserRating:    row.UserRating,
		Notes:         row.Notes,
		AddedAt:       row.AddedAt.UTC(),
		LastUpdatedAt: row.LastUpdatedAt.UTC(),
		Media: Media{
			ExternalID:     row.ExternalID,
			Kind:           MediaKind(row.MediaKind),
			Title:          row.Title,
			Overview:       row.Overview,
			PosterPath:     row.PosterPath,
			ReleaseDate:    row.ReleaseDate,
			Genres:         row.Genres,
			Rating:         row.Rating,
			RuntimeMinutes: row.RuntimeMinutes,
			Networks:       row.Networks,
		},
	}
	if row.LibraryID != nil {
		r.Library = &LibraryRef{
			ID:            *row.LibraryID,
			AverageRating: row.LibraryAverageRating,
			UpdatedAt:     row.LibraryUpdatedAt,
		}
	}
	return r
}

// PendingRow journals the latest local write of a record that the remote
// backend has not acknowledged. Deletes stay journaled until pushed.
type PendingRow struct {
	RecordID string `gorm:"column:record_id;primaryKey;size:100"`
	Op       string `gorm:"column:op;size:10;not null"`
	Record   Record `gorm:"column:record;serializer:json"`
	Seq      int64  `gorm:"column:seq;not null;index"`
	Writes   int    `gorm:"column:writes;not null"`
}

// TableName pins the table name.
func (PendingRow) TableName() string {
	return "library_pending_writes"
}
