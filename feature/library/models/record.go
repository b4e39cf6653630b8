package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the user's watch progress for a title.
type Status string

const (
	StatusNone      Status = "none"
	StatusWatching  Status = "watching"
	StatusWillWatch Status = "willWatch"
	StatusOnHold    Status = "onHold"
	StatusDropped   Status = "dropped"
	StatusCompleted Status = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusNone, StatusWatching, StatusWillWatch, StatusOnHold, StatusDropped, StatusCompleted}

// MediaKind distinguishes movies from series.
type MediaKind string

const (
	MediaMovie MediaKind = "movie"
	MediaTV    MediaKind = "tv"
)

// Media is the snapshot of title metadata captured when the record is created.
type Media struct {
	ExternalID     int64     `json:"externalId"`
	Kind           MediaKind `json:"kind"`
	Title          string    `json:"title"`
	Overview       string    `json:"overview,omitempty"`
	PosterPath     string    `json:"posterPath,omitempty"`
	ReleaseDate    string    `json:"releaseDate,omitempty"`
	Genres         []string  `json:"genres,omitempty"`
	Rating         *float64  `json:"rating,omitempty"`
	RuntimeMinutes int       `json:"runtimeMinutes"`
	Networks       []int64   `json:"networks,omitempty"`
}

// LibraryRef points at the collection owning a record.
type LibraryRef struct {
	ID            string     `json:"id"`
	AverageRating *float64   `json:"averageRating,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Record is one user's tracking state for a single title.
type Record struct {
	ID            string      `json:"id"`
	Status        Status      `json:"status"`
	IsFavorite    bool        `json:"isFavorite"`
	UserRating    *int        `json:"userRating,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	AddedAt       time.Time   `json:"addedAt"`
	LastUpdatedAt time.Time   `json:"lastUpdatedAt"`
	Media         Media       `json:"media"`
	Library       *LibraryRef `json:"library,omitempty"`
}

// LibraryID returns the owning collection id, or "" for unassigned records.
func (r *Record) LibraryID() string {
	if r.Library == nil {
		return ""
	}
	return r.Library.ID
}

// MediaKey identifies the tracked title independently of the record id.
func (r *Record) MediaKey() string {
	return MediaKey(r.Media.Kind, r.Media.ExternalID)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.UserRating != nil {
		v := *r.UserRating
		out.UserRating = &v
	}
	if r.Media.Rating != nil {
		v := *r.Media.Rating
		out.Media.Rating = &v
	}
	out.Media.Genres = slices.Clone(r.Media.Genres)
	out.Media.Networks = slices.Clone(r.Media.Networks)
	if r.Library != nil {
		lib := *r.Library
		if lib.AverageRating != nil {
			v := *lib.AverageRating
			lib.AverageRating = &v
		}
		if lib.UpdatedAt != nil {
			v := *lib.UpdatedAt
			lib.UpdatedAt = &v
		}
		out.Library = &lib
	}
	return out
}

// MediaKey formats the cross-device identity of a title.
func MediaKey(kind MediaKind, externalID int64) string {
	return fmt.Sprintf("%s-%d", kind, externalID)
}

// NormalizeMedia trims and deduplicates set-like fields and synthesizes a missing title.
func NormalizeMedia(m Media) Media {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		m.Title = fmt.Sprintf("%s %d", m.Kind, m.ExternalID)
	}

	genres := make([]string, 0, len(m.Genres))
	seen := make(map[string]struct{}, len(m.Genres))
	for _, g := range m.Genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		genres = append(genres, g)
	}
	m.Genres = nil
	if len(genres) > 0 {
		m.Genres = genres
	}

	if len(m.Networks) > 0 {
		networks := slices.Clone(m.Networks)
		slices.Sort(networks)
		m.Networks = slices.Compact(networks)
	}
	return m
}

// SameUserState reports whether two records agree on every user-editable field.
func SameUserState(a, b *Record) bool {
	return a.Status == b.Status &&
		a.IsFavorite == b.IsFavorite &&
		equalRating(a.UserRating, b.UserRating) &&
		a.Notes == b.Notes
}

func equalRating(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
