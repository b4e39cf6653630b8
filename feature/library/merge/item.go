package merge

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"library-sync/core/utils"
	"library-sync/feature/library/models"
)

// Item is one loosely typed entry of an import file.
type Item map[string]any

// Import field names. Alternate spellings written by older exports are also read.
const (
	KeyID             = "id"
	KeyMediaType      = "media_type"
	KeyTitle          = "title"
	KeyOverview       = "overview"
	KeyPosterPath     = "posterPath"
	KeyReleaseDate    = "releaseDate"
	KeyGenres         = "genres"
	KeyRating         = "rating"
	KeyRuntime        = "totalMinutesRuntime"
	KeyStatus         = "status"
	KeyIsFavorite     = "isFavorite"
	KeyUserRating     = "userRating"
	KeyAddedAt        = "addedAt"
	KeyLastUpdatedAt  = "lastUpdatedAt"
	KeyNotes          = "notes"
	KeyRecordID       = "recordId"
	keyLegacyAddedAt  = "addedToLibraryAt"
	keyLegacyRuntime  = "runtimeMinutes"
	keyLegacyPoster   = "poster_path"
	keyLegacyReleased = "release_date"
)

var (
	errBadID       = errors.New("id must be a positive integer")
	errBadKind     = errors.New("media_type must be movie or tv")
	errBadFavorite = errors.New("isFavorite must be a boolean")
)

// Decode turns an item into a record. Missing or unparsable timestamps
// become now and a missing status becomes none. The returned record has no
// library and its id is the item's recordId, if any.
func Decode(item Item, now time.Time) (models.Record, error) {
	var rec models.Record

	id, ok := utils.Number(item[KeyID])
	if !ok || id <= 0 || id != math.Trunc(id) {
		return rec, errBadID
	}

	kind := models.MediaKind(strings.TrimSpace(utils.ToString(item[KeyMediaType])))
	if kind != models.MediaMovie && kind != models.MediaTV {
		return rec, errBadKind
	}

	fav, ok := utils.StrictBool(item[KeyIsFavorite])
	if !ok {
		return rec, errBadFavorite
	}

	rec.ID = strings.TrimSpace(utils.ToString(item[KeyRecordID]))
	rec.IsFavorite = fav
	rec.Status = models.Status(strings.TrimSpace(utils.ToString(item[KeyStatus])))
	if rec.Status == "" {
		rec.Status = models.StatusNone
	}
	rec.Notes = utils.ToString(item[KeyNotes])

	if v, ok := utils.Number(item[KeyUserRating]); ok {
		rating := int(v)
		rec.UserRating = &rating
	}

	rec.AddedAt = timestamp(first(item, KeyAddedAt, keyLegacyAddedAt), now)
	rec.LastUpdatedAt = timestamp(item[KeyLastUpdatedAt], now)

	rec.Media = models.NormalizeMedia(models.Media{
		ExternalID:     int64(id),
		Kind:           kind,
		Title:          utils.ToString(item[KeyTitle]),
		Overview:       utils.ToString(item[KeyOverview]),
		PosterPath:     utils.ToString(first(item, KeyPosterPath, keyLegacyPoster)),
		ReleaseDate:    utils.ToString(first(item, KeyReleaseDate, keyLegacyReleased)),
		Genres:         genreList(item[KeyGenres]),
		RuntimeMinutes: utils.ToInt(first(item, KeyRuntime, keyLegacyRuntime)),
	})
	if v, ok := utils.Number(item[KeyRating]); ok {
		rec.Media.Rating = &v
	}

	if err := models.ValidateRecord(&rec); err != nil {
		return rec, fmt.Errorf("invalid %s: %w", models.MediaKey(kind, int64(id)), err)
	}
	return rec, nil
}

// Encode is the inverse of Decode for export.
func Encode(r models.Record) Item {
	item := Item{
		KeyID:            r.Media.ExternalID,
		KeyMediaType:     string(r.Media.Kind),
		KeyTitle:         r.Media.Title,
		KeyStatus:        string(r.Status),
		KeyIsFavorite:    r.IsFavorite,
		KeyAddedAt:       r.AddedAt.UTC().Format(time.RFC3339Nano),
		KeyLastUpdatedAt: r.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
		KeyRecordID:      r.ID,
		KeyRuntime:       r.Media.RuntimeMinutes,
	}
	if r.Media.Overview != "" {
		item[KeyOverview] = r.Media.Overview
	}
	if r.Media.PosterPath != "" {
		item[KeyPosterPath] = r.Media.PosterPath
	}
	if r.Media.ReleaseDate != "" {
		item[KeyReleaseDate] = r.Media.ReleaseDate
	}
	if len(r.Media.Genres) > 0 {
		item[KeyGenres] = r.Media.Genres
	}
	if r.Media.Rating != nil {
		item[KeyRating] = *r.Media.Rating
	}
	if r.UserRating != nil {
		item[KeyUserRating] = *r.UserRating
	}
	if r.Notes != "" {
		item[KeyNotes] = r.Notes
	}
	return item
}

func first(item Item, keys ...string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func timestamp(v any, now time.Time) time.Time {
	s := strings.TrimSpace(utils.ToString(v))
	if s == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return now
	}
	return t.UTC().Truncate(time.Millisecond)
}

func genreList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, g := range list {
			out = append(out, utils.ToString(g))
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return strings.Split(list, "|")
	}
	return nil
}
