package merge

import (
	"fmt"
	"strconv"
	"time"

	"library-sync/core/reconcile"
	"library-sync/feature/library/models"
)

// Adapter compares records on their user-editable state.
type Adapter struct {
	// ByMedia keys records by media identity instead of record id.
	ByMedia bool
}

var _ reconcile.Adapter[models.Record] = Adapter{}

func (a Adapter) Name() string {
	if a.ByMedia {
		return "library-media"
	}
	return "library"
}

func (a Adapter) Key(r models.Record) string {
	if a.ByMedia {
		return r.MediaKey()
	}
	return r.ID
}

func (Adapter) UpdatedAt(r models.Record) time.Time {
	return r.LastUpdatedAt
}

// CompareFields reports differences in status, favorite flag, rating and notes.
func (Adapter) CompareFields(local, remote models.Record) []string {
	var mismatch []string
	if local.Status != remote.Status {
		mismatch = append(mismatch, fmt.Sprintf("status: local=%s remote=%s", local.Status, remote.Status))
	}
	if local.IsFavorite != remote.IsFavorite {
		mismatch = append(mismatch, fmt.Sprintf("isFavorite: local=%t remote=%t", local.IsFavorite, remote.IsFavorite))
	}
	if l, r := formatRating(local.UserRating), formatRating(remote.UserRating); l != r {
		mismatch = append(mismatch, fmt.Sprintf("userRating: local=%s remote=%s", l, r))
	}
	if local.Notes != remote.Notes {
		mismatch = append(mismatch, fmt.Sprintf("notes: local=%d chars remote=%d chars", len(local.Notes), len(remote.Notes)))
	}
	return mismatch
}

func formatRating(v *int) string {
	if v == nil {
		return "none"
	}
	return strconv.Itoa(*v)
}
