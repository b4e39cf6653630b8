package models

import "time"

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status     *Status `json:"status,omitempty"`
	IsFavorite *bool   `json:"isFavorite,omitempty"`
	UserRating *int    `json:"userRating,omitempty"`
	// ClearUserRating removes the rating. It wins over UserRating.
	ClearUserRating bool `json:"clearUserRating,omitempty"`
	// Notes replaces the notes; an empty string clears them.
	Notes *string `json:"notes,omitempty"`
	// Library reassigns the record to another collection.
	Library *LibraryRef `json:"library,omitempty"`
	// LastUpdatedAt is honored only for replicated and imported writes.
	LastUpdatedAt *time.Time `json:"-"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.IsFavorite == nil && p.UserRating == nil &&
		!p.ClearUserRating && p.Notes == nil && p.Library == nil
}

// Apply writes the patch onto r and reports whether any field changed.
func (p Patch) Apply(r *Record) bool {
	changed := false
	if p.Status != nil && *p.Status != r.Status {
		r.Status = *p.Status
		changed = true
	}
	if p.IsFavorite != nil && *p.IsFavorite != r.IsFavorite {
		r.IsFavorite = *p.IsFavorite
		changed = true
	}
	switch {
	case p.ClearUserRating:
		if r.UserRating != nil {
			r.UserRating = nil
			changed = true
		}
	case p.UserRating != nil:
		if !equalRating(r.UserRating, p.UserRating) {
			v := *p.UserRating
			r.UserRating = &v
			changed = true
		}
	}
	if p.Notes != nil && *p.Notes != r.Notes {
		r.Notes = *p.Notes
		changed = true
	}
	if p.Library != nil && !sameLibrary(r.Library, p.Library) {
		lib := *p.Library
		r.Library = &lib
		changed = true
	}
	return changed
}

// PatchFrom builds the patch turning any record into src's user state.
func PatchFrom(src *Record) Patch {
	status := src.Status
	fav := src.IsFavorite
	notes := src.Notes
	p := Patch{Status: &status, IsFavorite: &fav, Notes: &notes}
	if src.UserRating == nil {
		p.ClearUserRating = true
	} else {
		v := *src.UserRating
		p.UserRating = &v
	}
	if src.Library != nil {
		lib := *src.Library
		p.Library = &lib
	}
	at := src.LastUpdatedAt
	p.LastUpdatedAt = &at
	return p
}

func sameLibrary(a, b *LibraryRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID != b.ID {
		return false
	}
	if (a.AverageRating == nil) != (b.AverageRating == nil) {
		return false
	}
	if a.AverageRating != nil && *a.AverageRating != *b.AverageRating {
		return false
	}
	if (a.UpdatedAt == nil) != (b.UpdatedAt == nil) {
		return false
	}
	return a.UpdatedAt == nil || a.UpdatedAt.Equal(*b.UpdatedAt)
}
