package merge

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"library-sync/feature/library/models"
)

// Strategy selects how imported items collide with existing records.
type Strategy string

const (
	StrategySmart     Strategy = "smart"
	StrategyOverwrite Strategy = "overwrite"
	StrategySkip      Strategy = "skip"
)

// ParseStrategy accepts the strategy names, defaulting "" to smart.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySmart:
		return StrategySmart, nil
	case StrategyOverwrite, StrategySkip:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// ImportOptions controls ImportMerge.
type ImportOptions struct {
	Strategy              Strategy
	KeepExistingFavorites bool
	// Library is assigned to records created by the import.
	Library *models.LibraryRef
	// Now stamps items without timestamps. Zero means time.Now.
	Now time.Time
	// Reserved holds ids used outside current that new records must not take.
	Reserved Collection
}

// ImportResult is the outcome of ImportMerge.
type ImportResult struct {
	// Merged is the resulting library keyed by record id.
	Merged Collection
	// Written holds the ids whose records were added or changed.
	Written []string
	// Removed holds ids of existing records dropped by an overwrite.
	Removed []string
	Added   int
	Updated int
	Skipped int
	Invalid int
	Changes []string
}

// ImportMerge merges loosely typed items into the current library, matching
// on media identity. Invalid items are counted and dropped.
func ImportMerge(items []Item, current Collection, opts ImportOptions) *ImportResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC().Truncate(time.Millisecond)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySmart
	}

	res := &ImportResult{Merged: make(Collection, len(current)+len(items))}

	existing := make(map[string]models.Record, len(current))
	for _, rec := range current {
		existing[rec.MediaKey()] = rec
	}

	imported := make(map[string]models.Record, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		rec, err := Decode(item, now)
		if err != nil {
			res.Invalid++
			continue
		}
		key := rec.MediaKey()
		if _, dup := imported[key]; !dup {
			order = append(order, key)
		}
		imported[key] = rec
	}

	if opts.Strategy != StrategyOverwrite {
		for id, rec := range current {
			res.Merged[id] = rec
		}
	}

	for _, key := range order {
		in := imported[key]
		old, found := existing[key]

		if !found {
			in.ID = newID(in.ID, current, res.Merged, opts.Reserved)
			if in.Library == nil && opts.Library != nil {
				lib := *opts.Library
				in.Library = &lib
			}
			res.Merged[in.ID] = in
			res.Written = append(res.Written, in.ID)
			res.Added++
			res.Changes = append(res.Changes, fmt.Sprintf("added %s", describe(in)))
			continue
		}

		switch opts.Strategy {
		case StrategySkip:
			res.Skipped++
			continue
		case StrategyOverwrite:
			rec := overwrite(old, in, opts.KeepExistingFavorites)
			res.Merged[rec.ID] = rec
			res.Written = append(res.Written, rec.ID)
			res.Updated++
			res.Changes = append(res.Changes, fmt.Sprintf("overwrote %s", describe(rec)))
		default:
			rec := smart(old, in, opts.KeepExistingFavorites)
			if models.SameUserState(&rec, &old) && rec.LastUpdatedAt.Equal(old.LastUpdatedAt) && rec.AddedAt.Equal(old.AddedAt) {
				res.Skipped++
				continue
			}
			res.Merged[rec.ID] = rec
			res.Written = append(res.Written, rec.ID)
			res.Updated++
			res.Changes = append(res.Changes, fmt.Sprintf("merged %s", describe(rec)))
		}
	}

	if opts.Strategy == StrategyOverwrite {
		for _, rec := range current.Sorted() {
			if _, kept := res.Merged[rec.ID]; !kept {
				res.Removed = append(res.Removed, rec.ID)
				res.Changes = append(res.Changes, fmt.Sprintf("removed %s", describe(rec)))
			}
		}
	}

	return res
}

// overwrite replaces old wholesale, keeping its id and library.
func overwrite(old, in models.Record, keepFavorites bool) models.Record {
	rec := in.Clone()
	rec.ID = old.ID
	rec.Library = old.Clone().Library
	if keepFavorites && old.IsFavorite {
		rec.IsFavorite = true
	}
	return rec
}

// smart lets the newer side win the user state, keeps the earlier addedAt
// and the later lastUpdatedAt.
func smart(old, in models.Record, keepFavorites bool) models.Record {
	rec := old.Clone()
	if in.LastUpdatedAt.After(old.LastUpdatedAt) {
		models.PatchFrom(&in).Apply(&rec)
		rec.Library = old.Clone().Library
		rec.LastUpdatedAt = in.LastUpdatedAt
	}
	if keepFavorites {
		rec.IsFavorite = old.IsFavorite || in.IsFavorite
	}
	if in.AddedAt.Before(rec.AddedAt) {
		rec.AddedAt = in.AddedAt
	}
	return rec
}

// newID keeps a supplied id unless it is taken by another record.
func newID(id string, taken ...Collection) string {
	if id == "" || len(id) > models.MaxIDLength {
		return uuid.NewString()
	}
	for _, c := range taken {
		if _, ok := c[id]; ok {
			return uuid.NewString()
		}
	}
	return id
}
