package merge

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"library-sync/core/reconcile"
	"library-sync/feature/library/models"
)

// Resolution picks the winning side of a conflict.
type Resolution string

const (
	ResolveNewer  Resolution = "newer"
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
)

// Options controls Merge.
type Options struct {
	PreserveLocalFavorites  bool
	PreserveRemoteFavorites bool
	// ConflictResolution defaults to ResolveNewer. Ties go to local.
	ConflictResolution Resolution
	// ConflictWindow defaults to reconcile.DefaultConflictWindow.
	ConflictWindow time.Duration
}

// Collection is a snapshot of records keyed by record id.
type Collection map[string]models.Record

// Collect indexes records by id.
func Collect(records []models.Record) Collection {
	return reconcile.Index[models.Record](Adapter{}, records)
}

// Sorted returns the records ordered by id.
func (c Collection) Sorted() []models.Record {
	keys := slices.Sorted(maps.Keys(c))
	out := make([]models.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, c[k])
	}
	return out
}

// Result is the outcome of Merge.
type Result struct {
	Merged  Collection
	Changes []string
	Report  *reconcile.Report
}

// Compare partitions the union of both snapshots.
func Compare(local, remote Collection, window time.Duration) *reconcile.Report {
	return reconcile.Compare(spec(window), local, remote)
}

// Merge folds remote into local. Applying the same remote twice yields the
// same collection as applying it once.
func Merge(local, remote Collection, opts Options) *Result {
	report := Compare(local, remote, opts.ConflictWindow)

	merged := make(Collection, len(local)+len(report.RemoteOnly))
	for id, rec := range local {
		merged[id] = rec.Clone()
	}

	var changes []string
	for _, id := range report.RemoteOnly {
		merged[id] = remote[id].Clone()
		changes = append(changes, fmt.Sprintf("added %s from remote", describe(remote[id])))
	}

	for _, id := range report.NeedsLocalUpdate {
		rec := remote[id].Clone()
		if opts.PreserveLocalFavorites && local[id].IsFavorite {
			rec.IsFavorite = true
		}
		merged[id] = rec
		changes = append(changes, fmt.Sprintf("updated %s from newer remote copy", describe(rec)))
	}

	for _, id := range report.Conflict {
		rec, side := resolve(local[id], remote[id], opts)
		merged[id] = rec
		changes = append(changes, fmt.Sprintf("resolved conflict on %s in favor of %s", describe(rec), side))
	}

	return &Result{Merged: merged, Changes: changes, Report: report}
}

// ResolveConflict returns the winner of two concurrent edits, with the
// favorite flag OR-ed in per the preserve options.
func ResolveConflict(local, remote models.Record, opts Options) models.Record {
	rec, _ := resolve(local, remote, opts)
	return rec
}

func resolve(local, remote models.Record, opts Options) (models.Record, string) {
	useRemote := false
	switch opts.ConflictResolution {
	case ResolveRemote:
		useRemote = true
	case ResolveLocal:
	default:
		useRemote = remote.LastUpdatedAt.After(local.LastUpdatedAt)
	}

	side := "local"
	rec := local.Clone()
	if useRemote {
		side = "remote"
		rec = remote.Clone()
	}

	if opts.PreserveLocalFavorites && local.IsFavorite {
		rec.IsFavorite = true
	}
	if opts.PreserveRemoteFavorites && remote.IsFavorite {
		rec.IsFavorite = true
	}
	return rec, side
}

func spec(window time.Duration) *reconcile.Spec[models.Record] {
	return &reconcile.Spec[models.Record]{Adapter: Adapter{}, ConflictWindow: window}
}

func describe(r models.Record) string {
	return fmt.Sprintf("%s (%s)", r.Media.Title, r.MediaKey())
}
