package reconcile

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Compare partitions the union of keys from both sides. Every key lands in
// exactly one partition and the report's slices are sorted.
func Compare[T any](spec *Spec[T], local, remote map[string]T) *Report {
	union := buildUnion(local, remote)

	keys := make([]string, 0, len(union))
	for key := range union {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	report := &Report{Results: make([]ReconcileResult, 0, len(keys))}
	for _, key := range keys {
		result := buildResult(spec, key, local, remote)
		report.Results = append(report.Results, result)

		switch result.Partition {
		case PartitionLocalOnly:
			report.LocalOnly = append(report.LocalOnly, key)
		case PartitionRemoteOnly:
			report.RemoteOnly = append(report.RemoteOnly, key)
		case PartitionIdentical:
			report.Identical = append(report.Identical, key)
		case PartitionConflict:
			report.Conflict = append(report.Conflict, key)
		case PartitionNeedsLocalUpdate:
			report.NeedsLocalUpdate = append(report.NeedsLocalUpdate, key)
		case PartitionNeedsRemoteUpdate:
			report.NeedsRemoteUpdate = append(report.NeedsRemoteUpdate, key)
		}
	}

	return report
}

// Classify compares a single pair of copies of the same key.
func Classify[T any](spec *Spec[T], local, remote T) ReconcileResult {
	result := ReconcileResult{
		Key:           spec.Adapter.Key(local),
		LocalPresent:  true,
		RemotePresent: true,
	}

	result.Mismatch = spec.Adapter.CompareFields(local, remote)
	result.Skew = spec.Adapter.UpdatedAt(local).Sub(spec.Adapter.UpdatedAt(remote))

	if len(result.Mismatch) == 0 {
		result.Partition = PartitionIdentical
		return result
	}

	abs := result.Skew
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs < spec.window():
		result.Partition = PartitionConflict
	case result.Skew > 0:
		result.Partition = PartitionNeedsRemoteUpdate
	default:
		result.Partition = PartitionNeedsLocalUpdate
	}

	return result
}

// Index keys items by the adapter's key. Later duplicates replace earlier ones.
func Index[T any](adapter Adapter[T], items []T) map[string]T {
	index := make(map[string]T, len(items))
	for _, item := range items {
		index[adapter.Key(item)] = item
	}
	return index
}

// Snapshot loads both sides concurrently and indexes them.
func Snapshot[T any](ctx context.Context, spec *Spec[T], local, remote Source[T]) (map[string]T, map[string]T, error) {
	var localItems, remoteItems []T

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := local(gctx)
		if err != nil {
			return fmt.Errorf("failed to load local %s snapshot: %w", spec.Adapter.Name(), err)
		}
		localItems = items
		return nil
	})
	g.Go(func() error {
		items, err := remote(gctx)
		if err != nil {
			return fmt.Errorf("failed to load remote %s snapshot: %w", spec.Adapter.Name(), err)
		}
		remoteItems = items
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return Index(spec.Adapter, localItems), Index(spec.Adapter, remoteItems), nil
}

// buildUnion creates a union of all keys from both sides.
func buildUnion[T any](local, remote map[string]T) map[string]struct{} {
	union := make(map[string]struct{}, len(local)+len(remote))

	for key := range local {
		union[key] = struct{}{}
	}
	for key := range remote {
		union[key] = struct{}{}
	}

	return union
}

// buildResult creates a ReconcileResult for a single key.
func buildResult[T any](spec *Spec[T], key string, local, remote map[string]T) ReconcileResult {
	localItem, localPresent := local[key]
	remoteItem, remotePresent := remote[key]

	switch {
	case localPresent && remotePresent:
		result := Classify(spec, localItem, remoteItem)
		result.Key = key
		return result
	case localPresent:
		return ReconcileResult{Key: key, Partition: PartitionLocalOnly, LocalPresent: true}
	default:
		return ReconcileResult{Key: key, Partition: PartitionRemoteOnly, RemotePresent: true}
	}
}
