package reconcile

import "time"

// DefaultConflictWindow is the skew under which two differing edits are
// treated as concurrent rather than ordered.
const DefaultConflictWindow = time.Second

// Partition names the bucket a key lands in after comparing both sides.
type Partition string

const (
	// PartitionLocalOnly holds keys present only on the local side.
	PartitionLocalOnly Partition = "local_only"
	// PartitionRemoteOnly holds keys present only on the remote side.
	PartitionRemoteOnly Partition = "remote_only"
	// PartitionIdentical holds keys whose compared fields match.
	PartitionIdentical Partition = "identical"
	// PartitionConflict holds keys edited on both sides within the conflict window.
	PartitionConflict Partition = "conflict"
	// PartitionNeedsLocalUpdate holds keys where the remote copy is newer.
	PartitionNeedsLocalUpdate Partition = "needs_local_update"
	// PartitionNeedsRemoteUpdate holds keys where the local copy is newer.
	PartitionNeedsRemoteUpdate Partition = "needs_remote_update"
)

// ReconcileResult is the comparison outcome for a single key.
type ReconcileResult struct {
	// Key is the identity shared by both sides.
	Key string `json:"key"`

	// Partition is the bucket the key was placed in.
	Partition Partition `json:"partition"`

	// LocalPresent indicates the key exists locally.
	LocalPresent bool `json:"local_present"`

	// RemotePresent indicates the key exists remotely.
	RemotePresent bool `json:"remote_present"`

	// Mismatch describes differing fields, e.g. "status: local=watching remote=completed".
	Mismatch []string `json:"mismatch"`

	// Skew is local.UpdatedAt minus remote.UpdatedAt when both are present.
	Skew time.Duration `json:"skew"`
}

// Report groups compared keys by partition. Each key appears in exactly
// one partition and every slice is sorted.
type Report struct {
	LocalOnly         []string          `json:"local_only"`
	RemoteOnly        []string          `json:"remote_only"`
	Identical         []string          `json:"identical"`
	Conflict          []string          `json:"conflict"`
	NeedsLocalUpdate  []string          `json:"needs_local_update"`
	NeedsRemoteUpdate []string          `json:"needs_remote_update"`
	Results           []ReconcileResult `json:"results"`
}

// Keys returns the keys of a partition.
func (r *Report) Keys(p Partition) []string {
	switch p {
	case PartitionLocalOnly:
		return r.LocalOnly
	case PartitionRemoteOnly:
		return r.RemoteOnly
	case PartitionIdentical:
		return r.Identical
	case PartitionConflict:
		return r.Conflict
	case PartitionNeedsLocalUpdate:
		return r.NeedsLocalUpdate
	case PartitionNeedsRemoteUpdate:
		return r.NeedsRemoteUpdate
	}
	return nil
}

// Total returns the number of distinct keys compared.
func (r *Report) Total() int {
	return len(r.Results)
}

// Spec bundles the adapter and comparison settings.
type Spec[T any] struct {
	// Adapter provides model-specific comparison logic.
	Adapter Adapter[T]

	// ConflictWindow is the skew strictly under which differing edits conflict.
	// Zero means DefaultConflictWindow.
	ConflictWindow time.Duration
}

func (s *Spec[T]) window() time.Duration {
	if s.ConflictWindow <= 0 {
		return DefaultConflictWindow
	}
	return s.ConflictWindow
}

// ActionType represents the type of mutation action.
type ActionType string

const (
	// ActionCreateLocal creates a remote-only item locally.
	ActionCreateLocal ActionType = "create_local"
	// ActionUpdateLocal overwrites the local copy with a newer remote one.
	ActionUpdateLocal ActionType = "update_local"
	// ActionPushRemote writes the local copy to the remote side.
	ActionPushRemote ActionType = "push_remote"
	// ActionResolveConflict hands both copies to the conflict resolver.
	ActionResolveConflict ActionType = "resolve_conflict"
)

// Action represents a planned mutation operation.
type Action[T any] struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// Key is the entity identifier.
	Key string `json:"key"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Local is the local copy, when present.
	Local T `json:"-"`

	// Remote is the remote copy, when present.
	Remote T `json:"-"`
}

// Plan contains comparison results and planned actions.
type Plan[T any] struct {
	// Report is the partitioned comparison.
	Report *Report `json:"report"`

	// Actions contains planned mutation operations.
	Actions []Action[T] `json:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	TotalItems    int `json:"total_items"`
	LocalOnly     int `json:"local_only"`
	RemoteOnly    int `json:"remote_only"`
	Identical     int `json:"identical"`
	Conflicts     int `json:"conflicts"`
	LocalUpdates  int `json:"local_updates"`
	RemoteUpdates int `json:"remote_updates"`
}

// PlanOptions controls which partitions produce actions.
type PlanOptions struct {
	// DryRun prevents execution of any mutations if true.
	DryRun bool

	// PushLocalOnly pushes local-only items to the remote side.
	PushLocalOnly bool

	// PullRemoteOnly creates remote-only items locally.
	PullRemoteOnly bool

	// ResolveConflicts plans conflict resolution actions.
	ResolveConflicts bool
}

// DefaultPlanOptions enables every action kind.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{PushLocalOnly: true, PullRemoteOnly: true, ResolveConflicts: true}
}
