package reconcile

import (
	"context"
	"time"
)

// Adapter defines model-specific comparison logic for items of type T.
type Adapter[T any] interface {
	// Name returns the unique name of this adapter (e.g., "library").
	Name() string

	// Key returns the identity used to match items across sides.
	Key(item T) string

	// CompareFields returns a description of every compared field that
	// differs, or nil when the items are equivalent.
	CompareFields(local, remote T) []string

	// UpdatedAt returns the item's last modification time.
	UpdatedAt(item T) time.Time
}

// Mutator executes planned actions.
type Mutator[T any] interface {
	// CreateLocal stores a remote-only item locally.
	CreateLocal(ctx context.Context, item T) error

	// UpdateLocal overwrites the local copy with a newer remote one.
	UpdateLocal(ctx context.Context, item T) error

	// PushRemote writes a local item to the remote side.
	PushRemote(ctx context.Context, item T) error

	// ResolveConflict reconciles two concurrent copies of the same item.
	ResolveConflict(ctx context.Context, local, remote T) error
}

// RemoteBatchPusher is implemented by mutators that can push several
// items in one round trip. ApplyPlan prefers it over PushRemote.
type RemoteBatchPusher[T any] interface {
	PushRemoteBatch(ctx context.Context, items []T) error
}

// LocalBatchWriter is implemented by mutators that can create or update
// several local items in one transaction.
type LocalBatchWriter[T any] interface {
	WriteLocalBatch(ctx context.Context, items []T) error
}

// Source loads one side of a comparison.
type Source[T any] func(ctx context.Context) ([]T, error)
