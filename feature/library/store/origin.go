package store

import (
	"context"
	"time"

	"library-sync/feature/library/models"
)

// Origin tells the store who issued a write.
type Origin int

const (
	// OriginLocal is a write from a local caller. Timestamps are stamped by the store.
	OriginLocal Origin = iota
	// OriginReplica is a remote change applied by the replication controller.
	OriginReplica
	// OriginImport is a write from a backup import.
	OriginImport
)

func (o Origin) String() string {
	switch o {
	case OriginReplica:
		return "replica"
	case OriginImport:
		return "import"
	default:
		return "local"
	}
}

type originKey struct{}

// WithOrigin marks writes issued with ctx. Non-local writes keep the timestamps
// they carry instead of being stamped with the current time.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the write origin carried by ctx.
func OriginFrom(ctx context.Context) Origin {
	if o, ok := ctx.Value(originKey{}).(Origin); ok {
		return o
	}
	return OriginLocal
}

// Op is the kind of a mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation describes a committed write. Record holds the new state, or the last state for deletes.
// Seq is the pending write journal sequence, zero for replicated writes.
type Mutation struct {
	Op     Op
	ID     string
	Record models.Record
	Origin Origin
	At     time.Time
	Seq    int64
}

// Listener receives committed mutations synchronously and must not block.
type Listener func(Mutation)
