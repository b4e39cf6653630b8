package replication

import (
	"testing"

	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, lib string) models.Record {
	r := models.Record{ID: id, Status: models.StatusWatching}
	if lib != "" {
		r.Library = &models.LibraryRef{ID: lib}
	}
	return r
}

func write(op store.Op, seq int64, r models.Record) pendingOp {
	return pendingOp{ID: r.ID, Op: op, Record: r, Seq: seq}
}

func TestPendingQueue_CoalescesWritesPerRecord(t *testing.T) {
	q := newPendingQueue()
	q.add(write(store.OpCreate, 1, rec("a", "")))
	q.add(write(store.OpUpdate, 2, rec("b", "")))
	assert.Equal(t, 3, q.add(write(store.OpUpdate, 3, rec("a", ""))))

	ops := q.snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, "b", ops[0].ID)
	assert.Equal(t, "a", ops[1].ID)
	assert.Equal(t, store.OpUpdate, ops[1].Op)
	assert.Equal(t, 2, ops[1].Writes)
}

func TestPendingQueue_IgnoresKnownWrites(t *testing.T) {
	q := newPendingQueue()
	q.load([]pendingOp{{ID: "a", Op: store.OpUpdate, Record: rec("a", ""), Seq: 5, Writes: 2}}, func(pendingOp) bool { return true })

	assert.Equal(t, 2, q.add(write(store.OpUpdate, 5, rec("a", ""))))
	assert.Equal(t, 2, q.add(write(store.OpUpdate, 4, rec("a", ""))))
	assert.Equal(t, 3, q.add(write(store.OpDelete, 6, rec("a", ""))))
	assert.Equal(t, store.OpDelete, q.snapshot()[0].Op)
}

func TestPendingQueue_AckKeepsNewerWrite(t *testing.T) {
	q := newPendingQueue()
	q.add(write(store.OpCreate, 1, rec("a", "")))
	pushed := q.snapshot()[0]

	q.add(write(store.OpUpdate, 2, rec("a", "")))
	assert.Equal(t, 1, q.ack(pushed))
	assert.True(t, q.has("a"))

	assert.Equal(t, 0, q.ack(q.snapshot()[0]))
	assert.False(t, q.has("a"))
	assert.Equal(t, 0, q.ack(pushed))
}

func TestPendingQueue_LoadReplacesContents(t *testing.T) {
	q := newPendingQueue()
	q.add(write(store.OpCreate, 1, rec("stale", "")))

	all := func(pendingOp) bool { return true }
	n := q.load([]pendingOp{
		{ID: "stale", Op: store.OpUpdate, Record: rec("stale", ""), Seq: 2, Writes: 2},
		{ID: "a", Op: store.OpDelete, Record: rec("a", ""), Seq: 7, Writes: 3},
	}, all)
	assert.Equal(t, 5, n)
	assert.Equal(t, store.OpUpdate, q.snapshot()[0].Op)
}

func TestPendingQueue_LoadKeepsNewerQueuedWrites(t *testing.T) {
	q := newPendingQueue()
	q.add(write(store.OpDelete, 9, rec("a", "lib-1")))
	q.add(write(store.OpCreate, 10, rec("b", "lib-2")))

	scope := Scope{UserID: "alice", LibraryID: "lib-1"}
	n := q.load([]pendingOp{
		{ID: "a", Op: store.OpUpdate, Record: rec("a", "lib-1"), Seq: 4, Writes: 1},
	}, func(op pendingOp) bool { return scope.Contains(&op.Record) })

	assert.Equal(t, 1, n)
	require.Len(t, q.snapshot(), 1)
	assert.Equal(t, store.OpDelete, q.snapshot()[0].Op)
	assert.False(t, q.has("b"))
}

func TestPendingQueue_RetainDropsOutOfScope(t *testing.T) {
	q := newPendingQueue()
	q.add(write(store.OpCreate, 1, rec("a", "lib-1")))
	q.add(write(store.OpCreate, 2, rec("b", "lib-2")))
	q.add(write(store.OpUpdate, 3, rec("b", "lib-2")))

	scope := Scope{UserID: "alice", LibraryID: "lib-1"}
	n := q.retain(func(op pendingOp) bool { return scope.Contains(&op.Record) })
	assert.Equal(t, 1, n)
	assert.True(t, q.has("a"))
	assert.False(t, q.has("b"))
}
