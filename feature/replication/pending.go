package replication

import (
	"cmp"
	"slices"
	"sync"

	"library-sync/feature/library/store"
)

// pendingOp is the latest unacknowledged local write of a record. Writes
// coalesce: only the newest state is pushed, but every write is counted.
// Seq is the store's journal sequence, so acknowledgments reach the journal.
type pendingOp = store.PendingWrite

// pendingQueue mirrors the store's pending write journal for the active scope.
type pendingQueue struct {
	mu    sync.Mutex
	ops   map[string]pendingOp
	total int
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{ops: make(map[string]pendingOp)}
}

// add records one write and returns the new pending count. Writes already
// known, such as ones loaded from the journal, are ignored.
func (q *pendingQueue) add(op pendingOp) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, ok := q.ops[op.ID]
	if ok && prev.Seq >= op.Seq {
		return q.total
	}
	op.Record = op.Record.Clone()
	op.Writes = prev.Writes + 1
	q.ops[op.ID] = op
	q.total++
	return q.total
}

// load replaces the queue with journaled operations and returns the count.
// Queued operations newer than the journal read, and kept by keep, survive.
func (q *pendingQueue) load(ops []pendingOp, keep func(pendingOp) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make(map[string]pendingOp, len(ops))
	for _, op := range ops {
		op.Record = op.Record.Clone()
		next[op.ID] = op
	}
	for id, op := range q.ops {
		if cur, ok := next[id]; keep(op) && (!ok || op.Seq > cur.Seq) {
			next[id] = op
		}
	}
	q.ops = next
	q.total = 0
	for _, op := range next {
		q.total += op.Writes
	}
	return q.total
}

// snapshot returns the queued operations in write order.
func (q *pendingQueue) snapshot() []pendingOp {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]pendingOp, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op)
	}
	slices.SortFunc(out, func(a, b pendingOp) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// ack removes op unless a newer write replaced it, and returns the new count.
func (q *pendingQueue) ack(op pendingOp) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.ops[op.ID]
	if !ok {
		return q.total
	}
	if cur.Seq == op.Seq {
		delete(q.ops, op.ID)
		q.total -= cur.Writes
		return q.total
	}
	// Acknowledge the writes that were pushed and keep the newer ones.
	cur.Writes -= op.Writes
	q.total -= op.Writes
	q.ops[op.ID] = cur
	return q.total
}

// retain drops operations outside keep and returns the new count.
func (q *pendingQueue) retain(keep func(pendingOp) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, op := range q.ops {
		if !keep(op) {
			delete(q.ops, id)
			q.total -= op.Writes
		}
	}
	return q.total
}

func (q *pendingQueue) has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.ops[id]
	return ok
}

func (q *pendingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
