// Package replication keeps the local record store and a remote backend in
// step for one user and library scope.
//
// # Lifecycle
//
// Start opens a replication for a scope. Concurrent Start calls for the same
// scope share one Handle; a different scope stops the running replication
// first. Each session runs a full cycle (push pending writes, reconcile both
// snapshots, resolve conflicts) and then follows the remote change stream
// while a push loop drains local writes. Lost connections move the state to
// error and the session is retried after the reconnect delay until Stop.
//
// # Pending operations
//
// The queue mirrors the store's pending write journal for the active scope.
// It is loaded on New and on every Start, and local writes observed from the
// store are added per record id, latest write wins. An entry is acknowledged,
// in memory and in the journal, only when the pushed version is still the
// newest one queued. Deletes are pushed as tombstones so an offline delete is
// not revived by the next snapshot, across restarts too.
//
// Stop stops the pull stream first, then waits up to the drain timeout for
// pushes in flight before cancelling them. Cancelled writes stay pending.
//
// # Status
//
// Status carries the state, the pending count and the last successful sync.
// Subscribers always receive the latest value; intermediate values may be
// skipped.
package replication
