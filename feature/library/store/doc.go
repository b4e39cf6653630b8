// Package store is the local record store: validated CRUD, upsert and lazy queries over
// library records persisted with GORM.
//
// # Writes
//
// Create, Update, Delete and Upsert each run in one transaction wrapped by the bounded
// retry policy. Validation, not-found and duplicate failures are returned at once; other
// failures are retried and surface as errs.MaxRetriesExceeded once the policy gives up.
//
// Writes carry an Origin in their context. Local writes are stamped with the current
// time; replicated and imported writes keep the timestamps they bring, so last-writer-wins
// ordering survives replication.
//
// # Listeners
//
// Observe registers a Listener notified after every committed write. The replication
// controller uses it to queue local writes for push.
//
// # Pending writes
//
// Every write not issued by replication is also journaled in library_pending_writes in
// the same transaction, one row per record holding its latest state, deletes included.
// The journal survives restarts until AckPending removes the pushed entry, so an offline
// delete is still pushed after the process comes back.
//
// # Queries
//
// Query returns an iter.Seq2 loading one page per round trip. ListIDs offers keyset
// pagination for sweeps that delete as they go.
package store
