// Package errs defines the error taxonomy shared by the record store, the batch operator
// and the replication controller.
//
// Every error type carries a Kind. Deterministic local failures (validation, not found,
// duplicate) are never retried; transient faults surface as MaxRetriesExceeded once the
// retry policy gives up; replication failures surface as SyncError; bulk operations that
// completed with item failures surface as PartialBatchFailure.
//
// # Usage
//
//	if errs.KindOf(err) == errs.KindNotFound {
//	    return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
//	}
package errs
