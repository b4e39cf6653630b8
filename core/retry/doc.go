// Package retry provides the bounded retry policy wrapped around every store write.
//
// A Policy is generic over any fallible operation. Waits grow exponentially from BaseDelay
// by Multiplier, capped at MaxDelay, optionally jittered. Errors classified as
// non-retryable by errs.Retryable (validation, not found, duplicate, cancellation) are
// returned immediately.
package retry
