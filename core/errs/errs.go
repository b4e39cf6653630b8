package errs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies an error class. String based for readable logs and JSON bodies.
type Kind string

const (
	// KindValidation indicates a field constraint was violated.
	KindValidation Kind = "VALIDATION"
	// KindNotFound indicates the referenced record does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindDuplicate indicates an id collision on create.
	KindDuplicate Kind = "ALREADY_EXISTS"
	// KindMaxRetries indicates a transient fault survived the retry policy.
	KindMaxRetries Kind = "MAX_RETRIES_EXCEEDED"
	// KindSync indicates a backend or network failure during replication.
	KindSync Kind = "SYNC_ERROR"
	// KindPartialBatch indicates a bulk operation finished with item failures.
	KindPartialBatch Kind = "PARTIAL_BATCH_FAILURE"
	// KindUnknown is returned for errors outside the taxonomy.
	KindUnknown Kind = "UNKNOWN"
)

// Violation is a single failed field constraint.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every violated constraint of a write.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// NewValidation builds a ValidationError with violations sorted by field.
func NewValidation(violations ...Violation) *ValidationError {
	sorted := append([]Violation(nil), violations...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	return &ValidationError{Violations: sorted}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports a missing record id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %q not found", e.ID)
}

// DuplicateError reports an id collision on create.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("record %q already exists", e.ID)
}

// MaxRetriesExceeded wraps the last cause once the retry policy is exhausted.
type MaxRetriesExceeded struct {
	Attempts int
	Cause    error
}

func (e *MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *MaxRetriesExceeded) Unwrap() error { return e.Cause }

// SyncError reports a replication failure for the named operation (push, pull, ...).
type SyncError struct {
	Op    string
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed: %v", e.Op, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// ItemFailure describes one failed item of a bulk operation.
type ItemFailure struct {
	ID           string `json:"id"`
	ErrorMessage string `json:"errorMessage"`
}

// PartialBatchFailure reports a bulk operation that ran to completion with failures.
type PartialBatchFailure struct {
	Op     string
	Total  int
	Failed int
	Items  []ItemFailure
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("%s finished with %d of %d items failed", e.Op, e.Failed, e.Total)
}

// KindOf classifies err, looking through wrapped errors. Errors that wrap a
// cause (sync, max retries) take precedence over the cause they carry.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		duplicate  *DuplicateError
		maxRetries *MaxRetriesExceeded
		syncErr    *SyncError
		partial    *PartialBatchFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &syncErr):
		return KindSync
	case errors.As(err, &maxRetries):
		return KindMaxRetries
	case errors.As(err, &partial):
		return KindPartialBatch
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &duplicate):
		return KindDuplicate
	default:
		return KindUnknown
	}
}

// Retryable reports whether retrying err could change the outcome.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindDuplicate, KindMaxRetries, KindPartialBatch:
		return false
	}
	return true
}
