package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-sync/feature/library/models"
)

// ErrNoScope is returned when a sync is requested without a user.
var ErrNoScope = errors.New("replication scope requires a user id")

// Scope selects the documents replicated for one user, optionally narrowed
// to a single library.
type Scope struct {
	UserID    string `json:"userId"`
	LibraryID string `json:"libraryId,omitempty"`
}

// Identifier names the replication stream of the user.
func (s Scope) Identifier() string {
	return "library-sync-" + s.UserID
}

// Validate reports a missing user.
func (s Scope) Validate() error {
	if s.UserID == "" {
		return ErrNoScope
	}
	return nil
}

// Filter returns the local filter selecting the scope's records.
func (s Scope) Filter() models.Filter {
	return models.Filter{LibraryID: s.LibraryID}
}

// Contains reports whether the record belongs to the scope.
func (s Scope) Contains(r *models.Record) bool {
	return s.LibraryID == "" || r.LibraryID() == s.LibraryID
}

func (s Scope) String() string {
	if s.LibraryID == "" {
		return s.UserID
	}
	return fmt.Sprintf("%s/%s", s.UserID, s.LibraryID)
}

// Document is the remote copy of a record.
type Document struct {
	Record  models.Record `json:"record"`
	UserID  string        `json:"userId"`
	Deleted bool          `json:"deleted"`
	// ModifiedAt is stamped by the backend on every write and orders the change feed.
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Checkpoint marks a position in the change feed.
type Checkpoint struct {
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
}

// After reports whether the checkpoint lies after o.
func (c Checkpoint) After(o Checkpoint) bool {
	if !c.UpdatedAt.Equal(o.UpdatedAt) {
		return c.UpdatedAt.After(o.UpdatedAt)
	}
	return c.ID > o.ID
}

// CheckpointOf returns the feed position of a document.
func CheckpointOf(d Document) Checkpoint {
	return Checkpoint{UpdatedAt: d.ModifiedAt, ID: d.Record.ID}
}

// ChangeBatch is one delivery of the change stream. A batch with Err ends the stream.
type ChangeBatch struct {
	Documents  []Document
	Checkpoint Checkpoint
	Err        error
}

// Backend is the remote document service.
type Backend interface {
	// Get returns the document, tombstones included, or nil when absent.
	Get(ctx context.Context, scope Scope, id string) (*Document, error)
	// Put writes the document and returns it with ModifiedAt set.
	Put(ctx context.Context, scope Scope, doc Document) (Document, error)
	// Delete soft-deletes the document with a tombstone stamped at.
	Delete(ctx context.Context, scope Scope, id string, at time.Time) error
	// Changes lists documents modified after since, ordered by (ModifiedAt, id).
	Changes(ctx context.Context, scope Scope, since Checkpoint, limit int) ([]Document, error)
	// Subscribe streams change batches after since until ctx is done.
	Subscribe(ctx context.Context, scope Scope, since Checkpoint) (<-chan ChangeBatch, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// BatchPutter is implemented by backends that write several documents at once.
type BatchPutter interface {
	PutBatch(ctx context.Context, scope Scope, docs []Document) error
}

// toDocument builds the pushed form of a local record.
func toDocument(scope Scope, r models.Record) Document {
	r = r.Clone()
	if r.Library == nil && scope.LibraryID != "" {
		r.Library = &models.LibraryRef{ID: scope.LibraryID}
	}
	return Document{Record: r, UserID: scope.UserID}
}

// fromDocument fills what older clients may have left out of a pulled document.
func fromDocument(d Document, now time.Time) models.Record {
	r := d.Record.Clone()
	if r.Status == "" {
		r.Status = models.StatusNone
	}
	if r.LastUpdatedAt.IsZero() {
		r.LastUpdatedAt = now
	}
	if r.AddedAt.IsZero() {
		r.AddedAt = r.LastUpdatedAt
	}
	r.Media = models.NormalizeMedia(r.Media)
	return r
}
