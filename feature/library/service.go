package library

import (
	"context"

	"library-sync/core/errs"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/metadata"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"go.uber.org/zap"
)

// Service handles library operations.
type Service struct {
	store    *store.Store
	operator *batch.Operator
	provider metadata.Provider
	logger   *zap.Logger
}

// NewService creates a new library service. provider may be nil, in which case
// tracked titles get a synthesized snapshot.
func NewService(s *store.Store, operator *batch.Operator, provider metadata.Provider, logger *zap.Logger) *Service {
	return &Service{
		store:    s,
		operator: operator,
		provider: provider,
		logger:   logger,
	}
}

// TrackRequest records the user's state for a title.
type TrackRequest struct {
	Kind       models.MediaKind `json:"kind"`
	ExternalID int64            `json:"externalId"`
	// LibraryID selects the collection; empty tracks the title unassigned.
	LibraryID  string         `json:"libraryId,omitempty"`
	Status     *models.Status `json:"status,omitempty"`
	IsFavorite *bool          `json:"isFavorite,omitempty"`
	UserRating *int           `json:"userRating,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
}

func (r TrackRequest) patch() models.Patch {
	return models.Patch{Status: r.Status, IsFavorite: r.IsFavorite, UserRating: r.UserRating, Notes: r.Notes}
}

func (r TrackRequest) library() *models.LibraryRef {
	if r.LibraryID == "" {
		return nil
	}
	return &models.LibraryRef{ID: r.LibraryID}
}

func (r TrackRequest) scope() models.Filter {
	if r.LibraryID == "" {
		return models.Filter{Unassigned: true}
	}
	return models.Filter{LibraryID: r.LibraryID}
}

// TrackResult is the outcome of Track.
type TrackResult struct {
	Record  *models.Record `json:"record"`
	Created bool           `json:"created"`
	// Removed is set when the patch left the record without user state.
	Removed bool `json:"removed"`
}

// List returns one page of matching records and the number of matches.
func (s *Service) List(ctx context.Context, filter models.Filter, sort models.Sort, page models.Page) ([]models.Record, int, error) {
	out := []models.Record{}
	for rec, err := range s.store.Query(ctx, filter, sort, page) {
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get returns a record or a NotFoundError.
func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &errs.NotFoundError{ID: id}
	}
	return rec, nil
}

// Create stores a fully specified record.
func (s *Service) Create(ctx context.Context, rec models.Record) (*models.Record, error) {
	return s.store.Create(ctx, rec, nil)
}

// Track creates the record for a title or patches the one already tracked in
// the same collection.
func (s *Service) Track(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	if v := trackViolations(req); len(v) > 0 {
		return nil, errs.NewValidation(v...)
	}
	patch := req.patch()
	if err := models.ValidatePatch(patch); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByMedia(ctx, req.scope(), req.Kind, req.ExternalID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec := models.Record{Status: models.StatusNone}
		patch.Apply(&rec)
		rec.Media = metadata.Resolve(ctx, s.provider, req.Kind, req.ExternalID, s.logger)
		created, err := s.store.Create(ctx, rec, req.library())
		if err != nil {
			return nil, err
		}
		return &TrackResult{Record: created, Created: true}, nil
	}

	next := existing.Clone()
	if patch.Apply(&next) && untracked(&next) {
		if err := s.store.Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
		s.logger.Debug("Removed record without user state", zap.String("id", existing.ID))
		return &TrackResult{Record: existing, Removed: true}, nil
	}
	updated, err := s.store.Update(ctx, existing.ID, patch)
	if err != nil {
		return nil, err
	}
	return &TrackResult{Record: updated}, nil
}

func trackViolations(req TrackRequest) []errs.Violation {
	var v []errs.Violation
	if req.Kind != models.MediaMovie && req.Kind != models.MediaTV {
		v = append(v, errs.Violation{Field: "kind", Reason: "must be movie or tv"})
	}
	if req.ExternalID <= 0 {
		v = append(v, errs.Violation{Field: "externalId", Reason: "must be positive"})
	}
	return v
}

func untracked(r *models.Record) bool {
	return r.Status == models.StatusNone && !r.IsFavorite && r.UserRating == nil && r.Notes == ""
}

// Update patches a record.
func (s *Service) Update(ctx context.Context, id string, patch models.Patch) (*models.Record, error) {
	return s.store.Update(ctx, id, patch)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Clear deletes every record of the library, or every record when libraryID is empty.
func (s *Service) Clear(ctx context.Context, libraryID string) (*batch.ClearResult, error) {
	var lib *models.LibraryRef
	if libraryID != "" {
		lib = &models.LibraryRef{ID: libraryID}
	}
	return s.operator.ClearLibrary(ctx, lib, batch.ClearOptions{
		OnProgress: func(processed, total int) {
			s.logger.Debug("Clearing library", zap.String("library", libraryID), zap.Int("processed", processed), zap.Int("total", total))
		},
	})
}

// BulkUpdate patches many records. Item failures are reported in the result.
func (s *Service) BulkUpdate(ctx context.Context, updates []batch.Update) (*batch.Result, error) {
	return s.operator.BulkUpdate(ctx, updates, batch.BulkOptions{RequireNonEmpty: true})
}

// Stats summarizes the matching records.
func (s *Service) Stats(ctx context.Context, filter models.Filter) (models.Stats, error) {
	return s.store.Stats(ctx, filter)
}
