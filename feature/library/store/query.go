package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"library-sync/core/errs"
	"library-sync/feature/library/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sortColumns = map[models.SortField]string{
	models.SortAddedAt:       "added_at",
	models.SortLastUpdatedAt: "last_updated_at",
	models.SortTitle:         "title",
	models.SortUserRating:    "user_rating",
	models.SortID:            "id",
}

// Query returns a lazy sequence of matching records. Rows are loaded one page at a time
// as the sequence is consumed, and ranging over it again re-runs the query.
// The default order is newest addedAt first.
func (s *Store) Query(ctx context.Context, filter models.Filter, sort models.Sort, page models.Page) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		order, err := orderBy(sort)
		if err != nil {
			yield(models.Record{}, err)
			return
		}

		offset := max(page.Offset, 0)
		remaining := page.Limit
		for {
			size := s.pageSize
			if page.Limit > 0 {
				if remaining <= 0 {
					return
				}
				size = min(size, remaining)
			}

			var rows []models.RecordRow
			err := s.filtered(ctx, filter).
				Order(order).
				Order("id").
				Offset(offset).
				Limit(size).
				Find(&rows).Error
			if err != nil {
				yield(models.Record{}, fmt.Errorf("failed to query records: %w", err))
				return
			}

			for _, row := range rows {
				if !yield(row.Record(), nil) {
					return
				}
			}
			if len(rows) < size {
				return
			}
			offset += len(rows)
			remaining -= len(rows)
		}
	}
}

// All drains a query into a slice.
func (s *Store) All(ctx context.Context, filter models.Filter) ([]models.Record, error) {
	var out []models.Record
	for rec, err := range s.Query(ctx, filter, models.Sort{Field: models.SortID}, models.Page{}) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, filter models.Filter) (int, error) {
	var n int64
	if err := s.filtered(ctx, filter).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

// ListIDs returns up to limit matching ids greater than afterID, in id order.
// Keyset pagination stays stable while earlier pages are being deleted.
func (s *Store) ListIDs(ctx context.Context, filter models.Filter, afterID string, limit int) ([]string, error) {
	var ids []string
	q := s.filtered(ctx, filter)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Order("id").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	return ids, nil
}

// FindByMedia returns the record tracking the title within the filter's
// library scope, or nil when the title is not tracked there.
func (s *Store) FindByMedia(ctx context.Context, filter models.Filter, kind models.MediaKind, externalID int64) (*models.Record, error) {
	var row models.RecordRow
	err := s.filtered(ctx, filter).
		Where("media_kind = ? AND external_id = ?", string(kind), externalID).
		Order("id").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", models.MediaKey(kind, externalID), err)
	}
	rec := row.Record()
	return &rec, nil
}

// Stats summarizes the matching records.
func (s *Store) Stats(ctx context.Context, filter models.Filter) (models.Stats, error) {
	type bucket struct {
		Status     string
		MediaKind  string
		IsFavorite bool
		Count      int
	}
	var buckets []bucket
	err := s.filtered(ctx, filter).
		Select("status, media_kind, is_favorite, COUNT(*) AS count").
		Group("status, media_kind, is_favorite").
		Scan(&buckets).Error
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	stats := models.Stats{ByStatus: make(map[models.Status]int, len(models.Statuses))}
	for _, st := range models.Statuses {
		stats.ByStatus[st] = 0
	}
	for _, b := range buckets {
		stats.Total += b.Count
		stats.ByStatus[models.Status(b.Status)] += b.Count
		switch models.MediaKind(b.MediaKind) {
		case models.MediaMovie:
			stats.Movies += b.Count
		case models.MediaTV:
			stats.TV += b.Count
		}
		if b.IsFavorite {
			stats.Favorites += b.Count
		}
	}

	var rated int64
	if err := s.filtered(ctx, filter).Where("user_rating IS NOT NULL").Count(&rated).Error; err != nil {
		return models.Stats{}, fmt.Errorf("failed to count rated records: %w", err)
	}
	stats.Rated = int(rated)
	return stats, nil
}

func (s *Store) filtered(ctx context.Context, f models.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.RecordRow{})
	switch {
	case f.Unassigned:
		q = q.Where("library_id IS NULL")
	case f.LibraryID != "":
		q = q.Where("library_id = ?", f.LibraryID)
	}
	if f.Kind != "" {
		q = q.Where("media_kind = ?", string(f.Kind))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Favorite != nil {
		q = q.Where("is_favorite = ?", *f.Favorite)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		like := "%" + escapeLike(strings.ToLower(text)) + "%"
		q = q.Where("(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(overview) LIKE ? ESCAPE '!' OR LOWER(genres) LIKE ? ESCAPE '!')", like, like, like)
	}
	return q
}

func orderBy(sort models.Sort) (clause.OrderByColumn, error) {
	field := sort.Field
	desc := sort.Desc
	if field == "" {
		field = models.SortAddedAt
		desc = true
	}
	column, ok := sortColumns[field]
	if !ok {
		return clause.OrderByColumn{}, errs.NewValidation(errs.Violation{Field: "sort", Reason: fmt.Sprintf("unknown sort field %q", field)})
	}
	return clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}, nil
}
