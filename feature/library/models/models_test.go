package models_test

import (
	"strings"
	"testing"
	"time"

	"library-sync/core/errs"
	"library-sync/feature/library/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validRecord() models.Record {
	return models.Record{
		Status: models.StatusWatching,
		Media: models.Media{
			ExternalID: 1396,
			Kind:       models.MediaTV,
			Title:      "Breaking Bad",
			Genres:     []string{"Drama"},
			Rating:     ptr(8.9),
		},
		Library: &models.LibraryRef{ID: "lib-1"},
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.Record)
		fields []string
	}{
		{"Valid", func(r *models.Record) {}, nil},
		{"Rating too high", func(r *models.Record) { r.UserRating = ptr(11) }, []string{models.FieldUserRating}},
		{"Rating zero", func(r *models.Record) { r.UserRating = ptr(0) }, []string{models.FieldUserRating}},
		{"Notes too long", func(r *models.Record) { r.Notes = strings.Repeat("a", 2001) }, []string{models.FieldNotes}},
		{"Notes at limit", func(r *models.Record) { r.Notes = strings.Repeat("é", 2000) }, nil},
		{"Unknown status", func(r *models.Record) { r.Status = "binging" }, []string{models.FieldStatus}},
		{"Bad kind", func(r *models.Record) { r.Media.Kind = "anime" }, []string{models.FieldMediaKind}},
		{"Empty title", func(r *models.Record) { r.Media.Title = " " }, []string{models.FieldMediaTitle}},
		{"Media rating range", func(r *models.Record) { r.Media.Rating = ptr(10.5) }, []string{models.FieldMediaRating}},
		{"Negative runtime", func(r *models.Record) { r.Media.RuntimeMinutes = -1 }, []string{models.FieldMediaRuntime}},
		{"Empty library id", func(r *models.Record) { r.Library = &models.LibraryRef{} }, []string{models.FieldLibraryID}},
		{"Several", func(r *models.Record) {
			r.UserRating = ptr(-2)
			r.Media.ExternalID = 0
		}, []string{models.FieldMediaID, models.FieldUserRating}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			err := models.ValidateRecord(&r)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var vErr *errs.ValidationError
			require.ErrorAs(t, err, &vErr)
			var got []string
			for _, v := range vErr.Violations {
				got = append(got, v.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidatePatch_OnlyPresentFields(t *testing.T) {
	assert.NoError(t, models.ValidatePatch(models.Patch{}))
	assert.NoError(t, models.ValidatePatch(models.Patch{UserRating: ptr(0), ClearUserRating: true}))

	err := models.ValidatePatch(models.Patch{UserRating: ptr(12)})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	bad := models.Status("later")
	err = models.ValidatePatch(models.Patch{Status: &bad, Notes: ptr("fine")})
	assert.ErrorContains(t, err, "status: must be one of none, watching, willWatch, onHold, dropped, completed")
}

func TestNormalizeMedia(t *testing.T) {
	m := models.NormalizeMedia(models.Media{
		ExternalID: 550,
		Kind:       models.MediaMovie,
		Genres:     []string{" Drama", "Drama ", "", "Thriller"},
		Networks:   []int64{49, 2, 49},
	})

	assert.Equal(t, "movie 550", m.Title)
	assert.Equal(t, []string{"Drama", "Thriller"}, m.Genres)
	assert.Equal(t, []int64{2, 49}, m.Networks)
}

func TestPatch_Apply(t *testing.T) {
	r := validRecord()
	r.UserRating = ptr(7)

	status := models.StatusCompleted
	p := models.Patch{Status: &status, Notes: ptr("great finale")}
	assert.True(t, p.Apply(&r))
	assert.Equal(t, models.StatusCompleted, r.Status)
	assert.Equal(t, "great finale", r.Notes)

	// Second application is a no-op
	assert.False(t, p.Apply(&r))

	assert.True(t, models.Patch{ClearUserRating: true, UserRating: ptr(3)}.Apply(&r))
	assert.Nil(t, r.UserRating)
	assert.True(t, models.Patch{}.IsEmpty())
}

func TestPatchFrom_ReproducesUserState(t *testing.T) {
	src := validRecord()
	src.IsFavorite = true
	src.Notes = "rewatch"
	src.LastUpdatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	target := validRecord()
	target.UserRating = ptr(4)
	models.PatchFrom(&src).Apply(&target)

	assert.True(t, models.SameUserState(&src, &target))
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := validRecord()
	r.UserRating = ptr(5)
	c := r.Clone()
	*c.UserRating = 9
	c.Media.Genres[0] = "Crime"
	c.Library.ID = "other"

	assert.Equal(t, 5, *r.UserRating)
	assert.Equal(t, "Drama", r.Media.Genres[0])
	assert.Equal(t, "lib-1", r.Library.ID)
}

func TestRecordRow_RoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := validRecord()
	r.ID = "rec-1"
	r.AddedAt = now
	r.LastUpdatedAt = now
	r.Library.UpdatedAt = &now

	row := models.RowFromRecord(&r)
	assert.Equal(t, "library_records", row.TableName())
	assert.Equal(t, "lib-1", *row.LibraryID)

	if diff := cmp.Diff(r, row.Record()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "tv-1396", r.MediaKey())
}
