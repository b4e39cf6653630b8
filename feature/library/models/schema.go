package models

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"library-sync/core/errs"
	"library-sync/core/utils"
)

// Field names used by the schema and in validation errors.
const (
	FieldID             = "id"
	FieldStatus         = "status"
	FieldUserRating     = "userRating"
	FieldNotes          = "notes"
	FieldMediaID        = "media.externalId"
	FieldMediaKind      = "media.kind"
	FieldMediaTitle     = "media.title"
	FieldMediaRating    = "media.rating"
	FieldMediaRuntime   = "media.runtimeMinutes"
	FieldLibraryID      = "library.id"
	FieldLibraryAverage = "library.averageRating"
)

const (
	MaxNotesLength = 2000
	MaxIDLength    = 100
)

// Constraint checks a present value and returns the violation reason, or "" when valid.
type Constraint func(value any) string

// Schema maps a field to the constraint every write must satisfy.
var Schema = map[string]Constraint{
	FieldID:             maxLen(MaxIDLength),
	FieldStatus:         oneOf(statusNames()...),
	FieldUserRating:     intRange(1, 10),
	FieldNotes:          maxLen(MaxNotesLength),
	FieldMediaID:        positive(),
	FieldMediaKind:      oneOf(string(MediaMovie), string(MediaTV)),
	FieldMediaTitle:     nonEmpty(),
	FieldMediaRating:    floatRange(0, 10),
	FieldMediaRuntime:   nonNegative(),
	FieldLibraryID:      all(nonEmpty(), maxLen(MaxIDLength)),
	FieldLibraryAverage: floatRange(0, 10),
}

// Validate checks every present value against the schema. Absent (nil) values are skipped.
func Validate(values map[string]any) error {
	var violations []errs.Violation
	for field, value := range values {
		if value == nil {
			continue
		}
		check, ok := Schema[field]
		if !ok {
			violations = append(violations, errs.Violation{Field: field, Reason: "unknown field"})
			continue
		}
		if reason := check(value); reason != "" {
			violations = append(violations, errs.Violation{Field: field, Reason: reason})
		}
	}
	if len(violations) > 0 {
		return errs.NewValidation(violations...)
	}
	return nil
}

// ValidateRecord checks every field of a record about to be created.
func ValidateRecord(r *Record) error {
	values := map[string]any{
		FieldStatus:       string(r.Status),
		FieldNotes:        r.Notes,
		FieldMediaID:      r.Media.ExternalID,
		FieldMediaKind:    string(r.Media.Kind),
		FieldMediaTitle:   r.Media.Title,
		FieldMediaRuntime: r.Media.RuntimeMinutes,
	}
	if r.ID != "" {
		values[FieldID] = r.ID
	}
	if r.UserRating != nil {
		values[FieldUserRating] = *r.UserRating
	}
	if r.Media.Rating != nil {
		values[FieldMediaRating] = *r.Media.Rating
	}
	addLibrary(values, r.Library)
	return Validate(values)
}

// ValidatePatch checks only the fields present in the patch.
func ValidatePatch(p Patch) error {
	values := map[string]any{}
	if p.Status != nil {
		values[FieldStatus] = string(*p.Status)
	}
	if p.UserRating != nil && !p.ClearUserRating {
		values[FieldUserRating] = *p.UserRating
	}
	if p.Notes != nil {
		values[FieldNotes] = *p.Notes
	}
	addLibrary(values, p.Library)
	return Validate(values)
}

func addLibrary(values map[string]any, lib *LibraryRef) {
	if lib == nil {
		return
	}
	values[FieldLibraryID] = lib.ID
	if lib.AverageRating != nil {
		values[FieldLibraryAverage] = *lib.AverageRating
	}
}

func statusNames() []string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return names
}

func oneOf(allowed ...string) Constraint {
	return func(value any) string {
		s := utils.ToString(value)
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func intRange(min, max int) Constraint {
	return func(value any) string {
		f, ok := utils.Number(value)
		if !ok || f != float64(int(f)) {
			return "must be an integer"
		}
		if n := int(f); n < min || n > max {
			return fmt.Sprintf("must be between %d and %d", min, max)
		}
		return ""
	}
}

func floatRange(min, max float64) Constraint {
	return func(value any) string {
		f, ok := utils.Number(value)
		if !ok {
			return "must be a number"
		}
		if f < min || f > max {
			return fmt.Sprintf("must be between %g and %g", min, max)
		}
		return ""
	}
}

func maxLen(n int) Constraint {
	return func(value any) string {
		if utf8.RuneCountInString(utils.ToString(value)) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
		return ""
	}
}

func nonEmpty() Constraint {
	return func(value any) string {
		if strings.TrimSpace(utils.ToString(value)) == "" {
			return "must not be empty"
		}
		return ""
	}
}

func positive() Constraint {
	return func(value any) string {
		if f, ok := utils.Number(value); !ok || f <= 0 {
			return "must be a positive number"
		}
		return ""
	}
}

func nonNegative() Constraint {
	return func(value any) string {
		if f, ok := utils.Number(value); !ok || f < 0 {
			return "must not be negative"
		}
		return ""
	}
}

func all(constraints ...Constraint) Constraint {
	return func(value any) string {
		for _, c := range constraints {
			if reason := c(value); reason != "" {
				return reason
			}
		}
		return ""
	}
}
