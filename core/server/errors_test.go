package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"library-sync/core/errs"
	"library-sync/core/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NewValidation(errs.Violation{Field: "status", Reason: "unknown"}), fiber.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &errs.NotFoundError{ID: "x"}), fiber.StatusNotFound},
		{&errs.DuplicateError{ID: "x"}, fiber.StatusConflict},
		{&errs.PartialBatchFailure{Op: "bulk", Total: 2, Failed: 1}, fiber.StatusMultiStatus},
		{&errs.SyncError{Op: "push", Cause: errors.New("down")}, fiber.StatusServiceUnavailable},
		{&errs.SyncError{Op: "pull", Cause: errs.NewValidation(errs.Violation{Field: "status", Reason: "unknown"})}, fiber.StatusServiceUnavailable},
		{context.DeadlineExceeded, fiber.StatusGatewayTimeout},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, server.StatusFor(tt.err), tt.err.Error())
	}
}

func TestError_IncludesViolations(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return server.Error(c, errs.NewValidation(errs.Violation{Field: "userRating", Reason: "must be between 0 and 10"}))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Kind       string           `json:"kind"`
		Violations []errs.Violation `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "VALIDATION", body.Kind)
	require.Len(t, body.Violations, 1)
	assert.Equal(t, "userRating", body.Violations[0].Field)
}
