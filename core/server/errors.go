package server

import (
	"context"
	"errors"

	"library-sync/core/errs"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusGatewayTimeout
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return fiber.StatusBadRequest
	case errs.KindNotFound:
		return fiber.StatusNotFound
	case errs.KindDuplicate:
		return fiber.StatusConflict
	case errs.KindPartialBatch:
		return fiber.StatusMultiStatus
	case errs.KindSync, errs.KindMaxRetries:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Error writes err as a JSON body with its kind, and violations for validation errors.
func Error(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"error": err.Error(),
		"kind":  errs.KindOf(err),
	}
	var validation *errs.ValidationError
	if errors.As(err, &validation) {
		body["violations"] = validation.Violations
	}
	var partial *errs.PartialBatchFailure
	if errors.As(err, &partial) {
		body["failures"] = partial.Items
	}
	return c.Status(StatusFor(err)).JSON(body)
}
