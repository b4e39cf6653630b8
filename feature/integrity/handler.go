package integrity

import (
	"library-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Get("/storage", h.HandleStorageCheck)
	group.Get("/remote", h.HandleRemoteCheck)
}

// HandleIntegrityCheck runs all integrity checks.
// @Summary Run All Integrity Checks
// @Description Checks the local schema, the snapshot bucket and the remote backend. Responds 503 when any check fails.
// @Tags integrity
// @Produce json
// @Success 200 {object} integrity.Report "Healthy"
// @Failure 503 {object} integrity.Report "Unhealthy"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	report := h.service.Run(c.Context())
	if !report.Healthy {
		l.Warn("Integrity checks failed", zap.Any("errors", report.Errors))
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// HandleSchemaCheck checks the local and remote table schemas.
// @Summary Check Schema
// @Description Checks that the record tables have every column the models declare.
// @Tags integrity
// @Produce json
// @Success 200 {object} map[string]interface{} "Schema Reports"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	local, err := h.service.CheckSchema()
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	body := fiber.Map{"local": local}

	if h.service.CheckRemote(c.Context()).Reachable {
		remote, err := h.service.CheckRemoteSchema()
		if err != nil {
			l.Error("Remote schema check failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		body["remote"] = remote
	}
	return c.JSON(body)
}

// HandleStorageCheck checks and optionally creates the snapshot bucket.
// @Summary Check Storage
// @Description Checks that the snapshot bucket exists and counts the stored snapshots. Optionally creates the bucket.
// @Tags integrity
// @Produce json
// @Param fix query boolean false "Create the bucket when missing"
// @Success 200 {object} checks.StorageReport "Storage Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/storage [get]
func (h *Handler) HandleStorageCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := c.Query("fix") == "true"

	report, err := h.service.CheckStorage(c.Context())
	if err != nil {
		l.Error("Storage check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if !report.Exists && fix {
		l.Info("Attempting to create missing bucket", zap.String("bucket", report.Bucket))
		if err := h.service.FixStorage(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Failed to create bucket",
				"details": err.Error(),
			})
		}
		if report, err = h.service.CheckStorage(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return c.JSON(report)
}

// HandleRemoteCheck pings the remote backend.
// @Summary Check Remote Backend
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.RemoteReport "Remote Report"
// @Failure 503 {object} checks.RemoteReport "Unreachable"
// @Router /integrity/remote [get]
func (h *Handler) HandleRemoteCheck(c *fiber.Ctx) error {
	report := h.service.CheckRemote(c.Context())
	if report.Status == "error" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}
