package replication

import (
	"errors"

	"library-sync/core/logger"
	"library-sync/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for replication.
type Handler struct {
	controller *Controller
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(controller *Controller, logger *zap.Logger) *Handler {
	return &Handler{controller: controller, logger: logger}
}

// RegisterRoutes registers the replication routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Get("/status", h.HandleStatus)
	group.Post("/start", h.HandleStart)
	group.Post("/stop", h.HandleStop)
	group.Post("/trigger", h.HandleTrigger)
	group.Post("/push", h.HandlePush)
}

// StartRequest selects the scope to replicate.
type StartRequest struct {
	UserID    string `json:"userId"`
	LibraryID string `json:"libraryId"`
}

// StartResponse describes the active replication.
type StartResponse struct {
	Handle string `json:"handle"`
	Status Status `json:"status"`
}

// HandleStatus returns the replication status.
// @Summary Replication Status
// @Description Returns the replication state, pending operations and last sync time.
// @Tags sync
// @Produce json
// @Success 200 {object} replication.Status "Status"
// @Router /sync/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.controller.Status())
}

// HandleStart starts replicating a scope.
// @Summary Start Replication
// @Description Starts live replication for a user, optionally narrowed to one library. Falls back to the configured scope when the body is empty. Repeated calls for the same scope return the same handle.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body replication.StartRequest false "Scope"
// @Success 200 {object} replication.StartResponse "Started"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 503 {object} map[string]string "Initial sync failed, retrying in background"
// @Router /sync/start [post]
func (h *Handler) HandleStart(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	scope := Scope{UserID: req.UserID, LibraryID: req.LibraryID}
	if scope.UserID == "" {
		scope = h.controller.Config().DefaultScope()
	}
	if err := scope.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Starting replication", zap.String("scope", scope.String()))
	handle, err := h.controller.Start(c.Context(), scope)
	if err != nil {
		l.Warn("Initial sync failed", zap.String("scope", scope.String()), zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(StartResponse{Handle: handle.ID(), Status: h.controller.Status()})
}

// HandleStop stops replication.
// @Summary Stop Replication
// @Description Stops the active replication. Stopping when nothing runs is a no-op.
// @Tags sync
// @Produce json
// @Success 200 {object} replication.Status "Status"
// @Router /sync/stop [post]
func (h *Handler) HandleStop(c *fiber.Ctx) error {
	logger.WithRayID(h.logger, c).Info("Stopping replication")
	h.controller.Stop()
	return c.JSON(h.controller.Status())
}

// HandleTrigger runs a sync cycle.
// @Summary Trigger Sync
// @Description Runs a full sync cycle on the active replication, or a one-shot cycle for the configured scope.
// @Tags sync
// @Produce json
// @Success 200 {object} replication.Status "Status"
// @Failure 400 {object} map[string]string "No scope configured"
// @Failure 503 {object} map[string]string "Sync failed"
// @Router /sync/trigger [post]
func (h *Handler) HandleTrigger(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	if err := h.controller.TriggerSync(c.Context()); err != nil {
		if errors.Is(err, ErrNoScope) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		l.Error("Sync cycle failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(h.controller.Status())
}

// HandlePush pushes pending local writes now.
// @Summary Force Push
// @Description Pushes buffered local writes immediately. A no-op without an active replication.
// @Tags sync
// @Produce json
// @Success 200 {object} replication.Status "Status"
// @Failure 503 {object} map[string]string "Push failed"
// @Router /sync/push [post]
func (h *Handler) HandlePush(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	if err := h.controller.ForcePushPending(c.Context()); err != nil {
		l.Error("Force push failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(h.controller.Status())
}
