package library

import (
	"library-sync/core/errs"
	"library-sync/core/logger"
	"library-sync/core/server"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the library.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the library routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/library")
	group.Get("/stats", h.HandleStats)
	group.Post("/track", h.HandleTrack)
	group.Get("/records", h.HandleList)
	group.Post("/records", h.HandleCreate)
	group.Delete("/records", h.HandleClear)
	group.Post("/records/bulk", h.HandleBulkUpdate)
	group.Get("/records/:id", h.HandleGet)
	group.Patch("/records/:id", h.HandleUpdate)
	group.Delete("/records/:id", h.HandleDelete)
}

// ListResponse is one page of records.
type ListResponse struct {
	Items []models.Record `json:"items"`
	Total int             `json:"total"`
}

// HandleList lists records.
// @Summary List Records
// @Description Lists records matching the filters, one page at a time.
// @Tags library
// @Produce json
// @Param library query string false "Library id"
// @Param unassigned query bool false "Only records without a library"
// @Param kind query string false "movie or tv"
// @Param status query string false "Watch status"
// @Param favorite query bool false "Favorite flag"
// @Param q query string false "Text over title, overview and genres"
// @Param sort query string false "addedAt, lastUpdatedAt, title, userRating or id" default(addedAt)
// @Param desc query bool false "Descending order"
// @Param offset query int false "Records to skip"
// @Param limit query int false "Page size, all when zero"
// @Success 200 {object} library.ListResponse "Records"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Router /library/records [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	var (
		filter models.Filter
		sort   models.Sort
		page   models.Page
	)
	for _, dst := range []any{&filter, &sort, &page} {
		if err := c.QueryParser(dst); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if page.Offset < 0 || page.Limit < 0 {
		return server.Error(c, errs.NewValidation(errs.Violation{Field: "page", Reason: "offset and limit must not be negative"}))
	}

	items, total, err := h.service.List(c.Context(), filter, sort, page)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Warn("Listing records failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(ListResponse{Items: items, Total: total})
}

// HandleGet returns one record.
// @Summary Get Record
// @Tags library
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} models.Record "Record"
// @Failure 404 {object} map[string]interface{} "Not Found"
// @Router /library/records/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	rec, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(rec)
}

// HandleCreate creates a record.
// @Summary Create Record
// @Description Creates a record with a full media snapshot. The id is generated when absent.
// @Tags library
// @Accept json
// @Produce json
// @Param record body models.Record true "Record"
// @Success 201 {object} models.Record "Created"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Failure 409 {object} map[string]interface{} "Conflict"
// @Router /library/records [post]
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var rec models.Record
	if err := c.BodyParser(&rec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	created, err := h.service.Create(c.Context(), rec)
	if err != nil {
		return server.Error(c, err)
	}
	logger.WithRayID(h.service.logger, c).Info("Record created", zap.String("id", created.ID))
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleTrack tracks a title.
// @Summary Track Title
// @Description Creates or patches the record of a title in a library. New titles get their media snapshot from the metadata provider. A patch that clears all user state removes the record.
// @Tags library
// @Accept json
// @Produce json
// @Param request body library.TrackRequest true "Title and state"
// @Success 200 {object} library.TrackResult "Updated or removed"
// @Success 201 {object} library.TrackResult "Created"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Router /library/track [post]
func (h *Handler) HandleTrack(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req TrackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	res, err := h.service.Track(c.Context(), req)
	if err != nil {
		l.Warn("Track failed", zap.String("media", models.MediaKey(req.Kind, req.ExternalID)), zap.Error(err))
		return server.Error(c, err)
	}
	if res.Created {
		l.Info("Title tracked", zap.String("id", res.Record.ID), zap.String("media", res.Record.MediaKey()))
		return c.Status(fiber.StatusCreated).JSON(res)
	}
	return c.JSON(res)
}

// HandleUpdate patches a record.
// @Summary Update Record
// @Tags library
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param patch body models.Patch true "Fields to change"
// @Success 200 {object} models.Record "Updated"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Failure 404 {object} map[string]interface{} "Not Found"
// @Router /library/records/{id} [patch]
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var patch models.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	rec, err := h.service.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(rec)
}

// HandleDelete removes a record.
// @Summary Delete Record
// @Tags library
// @Param id path string true "Record id"
// @Success 204 "Deleted"
// @Failure 404 {object} map[string]interface{} "Not Found"
// @Router /library/records/{id} [delete]
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return server.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleClear deletes every record of a library.
// @Summary Clear Library
// @Description Deletes all records of a library in batches. Clearing every record requires all=true.
// @Tags library
// @Produce json
// @Param library query string false "Library id"
// @Param all query bool false "Clear every record when no library is given"
// @Success 200 {object} batch.ClearResult "Cleared"
// @Success 207 {object} batch.ClearResult "Cleared with failures"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Router /library/records [delete]
func (h *Handler) HandleClear(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	libraryID := c.Query("library")
	if libraryID == "" && !c.QueryBool("all") {
		return server.Error(c, errs.NewValidation(errs.Violation{Field: "library", Reason: "is required unless all=true"}))
	}

	res, err := h.service.Clear(c.Context(), libraryID)
	if err != nil {
		if errs.KindOf(err) == errs.KindPartialBatch {
			l.Warn("Clear finished with failures", zap.Error(err))
			return c.Status(fiber.StatusMultiStatus).JSON(res)
		}
		l.Error("Clear failed", zap.String("library", libraryID), zap.Error(err))
		return server.Error(c, err)
	}
	l.Info("Library cleared", zap.String("library", libraryID), zap.Int("deleted", res.Deleted))
	return c.JSON(res)
}

// HandleBulkUpdate patches many records.
// @Summary Bulk Update
// @Description Applies patches in batches. Failed items are listed in the result and do not stop the others.
// @Tags library
// @Accept json
// @Produce json
// @Param updates body []batch.Update true "Patches"
// @Success 200 {object} batch.Result "Updated"
// @Success 207 {object} batch.Result "Updated with failures"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Router /library/records/bulk [post]
func (h *Handler) HandleBulkUpdate(c *fiber.Ctx) error {
	var updates []batch.Update
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	res, err := h.service.BulkUpdate(c.Context(), updates)
	if err != nil {
		return server.Error(c, err)
	}
	if res.Failed > 0 {
		return c.Status(fiber.StatusMultiStatus).JSON(res)
	}
	return c.JSON(res)
}

// HandleStats summarizes records.
// @Summary Library Stats
// @Tags library
// @Produce json
// @Param library query string false "Library id"
// @Param kind query string false "movie or tv"
// @Success 200 {object} models.Stats "Stats"
// @Router /library/stats [get]
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	var filter models.Filter
	if err := c.QueryParser(&filter); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	stats, err := h.service.Stats(c.Context(), filter)
	if err != nil {
		return server.Error(c, err)
	}
	return c.JSON(stats)
}
