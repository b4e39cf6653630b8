package backup

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"library-sync/core/errs"
	"library-sync/core/logger"
	"library-sync/core/server"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for backups.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the backup routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/backup")
	group.Get("/export", h.HandleExport)
	group.Post("/import", h.HandleImport)
	group.Get("/snapshots", h.HandleListSnapshots)
	group.Post("/snapshots", h.HandleCreateSnapshot)
	group.Post("/snapshots/restore", h.HandleRestoreSnapshot)
}

// RestoreRequest selects the snapshot to restore and how to merge it.
type RestoreRequest struct {
	Key string `json:"key"`
	ImportRequest
}

// HandleExport downloads the library.
// @Summary Export Library
// @Description Exports the library as a JSON document or a CSV file.
// @Tags backup
// @Produce json
// @Produce text/csv
// @Param format query string false "json or csv" default(json)
// @Param libraryId query string false "Library to export, all records when empty"
// @Success 200 {object} backup.Document "Export"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /backup/export [get]
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var buf bytes.Buffer
	n, err := h.service.Export(c.Context(), c.Query("libraryId"), format, &buf)
	if err != nil {
		l.Error("Export failed", zap.Error(err))
		return server.Error(c, err)
	}
	l.Info("Exported library", zap.Int("records", n), zap.String("format", string(format)))

	filename := fmt.Sprintf("library-%s.%s", h.service.now().UTC().Format("20060102"), format)
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(buf.Bytes())
}

// HandleImport imports an export file.
// @Summary Import Library
// @Description Merges an export into the library. The file is the raw request body or the multipart field "file". Imports with more than half invalid items are rejected.
// @Tags backup
// @Accept json
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Param format query string false "json or csv" default(json)
// @Param strategy query string false "smart, overwrite or skip" default(smart)
// @Param keepExistingFavorites query boolean false "Keep favorites of existing records" default(true)
// @Param libraryId query string false "Library receiving the import"
// @Param dryRun query boolean false "Report without writing"
// @Success 200 {object} backup.ImportReport "Import Report"
// @Failure 207 {object} map[string]interface{} "Partially Imported"
// @Failure 400 {object} map[string]interface{} "Invalid Import"
// @Router /backup/import [post]
func (h *Handler) HandleImport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	req, err := importRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	data := c.Body()
	if fh, ferr := c.FormFile("file"); ferr == nil {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	report, err := h.service.Import(c.Context(), data, req)
	if err != nil {
		if errs.KindOf(err) == errs.KindPartialBatch {
			l.Warn("Import finished with failures", zap.Error(err))
			return c.Status(fiber.StatusMultiStatus).JSON(report)
		}
		l.Warn("Import rejected", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(report)
}

// HandleListSnapshots lists stored snapshots.
// @Summary List Snapshots
// @Description Lists the snapshots of a library stored in the object store, newest first.
// @Tags backup
// @Produce json
// @Param libraryId query string false "Library, all records when empty"
// @Success 200 {array} backup.SnapshotInfo "Snapshots"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /backup/snapshots [get]
func (h *Handler) HandleListSnapshots(c *fiber.Ctx) error {
	infos, err := h.service.Snapshots(c.Context(), c.Query("libraryId"))
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Listing snapshots failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.JSON(infos)
}

// HandleCreateSnapshot stores a snapshot.
// @Summary Create Snapshot
// @Description Uploads a JSON export of the library to the object store and prunes old snapshots.
// @Tags backup
// @Produce json
// @Param libraryId query string false "Library, all records when empty"
// @Success 201 {object} backup.SnapshotInfo "Snapshot"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /backup/snapshots [post]
func (h *Handler) HandleCreateSnapshot(c *fiber.Ctx) error {
	info, err := h.service.Snapshot(c.Context(), c.Query("libraryId"))
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Snapshot failed", zap.Error(err))
		return server.Error(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(info)
}

// HandleRestoreSnapshot imports a stored snapshot.
// @Summary Restore Snapshot
// @Description Imports a snapshot from the object store with the given merge strategy.
// @Tags backup
// @Accept json
// @Produce json
// @Param request body backup.RestoreRequest true "Snapshot key and merge options"
// @Success 200 {object} backup.ImportReport "Import Report"
// @Failure 400 {object} map[string]interface{} "Bad Request"
// @Router /backup/snapshots/restore [post]
func (h *Handler) HandleRestoreSnapshot(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req RestoreRequest
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "a snapshot key is required"})
	}

	report, err := h.service.Restore(c.Context(), req.Key, req.ImportRequest)
	if err != nil {
		if errs.KindOf(err) == errs.KindPartialBatch {
			return c.Status(fiber.StatusMultiStatus).JSON(report)
		}
		l.Error("Restore failed", zap.String("key", req.Key), zap.Error(err))
		return server.Error(c, err)
	}
	l.Info("Snapshot restored", zap.String("key", req.Key), zap.Int("written", report.Written))
	return c.JSON(report)
}

func importRequest(c *fiber.Ctx) (ImportRequest, error) {
	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		return ImportRequest{}, err
	}
	req := ImportRequest{
		Format:    format,
		Strategy:  c.Query("strategy"),
		LibraryID: c.Query("libraryId"),
		DryRun:    c.QueryBool("dryRun"),
	}
	if v := c.Query("keepExistingFavorites"); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return ImportRequest{}, fmt.Errorf("keepExistingFavorites must be a boolean")
		}
		req.KeepExistingFavorites = &keep
	}
	return req, nil
}
