package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"library-sync/core/errs"
	"library-sync/core/storage"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/merge"
	"library-sync/feature/library/models"
	"library-sync/feature/library/store"

	"github.com/minio/minio-go/v7"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const snapshotLayout = "20060102T150405.000Z"

// Records is the read side of the record store.
type Records interface {
	All(ctx context.Context, filter models.Filter) ([]models.Record, error)
}

// Writer applies import results.
type Writer interface {
	BulkUpsert(ctx context.Context, records []models.Record, opts batch.BulkOptions) (*batch.Result, error)
	BulkDelete(ctx context.Context, ids []string, opts batch.BulkOptions) (*batch.Result, error)
}

// Service exports, imports and snapshots libraries.
type Service struct {
	records Records
	writer  Writer
	client  storage.Client
	bucket  string
	region  string
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the backup service. client may be nil, which disables snapshots.
func NewService(records Records, writer Writer, client storage.Client, storageCfg storage.Config, cfg Config, logger *zap.Logger) *Service {
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}
	if cfg.MaxInvalidPercent <= 0 {
		cfg.MaxInvalidPercent = 50
	}
	return &Service{
		records: records,
		writer:  writer,
		client:  client,
		bucket:  storageCfg.Bucket,
		region:  storageCfg.Region,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ImportRequest controls Import.
type ImportRequest struct {
	Format                Format `json:"format"`
	Strategy              string `json:"strategy"`
	KeepExistingFavorites *bool  `json:"keepExistingFavorites"`
	LibraryID             string `json:"libraryId"`
	DryRun                bool   `json:"dryRun"`
}

// ImportReport is the outcome of Import.
type ImportReport struct {
	Total    int                `json:"total"`
	Added    int                `json:"added"`
	Updated  int                `json:"updated"`
	Skipped  int                `json:"skipped"`
	Invalid  int                `json:"invalid"`
	Removed  int                `json:"removed"`
	Written  int                `json:"written"`
	Failed   int                `json:"failed"`
	Errors   []errs.ItemFailure `json:"errors"`
	Changes  []string           `json:"changes"`
	Strategy merge.Strategy     `json:"strategy"`
	DryRun   bool               `json:"dryRun"`
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Key       string    `json:"key"`
	LibraryID string    `json:"libraryId"`
	TakenAt   time.Time `json:"takenAt"`
	Records   int       `json:"records,omitempty"`
}

// Export writes the library, or every record when libraryID is empty, and
// returns the number of exported records.
func (s *Service) Export(ctx context.Context, libraryID string, format Format, w io.Writer) (int, error) {
	records, err := s.records.All(ctx, models.Filter{LibraryID: libraryID})
	if err != nil {
		return 0, fmt.Errorf("failed to load library: %w", err)
	}
	if err := Encode(w, records, format, s.now()); err != nil {
		return 0, fmt.Errorf("failed to encode export: %w", err)
	}
	return len(records), nil
}

// ExportFile writes an export to a file, replacing it atomically.
func (s *Service) ExportFile(ctx context.Context, libraryID string, format Format, filename string) (int, error) {
	var buf bytes.Buffer
	n, err := s.Export(ctx, libraryID, format, &buf)
	if err != nil {
		return 0, err
	}
	if err := atomic.WriteFile(filename, &buf); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", filename, err)
	}
	s.logger.Info("Exported library", zap.String("file", filename), zap.Int("records", n))
	return n, nil
}

// Import merges an export into the library and writes the result.
func (s *Service) Import(ctx context.Context, data []byte, req ImportRequest) (*ImportReport, error) {
	strategy, err := merge.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, errs.NewValidation(errs.Violation{Field: "strategy", Reason: err.Error()})
	}
	items, err := Parse(data, req.Format)
	if err != nil {
		return nil, errs.NewValidation(errs.Violation{Field: "file", Reason: err.Error()})
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if err := s.checkInvalid(items, now); err != nil {
		return nil, err
	}

	all, err := s.records.All(ctx, models.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}
	current := all
	if req.LibraryID != "" {
		current = slices.DeleteFunc(slices.Clone(all), func(r models.Record) bool {
			return r.LibraryID() != req.LibraryID
		})
	}

	keep := true
	if req.KeepExistingFavorites != nil {
		keep = *req.KeepExistingFavorites
	}
	opts := merge.ImportOptions{
		Strategy:              strategy,
		KeepExistingFavorites: keep,
		Now:                   now,
		Reserved:              merge.Collect(all),
	}
	if req.LibraryID != "" {
		opts.Library = &models.LibraryRef{ID: req.LibraryID}
	}
	res := merge.ImportMerge(items, merge.Collect(current), opts)

	report := &ImportReport{
		Total:    len(items),
		Added:    res.Added,
		Updated:  res.Updated,
		Skipped:  res.Skipped,
		Invalid:  res.Invalid,
		Removed:  len(res.Removed),
		Errors:   []errs.ItemFailure{},
		Changes:  res.Changes,
		Strategy: strategy,
		DryRun:   req.DryRun,
	}
	if req.DryRun {
		return report, nil
	}

	// Imported timestamps are kept as they are in the file
	ctx = store.WithOrigin(ctx, store.OriginImport)

	written := make([]models.Record, 0, len(res.Written))
	for _, id := range res.Written {
		written = append(written, res.Merged[id])
	}
	if len(written) > 0 {
		out, err := s.writer.BulkUpsert(ctx, written, batch.BulkOptions{})
		if err != nil {
			return report, err
		}
		report.Written = out.Successful
		report.Failed += out.Failed
		report.Errors = append(report.Errors, out.Errors...)
	}
	if len(res.Removed) > 0 {
		out, err := s.writer.BulkDelete(ctx, res.Removed, batch.BulkOptions{})
		if err != nil {
			return report, err
		}
		report.Failed += out.Failed
		report.Errors = append(report.Errors, out.Errors...)
	}

	s.logger.Info("Imported library",
		zap.String("strategy", string(strategy)),
		zap.String("library", req.LibraryID),
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("invalid", report.Invalid),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed))

	if report.Failed > 0 {
		return report, &errs.PartialBatchFailure{
			Op:     "import",
			Total:  len(written) + len(res.Removed),
			Failed: report.Failed,
			Items:  report.Errors,
		}
	}
	return report, nil
}

// checkInvalid rejects an import when too many items cannot be decoded.
func (s *Service) checkInvalid(items []merge.Item, now time.Time) error {
	if len(items) == 0 {
		return errs.NewValidation(errs.Violation{Field: "items", Reason: "no items found in import data"})
	}
	invalid := 0
	for _, item := range items {
		if _, err := merge.Decode(item, now); err != nil {
			invalid++
		}
	}
	if invalid == 0 {
		return nil
	}
	percent := invalid * 100 / len(items)
	if invalid*100 > s.cfg.MaxInvalidPercent*len(items) {
		return errs.NewValidation(errs.Violation{
			Field:  "items",
			Reason: fmt.Sprintf("%d of %d items (%d%%) are invalid; each item needs a numeric id and a media_type of movie or tv", invalid, len(items), percent),
		})
	}
	s.logger.Warn("Import contains invalid items", zap.Int("invalid", invalid), zap.Int("percent", percent))
	return nil
}

func (s *Service) libraryPrefix(libraryID string) string {
	if libraryID == "" {
		libraryID = "all"
	}
	return path.Join(s.cfg.Prefix, libraryID) + "/"
}

func (s *Service) requireStorage() error {
	if s.client == nil {
		return fmt.Errorf("object storage is not configured")
	}
	return nil
}

// Snapshot uploads a JSON export of the library and prunes old snapshots.
func (s *Service) Snapshot(ctx context.Context, libraryID string) (*SnapshotInfo, error) {
	if err := s.requireStorage(); err != nil {
		return nil, err
	}
	if err := storage.EnsureBucket(ctx, s.client, s.bucket, s.region); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	n, err := s.Export(ctx, libraryID, FormatJSON, &buf)
	if err != nil {
		return nil, err
	}

	taken := s.now().UTC()
	key := s.libraryPrefix(libraryID) + taken.Format(snapshotLayout) + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: FormatJSON.ContentType(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot %s: %w", key, err)
	}
	s.logger.Info("Snapshot stored", zap.String("key", key), zap.Int("records", n))

	if err := s.prune(ctx, libraryID); err != nil {
		s.logger.Warn("Failed to prune snapshots", zap.String("library", libraryID), zap.Error(err))
	}
	return &SnapshotInfo{Key: key, LibraryID: libraryID, TakenAt: taken.Truncate(time.Millisecond), Records: n}, nil
}

// Snapshots lists the stored snapshots of a library, newest first.
func (s *Service) Snapshots(ctx context.Context, libraryID string) ([]SnapshotInfo, error) {
	if err := s.requireStorage(); err != nil {
		return nil, err
	}
	prefix := s.libraryPrefix(libraryID)
	keys, err := storage.ListKeys(ctx, s.client, s.bucket, prefix)
	if err != nil {
		return nil, err
	}

	infos := make([]SnapshotInfo, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
		taken, err := time.Parse(snapshotLayout, name)
		if err != nil {
			continue
		}
		infos = append(infos, SnapshotInfo{Key: key, LibraryID: libraryID, TakenAt: taken})
	}
	slices.SortFunc(infos, func(a, b SnapshotInfo) int { return b.TakenAt.Compare(a.TakenAt) })
	return infos, nil
}

// Restore imports a stored snapshot.
func (s *Service) Restore(ctx context.Context, key string, req ImportRequest) (*ImportReport, error) {
	if err := s.requireStorage(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(key, s.cfg.Prefix+"/") {
		return nil, errs.NewValidation(errs.Violation{Field: "key", Reason: "not a snapshot key"})
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	req.Format = FormatJSON
	return s.Import(ctx, data, req)
}

func (s *Service) prune(ctx context.Context, libraryID string) error {
	if s.cfg.Retain <= 0 {
		return nil
	}
	infos, err := s.Snapshots(ctx, libraryID)
	if err != nil || len(infos) <= s.cfg.Retain {
		return err
	}
	stale := make([]string, 0, len(infos)-s.cfg.Retain)
	for _, info := range infos[s.cfg.Retain:] {
		stale = append(stale, info.Key)
	}
	return storage.RemoveKeys(ctx, s.client, s.bucket, stale)
}
