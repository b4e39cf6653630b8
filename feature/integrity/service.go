package integrity

import (
	"context"
	"time"

	"library-sync/core/storage"
	"library-sync/feature/integrity/checks"
	"library-sync/feature/library/models"
	"library-sync/feature/replication/remote"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Remote is the remote backend as seen by the checks.
type Remote interface {
	checks.Pinger
	DB() *gorm.DB
}

// Report combines every check.
type Report struct {
	Healthy      bool                  `json:"healthy"`
	Schema       *checks.SchemaReport  `json:"schema,omitempty"`
	RemoteSchema *checks.SchemaReport  `json:"remote_schema,omitempty"`
	Storage      *checks.StorageReport `json:"storage,omitempty"`
	Remote       checks.RemoteReport   `json:"remote"`
	Errors       map[string]string     `json:"errors,omitempty"`
}

// Service handles integrity checks.
type Service struct {
	db      *gorm.DB
	client  storage.Client
	bucket  string
	region  string
	prefix  string
	remote  Remote
	timeout time.Duration
	logger  *zap.Logger
}

// NewService creates a new integrity service. client and remote may be nil
// when storage or replication are not configured.
func NewService(db *gorm.DB, client storage.Client, storageCfg storage.Config, snapshotPrefix string, remote Remote, logger *zap.Logger) *Service {
	timeout := time.Duration(storageCfg.TimeoutSeconds) * time.Second
	return &Service{
		db:      db,
		client:  client,
		bucket:  storageCfg.Bucket,
		region:  storageCfg.Region,
		prefix:  snapshotPrefix,
		remote:  remote,
		timeout: timeout,
		logger:  logger,
	}
}

// CheckSchema compares the local tables with the record and pending write models.
func (s *Service) CheckSchema() (*checks.SchemaReport, error) {
	return checks.CheckSchema(s.db, models.RecordRow{}, models.PendingRow{})
}

// CheckRemoteSchema compares the remote tables with the document model.
func (s *Service) CheckRemoteSchema() (*checks.SchemaReport, error) {
	if s.remote == nil {
		return nil, nil
	}
	return checks.CheckSchema(s.remote.DB(), remote.DocumentRow{})
}

// CheckStorage checks the snapshot bucket.
func (s *Service) CheckStorage(ctx context.Context) (*checks.StorageReport, error) {
	return checks.CheckStorage(ctx, s.client, s.bucket, s.prefix)
}

// FixStorage creates the snapshot bucket.
func (s *Service) FixStorage(ctx context.Context) error {
	return checks.FixStorage(ctx, s.client, s.bucket, s.region, s.logger)
}

// CheckRemote pings the remote backend.
func (s *Service) CheckRemote(ctx context.Context) checks.RemoteReport {
	if s.remote == nil {
		return checks.CheckRemote(ctx, nil, s.timeout)
	}
	return checks.CheckRemote(ctx, s.remote, s.timeout)
}

// Run performs every configured check. Failing checks are reported, not returned.
func (s *Service) Run(ctx context.Context) *Report {
	report := &Report{Healthy: true, Errors: map[string]string{}}
	fail := func(name string, err error) {
		report.Healthy = false
		report.Errors[name] = err.Error()
	}

	if schema, err := s.CheckSchema(); err != nil {
		fail("schema", err)
	} else {
		report.Schema = schema
		report.Healthy = report.Healthy && schema.Matched
	}

	if s.client != nil {
		if st, err := s.CheckStorage(ctx); err != nil {
			fail("storage", err)
		} else {
			report.Storage = st
			report.Healthy = report.Healthy && st.Exists
		}
	}

	report.Remote = s.CheckRemote(ctx)
	if report.Remote.Status == "error" {
		report.Healthy = false
	}
	if report.Remote.Reachable {
		if schema, err := s.CheckRemoteSchema(); err != nil {
			fail("remote_schema", err)
		} else {
			report.RemoteSchema = schema
			report.Healthy = report.Healthy && schema.Matched
		}
	}

	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	s.logger.Debug("Integrity checks finished", zap.Bool("healthy", report.Healthy))
	return report
}
