// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface, which supports both AWS S3
// and self-hosted MinIO. Library backup snapshots are the only objects written.
//
// # Helpers
//
//   - EnsureBucket: creates the backup bucket on first use.
//   - ListKeys: collects keys under a prefix.
//   - RemoveKeys: batch deletion with aggregated failures (snapshot retention).
//
// Tests use the testify mock in core/storage/mocks.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region)
package storage
