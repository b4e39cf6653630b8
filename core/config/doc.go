// Package config provides configuration management for library-sync.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file. Defaults come from the `default` struct tags of every
// section.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, body limit)
//   - Log: Logging level and format
//   - Database: local record database (sqlite file or MySQL)
//   - Remote: remote document service used for replication
//   - Storage: S3/MinIO credentials and the snapshot bucket
//   - Retry: bounded retry policy for store writes
//   - Batch: page sizes, concurrency and pacing of bulk operations
//   - Sync: replication scope, intervals and conflict handling
//   - Backup: snapshot prefix, retention and import limits
//   - Metadata: TMDB compatible title lookups
//
// Nested keys map to environment variables with dots replaced by
// underscores, e.g. SYNC_USER_ID sets sync.user_id.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
