package batch

import "time"

// Config holds batch operator settings.
type Config struct {
	// ClearSize is the page size used by ClearLibrary.
	ClearSize int `mapstructure:"clear_size" default:"50"`
	// UpdateSize is the page size used by BulkUpdate and BulkUpsert.
	UpdateSize int `mapstructure:"update_size" default:"25"`
	// Concurrency bounds the items of one batch processed at once.
	Concurrency int `mapstructure:"concurrency" default:"8"`
	// YieldDelay is the pause between two batches.
	YieldDelay time.Duration `mapstructure:"yield_delay" default:"100ms"`
	// FlushThreshold is the pending replication count above which a sweep
	// ends with a forced push.
	FlushThreshold int `mapstructure:"flush_threshold" default:"25"`
}
