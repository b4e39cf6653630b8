package replication

import "time"

// Config holds replication settings.
type Config struct {
	// AutoStart starts replication for UserID/LibraryID when the server boots.
	AutoStart bool   `mapstructure:"auto_start" default:"false"`
	UserID    string `mapstructure:"user_id" default:""`
	LibraryID string `mapstructure:"library_id" default:""`
	// Schedule is the cron expression of periodic sync cycles; empty disables them.
	Schedule       string        `mapstructure:"schedule" default:"@every 15m"`
	PushInterval   time.Duration `mapstructure:"push_interval" default:"2s"`
	PushBatchSize  int           `mapstructure:"push_batch_size" default:"25"`
	PullBatchSize  int           `mapstructure:"pull_batch_size" default:"25"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" default:"5s"`
	// DrainTimeout bounds how long Stop waits for pushes in flight.
	DrainTimeout   time.Duration `mapstructure:"drain_timeout" default:"10s"`
	ConflictWindow time.Duration `mapstructure:"conflict_window" default:"1s"`
	// ConflictResolution is newer, local or remote.
	ConflictResolution      string `mapstructure:"conflict_resolution" default:"newer"`
	PreserveLocalFavorites  bool   `mapstructure:"preserve_local_favorites" default:"true"`
	PreserveRemoteFavorites bool   `mapstructure:"preserve_remote_favorites" default:"true"`
}

func (c Config) withDefaults() Config {
	if c.PushInterval <= 0 {
		c.PushInterval = 2 * time.Second
	}
	if c.PushBatchSize <= 0 {
		c.PushBatchSize = 25
	}
	if c.PullBatchSize <= 0 {
		c.PullBatchSize = 25
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.ConflictWindow <= 0 {
		c.ConflictWindow = time.Second
	}
	if c.ConflictResolution == "" {
		c.ConflictResolution = "newer"
	}
	return c
}

// DefaultScope is the scope configured for auto start and one-shot syncs.
func (c Config) DefaultScope() Scope {
	return Scope{UserID: c.UserID, LibraryID: c.LibraryID}
}
