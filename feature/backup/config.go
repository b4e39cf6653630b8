package backup

// Config holds backup settings.
type Config struct {
	// Prefix is the object key prefix of snapshots in the storage bucket.
	Prefix string `mapstructure:"prefix" default:"snapshots"`
	// Retain is the number of snapshots kept per library. Zero keeps all.
	Retain int `mapstructure:"retain" default:"10"`
	// Directory receives export files written by the CLI.
	Directory string `mapstructure:"directory" default:"backups"`
	// Schedule is the cron expression of periodic snapshots; empty disables them.
	Schedule string `mapstructure:"schedule" default:""`
	// MaxInvalidPercent rejects imports with a larger share of invalid items.
	MaxInvalidPercent int `mapstructure:"max_invalid_percent" default:"50"`
}
