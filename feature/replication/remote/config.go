package remote

import (
	"time"

	"library-sync/core/database"
)

// Config holds the remote document service connection.
type Config struct {
	// Enabled turns replication on. Without a remote the service runs local-only.
	Enabled        bool          `mapstructure:"enabled" default:"false"`
	Driver         string        `mapstructure:"driver" default:"mysql"`
	Host           string        `mapstructure:"host" default:"localhost"`
	Port           int           `mapstructure:"port" default:"3306"`
	User           string        `mapstructure:"user" default:"root"`
	Password       string        `mapstructure:"password" default:""`
	Name           string        `mapstructure:"name" default:"library_sync"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds" default:"10"`
	PollInterval   time.Duration `mapstructure:"poll_interval" default:"1s"`
	BatchSize      int           `mapstructure:"batch_size" default:"100"`
}

// Database returns the connection settings for database.Connect.
func (c Config) Database() database.Config {
	return database.Config{
		Driver:         c.Driver,
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		Password:       c.Password,
		Name:           c.Name,
		TimeoutSeconds: c.TimeoutSeconds,
	}
}
