package config

import (
	"reflect"
	"strings"

	"library-sync/core/database"
	"library-sync/core/logger"
	"library-sync/core/retry"
	"library-sync/core/server"
	"library-sync/core/storage"
	"library-sync/feature/backup"
	"library-sync/feature/library/batch"
	"library-sync/feature/library/metadata"
	"library-sync/feature/replication"
	"library-sync/feature/replication/remote"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage holding snapshots.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the local record database.
	Database database.Config `mapstructure:"database"`
	// Remote holds the connection to the remote document service.
	Remote remote.Config `mapstructure:"remote"`
	// Retry bounds the retries of local store writes.
	Retry retry.Config `mapstructure:"retry"`
	// Batch holds bulk operation settings.
	Batch batch.Config `mapstructure:"batch"`
	// Sync holds replication settings.
	Sync replication.Config `mapstructure:"sync"`
	// Backup holds export, import and snapshot settings.
	Backup backup.Config `mapstructure:"backup"`
	// Metadata holds the title metadata provider settings.
	Metadata metadata.Config `mapstructure:"metadata"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
