package metadata

import "time"

// Config holds metadata provider settings.
type Config struct {
	// BaseURL is the root of the TMDB compatible API.
	BaseURL string `mapstructure:"base_url" default:"https://api.themoviedb.org/3"`
	// APIKey authenticates requests. An empty key disables remote lookups.
	APIKey string `mapstructure:"api_key" default:""`
	// Language is passed to the API to localize titles.
	Language string `mapstructure:"language" default:"en-US"`
	// TimeoutSeconds bounds a single lookup.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"10"`
	// CacheTTL is how long a resolved title is kept in memory.
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"1h"`
}

// Enabled reports whether remote lookups are configured.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.BaseURL != ""
}
