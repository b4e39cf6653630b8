package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// BodyLimitMB caps request bodies, mostly relevant for backup imports.
	BodyLimitMB int `mapstructure:"body_limit_mb" default:"16"`
}

const (
	defaultBodyLimitMB = 16
	maxBodyLimitMB     = 256
)

// BodyLimit returns the request body limit in bytes, clamped to a sane range.
func (c Config) BodyLimit() int {
	mb := c.BodyLimitMB
	switch {
	case mb <= 0:
		mb = defaultBodyLimitMB
	case mb > maxBodyLimitMB:
		mb = maxBodyLimitMB
	}
	return mb * 1024 * 1024
}
