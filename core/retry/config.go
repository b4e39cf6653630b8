package retry

import "time"

// Config holds configuration for the bounded retry policy applied to store writes.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int `mapstructure:"max_attempts" default:"3"`
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration `mapstructure:"base_delay" default:"100ms"`
	// Multiplier scales the delay after every failed attempt.
	Multiplier float64 `mapstructure:"multiplier" default:"2"`
	// MaxDelay caps a single wait.
	MaxDelay time.Duration `mapstructure:"max_delay" default:"2s"`
	// Jitter randomizes each wait by up to half its length.
	Jitter bool `mapstructure:"jitter" default:"true"`
}
