package frameexport

import (
	"fmt"
	"time"
)

// Config defines how sealed frames are batched into trace exports.
type Config struct {
	// ServiceName is set as service.name on the exported resource
	ServiceName string `mapstructure:"service_name" toml:"service_name"`

	// BatchFrames is the number of non-empty frames that triggers an export
	BatchFrames int `mapstructure:"batch_frames" toml:"batch_frames"`

	// FlushInterval exports pending frames periodically; empty disables it
	FlushInterval string `mapstructure:"flush_interval" toml:"flush_interval"`
}

// DefaultConfig returns a configuration exporting every 60 frames or every
// five seconds.
func DefaultConfig() Config {
	return Config{
		ServiceName:   "spanscope",
		BatchFrames:   60,
		FlushInterval: "5s",
	}
}

// Validate checks if the export configuration is valid
func (cfg *Config) Validate() error {
	if cfg.ServiceName == "" {
		return fmt.Errorf("service_name must be specified")
	}
	if cfg.BatchFrames <= 0 {
		return fmt.Errorf("batch_frames must be greater than 0, got %d", cfg.BatchFrames)
	}
	if _, err := cfg.flushInterval(); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) flushInterval() (time.Duration, error) {
	if cfg.FlushInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(cfg.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid flush_interval format: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("flush_interval must be positive, got %s", cfg.FlushInterval)
	}
	return d, nil
}
