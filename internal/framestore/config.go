package framestore

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Config defines where frames are persisted and how long they are kept.
type Config struct {
	// Path is the BoltDB file holding frames
	Path string `mapstructure:"path" toml:"path"`

	// Retain is the number of most recent frames kept by compaction
	Retain int `mapstructure:"retain" toml:"retain"`

	// CompactionScheduleCron is the cron schedule for retention compaction
	CompactionScheduleCron string `mapstructure:"compaction_schedule_cron" toml:"compaction_schedule_cron"`
}

// DefaultConfig returns a configuration keeping the last 10000 frames,
// compacted every minute.
func DefaultConfig() Config {
	return Config{
		Path:                   "spanscope.db",
		Retain:                 10000,
		CompactionScheduleCron: "@every 1m",
	}
}

// Validate checks if the store configuration is valid
func (cfg *Config) Validate() error {
	if cfg.Path == "" {
		return fmt.Errorf("path must be specified")
	}
	if cfg.Retain <= 0 {
		return fmt.Errorf("retain must be greater than 0, got %d", cfg.Retain)
	}
	if cfg.CompactionScheduleCron != "" {
		if _, err := cron.ParseStandard(cfg.CompactionScheduleCron); err != nil {
			return fmt.Errorf("invalid compaction_schedule_cron: %w", err)
		}
	}
	return nil
}
