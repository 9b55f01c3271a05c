package bootstrap

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/tracing"
)

// FilterEnvVar overrides the configured filter when set.
const FilterEnvVar = "SPANSCOPE_LOG"

// Config defines how the tracing pipeline is assembled.
type Config struct {
	// FrameMarking registers the frame marker as the first system of the host loop
	FrameMarking bool `mapstructure:"frame_marking" toml:"frame_marking"`

	// ScopesOn turns profiler scopes on when the pipeline is built
	ScopesOn bool `mapstructure:"scopes_on" toml:"scopes_on"`

	// Filter holds extra filter directives in "target=level" form
	Filter string `mapstructure:"filter" toml:"filter"`

	// Level is the minimum level for targets no directive matches
	Level string `mapstructure:"level" toml:"level"`
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		FrameMarking: true,
		ScopesOn:     true,
		Filter:       "",
		Level:        zapcore.InfoLevel.String(),
	}
}

// Validate checks that the level and filter parse.
func (cfg *Config) Validate() error {
	if _, err := cfg.level(); err != nil {
		return err
	}
	if _, err := tracing.NewEnvFilter(cfg.defaultFilter()); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	return nil
}

func (cfg *Config) level() (zapcore.Level, error) {
	if cfg.Level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return lvl, fmt.Errorf("invalid level %q: %w", cfg.Level, err)
	}
	return lvl, nil
}

// defaultFilter combines level and filter into one expression, level first.
func (cfg *Config) defaultFilter() string {
	lvl, err := cfg.level()
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	return fmt.Sprintf("%s,%s", lvl, cfg.Filter)
}

// filter prefers the environment over the configured expression.
func (cfg *Config) filter() (*tracing.EnvFilter, error) {
	if f, err := tracing.EnvFilterFromEnv(FilterEnvVar); err == nil {
		return f, nil
	}
	return tracing.NewEnvFilter(cfg.defaultFilter())
}
