package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/deepaksharma/spanscope/internal/bootstrap"
	"github.com/deepaksharma/spanscope/internal/frameexport"
	"github.com/deepaksharma/spanscope/internal/framestore"
)

// fileConfig is the layout of the TOML configuration file.
type fileConfig struct {
	Pipeline bootstrap.Config   `toml:"pipeline"`
	Run      runConfig          `toml:"run"`
	Store    framestore.Config  `toml:"store"`
	Export   frameexport.Config `toml:"export"`
}

type runConfig struct {
	// Frames is the number of host loop iterations; 0 runs until interrupted
	Frames int `toml:"frames"`

	// Interval is the minimum duration of one iteration
	Interval string `toml:"interval"`

	// Store enables persisting frames
	Store bool `toml:"store"`

	// Export enables exporting frames as traces
	Export bool `toml:"export"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Pipeline: bootstrap.DefaultConfig(),
		Run: runConfig{
			Frames:   300,
			Interval: "16ms",
			Store:    true,
			Export:   true,
		},
		Store:  framestore.DefaultConfig(),
		Export: frameexport.DefaultConfig(),
	}
}

// loadConfig decodes path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fileConfig{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	return cfg, nil
}

func (cfg *fileConfig) validate() error {
	if err := cfg.Pipeline.Validate(); err != nil {
		return fmt.Errorf("[pipeline]: %w", err)
	}
	if _, err := cfg.Run.interval(); err != nil {
		return fmt.Errorf("[run]: %w", err)
	}
	if cfg.Run.Frames < 0 {
		return fmt.Errorf("[run]: frames must not be negative, got %d", cfg.Run.Frames)
	}
	if cfg.Run.Store {
		if err := cfg.Store.Validate(); err != nil {
			return fmt.Errorf("[store]: %w", err)
		}
	}
	if cfg.Run.Export {
		if err := cfg.Export.Validate(); err != nil {
			return fmt.Errorf("[export]: %w", err)
		}
	}
	return nil
}

func (r runConfig) interval() (time.Duration, error) {
	if r.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval format: %w", err)
	}
	return d, nil
}
