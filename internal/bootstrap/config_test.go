package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/tracing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.FrameMarking)
	assert.True(t, cfg.ScopesOn)
	assert.Equal(t, "", cfg.Filter)
	assert.Equal(t, "info", cfg.Level)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{Level: "warn", Filter: "wgpu=error"}, ""},
		{"empty level", Config{}, ""},
		{"bad level", Config{Level: "loud"}, "invalid level"},
		{"bad filter", Config{Level: "info", Filter: "wgpu=loud"}, "invalid filter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFilterPrefersEnvironment(t *testing.T) {
	cfg := Config{Level: "error", Filter: "wgpu=error"}
	debug := &tracing.Metadata{Target: "app", Level: zapcore.DebugLevel}

	t.Setenv(FilterEnvVar, "")
	f, err := cfg.filter()
	require.NoError(t, err)
	assert.False(t, f.Enabled(debug), "configured level applies without the env var")

	t.Setenv(FilterEnvVar, "debug")
	f, err = cfg.filter()
	require.NoError(t, err)
	assert.True(t, f.Enabled(debug), "env var overrides the configured level")
}

func TestConfigDefaultFilterLevelFirst(t *testing.T) {
	cfg := Config{Level: "warn", Filter: "wgpu=error"}
	assert.Equal(t, "warn,wgpu=error", cfg.defaultFilter())
}
