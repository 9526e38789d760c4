package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/runsort/pkg/config"
)

func TestLoadConfig_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"block size too small", "sort:\n  block_size: 4\n", config.ErrInvalidBlockSize},
		{"negative block size", "sort:\n  block_size: -1\n", config.ErrInvalidBlockSize},
		{"unknown level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"unknown format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"ratio above one", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampleRatio},
		{"negative ratio", "telemetry:\n  sample_ratio: -0.1\n", config.ErrInvalidSampleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, cfg)
		})
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "sort: [unterminated\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.Equal(t, config.DefaultBlockSize, cfg.Sort.BlockSize)
	require.Equal(t, config.DefaultLogFormat, cfg.Logging.Format)
}
