package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "render", cfg.Playback.Mode)
	assert.Equal(t, "software", cfg.Playback.DecodeMethod)
	assert.Equal(t, 48000, cfg.Playback.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Playback.Audio.Channels)
	assert.Equal(t, 16, cfg.Playback.Video.MaxQueueCount)
	assert.Equal(t, 10*time.Second, cfg.Playback.Source.Duration)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
playback:
  mode: encode
  decode_method: hardware
  video:
    max_queue_count: 4
  audio:
    channels: 6
    max_buffer_size: 4000000
  source:
    layers: 3
    duration: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "encode", cfg.Playback.Mode)
	assert.Equal(t, "hardware", cfg.Playback.DecodeMethod)
	assert.Equal(t, 4, cfg.Playback.Video.MaxQueueCount)
	assert.Equal(t, 6, cfg.Playback.Audio.Channels)
	assert.Equal(t, 3, cfg.Playback.Source.Layers)
	assert.Equal(t, 2*time.Second, cfg.Playback.Source.Duration)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("PLAYOUT_PLAYBACK_DECODE_METHOD", "hardware")
	t.Setenv("PLAYOUT_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hardware", cfg.Playback.DecodeMethod)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "playback:\n  mode: broadcast\n")
		_, err := Load(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}

func TestDefaultConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Playback.Source.Layers)
}
