package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Playback PlaybackConfig `mapstructure:"playback"`
}

// ServerConfig configures the debug HTTP server (status, version).
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type PlaybackConfig struct {
	Mode         string       `mapstructure:"mode"`          // render or encode
	DecodeMethod string       `mapstructure:"decode_method"` // software or hardware
	Video        VideoConfig  `mapstructure:"video"`
	Audio        AudioConfig  `mapstructure:"audio"`
	Source       SourceConfig `mapstructure:"source"`
}

type VideoConfig struct {
	Enabled       bool  `mapstructure:"enabled"`
	MaxQueueSize  int64 `mapstructure:"max_queue_size"`  // bytes, software decode
	MaxQueueCount int   `mapstructure:"max_queue_count"` // frames, hardware decode (surface pool)
}

type AudioConfig struct {
	Enabled         bool  `mapstructure:"enabled"`
	SampleRate      int   `mapstructure:"sample_rate"`
	Channels        int   `mapstructure:"channels"`
	MaxBufferSize   int   `mapstructure:"max_buffer_size"`  // bytes across all channel rings
	MaxQueueSize    int64 `mapstructure:"max_queue_size"`   // bytes, encode mode
	CallbackSamples int   `mapstructure:"callback_samples"` // samples per channel per pull
}

// SourceConfig configures the synthetic test-pattern source.
type SourceConfig struct {
	Layers           int           `mapstructure:"layers"`
	FrameRateNum     int64         `mapstructure:"frame_rate_num"`
	FrameRateDen     int64         `mapstructure:"frame_rate_den"`
	Width            int           `mapstructure:"width"`
	Height           int           `mapstructure:"height"`
	ToneHz           float64       `mapstructure:"tone_hz"`
	AudioUnitSamples int           `mapstructure:"audio_unit_samples"`
	Duration         time.Duration `mapstructure:"duration"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configPath)

	// Environment variable override
	v.SetEnvPrefix("PLAYOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Playback defaults
	v.SetDefault("playback.mode", "render")
	v.SetDefault("playback.decode_method", "software")

	v.SetDefault("playback.video.enabled", true)
	v.SetDefault("playback.video.max_queue_size", 256*1024*1024) // 256MB of raw frames
	v.SetDefault("playback.video.max_queue_count", 16)           // typical surface pool

	v.SetDefault("playback.audio.enabled", true)
	v.SetDefault("playback.audio.sample_rate", 48000)
	v.SetDefault("playback.audio.channels", 2)
	v.SetDefault("playback.audio.max_buffer_size", 1536000) // 4s of stereo FLTP at 48kHz
	v.SetDefault("playback.audio.max_queue_size", 4*1024*1024)
	v.SetDefault("playback.audio.callback_samples", 1024)

	v.SetDefault("playback.source.layers", 1)
	v.SetDefault("playback.source.frame_rate_num", 25)
	v.SetDefault("playback.source.frame_rate_den", 1)
	v.SetDefault("playback.source.width", 320)
	v.SetDefault("playback.source.height", 180)
	v.SetDefault("playback.source.tone_hz", 440.0)
	v.SetDefault("playback.source.audio_unit_samples", 1024)
	v.SetDefault("playback.source.duration", "10s")
}
