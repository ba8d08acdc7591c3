package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if c.Server.Enabled && c.Metrics.Enabled && c.Server.Port == c.Metrics.Port {
		return fmt.Errorf("server and metrics cannot share port %d", c.Server.Port)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Port)
	}

	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (p *PlaybackConfig) Validate() error {
	if p.Mode != "render" && p.Mode != "encode" {
		return fmt.Errorf("mode must be 'render' or 'encode', got %q", p.Mode)
	}

	if p.DecodeMethod != "software" && p.DecodeMethod != "hardware" {
		return fmt.Errorf("decode_method must be 'software' or 'hardware', got %q", p.DecodeMethod)
	}

	if !p.Video.Enabled && !p.Audio.Enabled {
		return fmt.Errorf("at least one of video or audio output must be enabled")
	}

	if err := p.Video.Validate(); err != nil {
		return fmt.Errorf("video: %w", err)
	}

	if err := p.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if err := p.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	return nil
}

func (v *VideoConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive")
	}

	if v.MaxQueueCount <= 0 {
		return fmt.Errorf("max_queue_count must be positive")
	}

	return nil
}

func (a *AudioConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}

	if a.Channels <= 0 || a.Channels > 32 {
		return fmt.Errorf("channels must be between 1 and 32, got %d", a.Channels)
	}

	// Each channel ring needs room for at least one callback pull
	minBuffer := a.Channels * a.CallbackSamples * 4
	if a.MaxBufferSize < minBuffer {
		return fmt.Errorf("max_buffer_size (%d) must hold at least one callback of %d samples (%d bytes)",
			a.MaxBufferSize, a.CallbackSamples, minBuffer)
	}

	if a.CallbackSamples <= 0 {
		return fmt.Errorf("callback_samples must be positive")
	}

	if a.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive")
	}

	return nil
}

func (s *SourceConfig) Validate() error {
	if s.Layers <= 0 {
		return fmt.Errorf("layers must be positive")
	}

	if s.FrameRateNum <= 0 || s.FrameRateDen <= 0 {
		return fmt.Errorf("invalid frame rate %d/%d", s.FrameRateNum, s.FrameRateDen)
	}

	if s.Width <= 0 || s.Height <= 0 || s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}

	if s.AudioUnitSamples <= 0 {
		return fmt.Errorf("audio_unit_samples must be positive")
	}

	if s.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	return nil
}
