package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playout/internal/config"
	"github.com/zsiec/playout/internal/decoder"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/player"
	"github.com/zsiec/playout/internal/rational"
)

// failAfter passes through n successful decodes and then fails
type failAfter struct {
	dec decoder.Decoder
	n   int
}

func (f *failAfter) Decode(ctx context.Context) (decoder.Result, *media.Unit, string) {
	if f.n == 0 {
		return decoder.ResultError, nil, ""
	}
	res, u, id := f.dec.Decode(ctx)
	if res == decoder.ResultOK {
		f.n--
	}
	return res, u, id
}

func testPlaybackConfig() *config.PlaybackConfig {
	return &config.PlaybackConfig{
		Mode:         "encode",
		DecodeMethod: "software",
		Video:        config.VideoConfig{Enabled: true, MaxQueueSize: 64 * 1024 * 1024, MaxQueueCount: 16},
		Audio: config.AudioConfig{
			Enabled:         true,
			SampleRate:      48000,
			Channels:        2,
			MaxBufferSize:   1536000,
			MaxQueueSize:    4 * 1024 * 1024,
			CallbackSamples: 1024,
		},
		Source: config.SourceConfig{
			Layers:           2,
			FrameRateNum:     25,
			FrameRateDen:     1,
			Width:            8,
			Height:           8,
			ToneHz:           440,
			AudioUnitSamples: 1000,
			Duration:         200 * time.Millisecond,
		},
	}
}

func TestPlay_DrainsAfterDecodeFailure(t *testing.T) {
	cfg := testPlaybackConfig()
	src, err := newSource(cfg, logger.NewNullLogger())
	require.NoError(t, err)

	p, err := player.New(cfg, &failAfter{dec: src, n: 8}, logger.NewNullLogger())
	require.NoError(t, err)
	p.SetActiveLayers(src.LayerIDs()...)

	frames, units := 0, 0
	opts := player.PlaybackOptions{
		FrameRate:       rational.FrameRate25,
		CallbackSamples: 1024,
		OnFrames: func(_ rational.Rational, f map[string]*media.Unit) {
			frames += len(f)
		},
		OnAudioUnit: func(*media.Unit, int) { units++ },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, play(ctx, p, opts, logger.NewNullLogger()))
	require.NoError(t, ctx.Err(), "playback was cut short")

	st := p.Status()
	assert.True(t, st.Ended)
	assert.NotEmpty(t, st.Error)
	assert.Positive(t, frames)
	assert.Positive(t, units)
	assert.Zero(t, st.VideoQueueFrames)
	assert.Zero(t, st.AudioQueueBytes)
}

func TestPlay_CancelIsNotADecodeError(t *testing.T) {
	cfg := testPlaybackConfig()
	cfg.Source.Duration = time.Hour
	src, err := newSource(cfg, logger.NewNullLogger())
	require.NoError(t, err)

	p, err := player.New(cfg, src, logger.NewNullLogger())
	require.NoError(t, err)
	p.SetActiveLayers(src.LayerIDs()...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- play(ctx, p, player.PlaybackOptions{
			FrameRate:       rational.FrameRate25,
			CallbackSamples: 1024,
			Realtime:        true,
		}, logger.NewNullLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("play ignored cancellation")
	}
	assert.Empty(t, p.Status().Error)
}
