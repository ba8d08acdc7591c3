package source

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/playout/internal/decoder"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/rational"
)

func testOptions() Options {
	return Options{
		Layers:      2,
		Video:       true,
		Audio:       true,
		FrameRate:   rational.FrameRate25,
		Geometry:    media.Geometry{Width: 8, Height: 8, Format: media.PixelFormatI420},
		AudioSpec:   media.AudioSpec{SampleRate: 48000, Channels: 2},
		UnitSamples: 1000,
		ToneHz:      440,
		Duration:    rational.New(1, 5),
	}
}

type tally struct {
	video, audio map[string]int
	samples      map[string]int
	layerEnded   int
	lastPTS      map[string]rational.Rational
}

func drain(t *testing.T, tp *TestPattern) tally {
	t.Helper()
	got := tally{
		video:   map[string]int{},
		audio:   map[string]int{},
		samples: map[string]int{},
		lastPTS: map[string]rational.Rational{},
	}

	prev := rational.Zero
	for i := 0; i < 10000; i++ {
		res, u, layer := tp.Decode(context.Background())
		switch res {
		case decoder.ResultEOS:
			return got
		case decoder.ResultLayerEnded:
			got.layerEnded++
			continue
		case decoder.ResultOK:
		default:
			t.Fatalf("unexpected result %s", res)
		}

		require.NoError(t, u.Validate())
		require.Equal(t, layer, u.LayerID)
		assert.True(t, prev.LessEq(u.PTS), "pts went backwards: %s after %s", u.PTS, prev)
		prev = u.PTS

		key := u.Kind.String() + layer
		if last, ok := got.lastPTS[key]; ok {
			assert.True(t, last.Less(u.PTS))
		}
		got.lastPTS[key] = u.PTS

		if u.Kind == media.KindVideo {
			got.video[layer]++
		} else {
			got.audio[layer]++
			got.samples[layer] += u.Samples
		}
	}
	t.Fatal("source never reached end of stream")
	return got
}

func TestTestPattern_ProducesWholeDuration(t *testing.T) {
	tp := NewTestPattern(testOptions(), nil)
	ids := tp.LayerIDs()
	require.Len(t, ids, 2)
	for _, id := range ids {
		_, err := uuid.Parse(id)
		require.NoError(t, err)
	}

	got := drain(t, tp)

	assert.Equal(t, 2, got.layerEnded)
	for _, id := range ids {
		// 200ms at 25fps and 48kHz
		assert.Equal(t, 5, got.video[id])
		assert.Equal(t, 9600, got.samples[id])
		assert.Equal(t, 10, got.audio[id])
	}
}

func TestTestPattern_AudioOnly(t *testing.T) {
	opts := testOptions()
	opts.Video = false
	opts.Layers = 1
	opts.UnitSamples = 4096

	tp := NewTestPattern(opts, nil)
	got := drain(t, tp)

	id := tp.LayerIDs()[0]
	assert.Zero(t, got.video[id])
	assert.Equal(t, 3, got.audio[id])
	assert.Equal(t, 9600, got.samples[id])
}

func TestTestPattern_HardwareFrames(t *testing.T) {
	opts := testOptions()
	opts.Audio = false
	opts.Layers = 1
	opts.DecodeMethod = media.DecodeHardware

	tp := NewTestPattern(opts, nil)
	res, u, _ := tp.Decode(context.Background())
	require.Equal(t, decoder.ResultOK, res)
	assert.Equal(t, media.DecodeHardware, u.Method)
	hw, ok := u.Frame.(*media.HardwareFrame)
	require.True(t, ok)
	assert.Equal(t, uint32(0), hw.Surface)
	assert.True(t, u.Duration.Equal(rational.New(1, 25)))
}

func TestTestPattern_AudioIsPlanarTone(t *testing.T) {
	opts := testOptions()
	opts.Video = false
	opts.Layers = 1

	tp := NewTestPattern(opts, nil)
	_, u, _ := tp.Decode(context.Background())
	require.NotNil(t, u)

	assert.Equal(t, media.SampleFormatFLTP, u.Audio.Format)
	require.Len(t, u.Data, 2)
	assert.Equal(t, u.Data[0], u.Data[1])
	assert.NotEqual(t, make([]byte, len(u.Data[0])), u.Data[0])
}

func TestTestPattern_ZeroDuration(t *testing.T) {
	opts := testOptions()
	opts.Duration = rational.Zero

	got := drain(t, NewTestPattern(opts, nil))
	assert.Equal(t, 2, got.layerEnded)
	assert.Empty(t, got.video)
	assert.Empty(t, got.audio)
}
