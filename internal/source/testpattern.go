// Package source provides a synthetic decoder that produces flat video
// frames and a sine tone per layer with exact timestamps.
package source

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/zsiec/playout/internal/decoder"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/rational"
)

// surfacePool is the number of hardware surfaces handed out round robin
const surfacePool = 16

// Options configures a TestPattern
type Options struct {
	Layers       int
	Video        bool
	Audio        bool
	FrameRate    rational.Rational
	Geometry     media.Geometry
	DecodeMethod media.DecodeMethod
	AudioSpec    media.AudioSpec
	UnitSamples  int
	ToneHz       float64
	Duration     rational.Rational
}

type layer struct {
	id        string
	index     int
	frames    int64
	samples   int64
	ended     bool
	videoDone bool
	audioDone bool
}

// TestPattern is a decoder over synthetic layers. Each call returns the
// pending unit with the lowest PTS across layers and kinds.
type TestPattern struct {
	mu     sync.Mutex
	opts   Options
	layers []*layer
	logger logger.Logger
}

// NewTestPattern creates a source with fresh layer ids
func NewTestPattern(opts Options, log logger.Logger) *TestPattern {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if opts.FrameRate.Sign() <= 0 {
		opts.FrameRate = rational.FrameRate25
	}
	if opts.UnitSamples <= 0 {
		opts.UnitSamples = 1024
	}
	opts.AudioSpec.Format = media.SampleFormatFLTP

	tp := &TestPattern{
		opts:   opts,
		logger: logger.WithComponent(log, "test_pattern"),
	}
	empty := opts.Duration.Sign() <= 0
	for i := 0; i < opts.Layers; i++ {
		tp.layers = append(tp.layers, &layer{
			id:        uuid.NewString(),
			index:     i,
			videoDone: !opts.Video || empty,
			audioDone: !opts.Audio || empty,
		})
	}
	return tp
}

// LayerIDs returns the layer ids in creation order
func (tp *TestPattern) LayerIDs() []string {
	ids := make([]string, len(tp.layers))
	for i, l := range tp.layers {
		ids[i] = l.id
	}
	return ids
}

// Decode implements decoder.Decoder
func (tp *TestPattern) Decode(ctx context.Context) (decoder.Result, *media.Unit, string) {
	if ctx.Err() != nil {
		return decoder.ResultAgain, nil, ""
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()

	var (
		next    *layer
		nextPTS rational.Rational
		isVideo bool
	)
	for _, l := range tp.layers {
		if l.ended {
			continue
		}
		if l.videoDone && l.audioDone {
			l.ended = true
			tp.logger.WithField("layer_id", l.id).Debug("Layer ended")
			return decoder.ResultLayerEnded, nil, l.id
		}
		if !l.videoDone {
			pts := tp.videoPTS(l)
			if next == nil || pts.Less(nextPTS) {
				next, nextPTS, isVideo = l, pts, true
			}
		}
		if !l.audioDone {
			pts := tp.audioPTS(l)
			if next == nil || pts.Less(nextPTS) {
				next, nextPTS, isVideo = l, pts, false
			}
		}
	}
	if next == nil {
		return decoder.ResultEOS, nil, ""
	}

	if isVideo {
		return decoder.ResultOK, tp.videoUnit(next, nextPTS), next.id
	}
	return decoder.ResultOK, tp.audioUnit(next, nextPTS), next.id
}

func (tp *TestPattern) videoPTS(l *layer) rational.Rational {
	return rational.FromInt(l.frames).Div(tp.opts.FrameRate)
}

func (tp *TestPattern) audioPTS(l *layer) rational.Rational {
	return rational.New(l.samples, int64(tp.opts.AudioSpec.SampleRate))
}

func (tp *TestPattern) videoUnit(l *layer, pts rational.Rational) *media.Unit {
	dur := tp.opts.FrameRate.Invert()
	if end := pts.Add(dur); tp.opts.Duration.LessEq(end) {
		l.videoDone = true
	}

	var frame media.Frame
	if tp.opts.DecodeMethod == media.DecodeHardware {
		frame = &media.HardwareFrame{
			Geo:     tp.opts.Geometry,
			Device:  "synthetic",
			Surface: uint32(l.frames % surfacePool),
		}
	} else {
		sw := media.NewSoftwareFrame(tp.opts.Geometry)
		// luma steps with the frame number, offset per layer
		level := byte(l.frames*4 + int64(l.index)*64)
		for i := range sw.Planes[0] {
			sw.Planes[0][i] = level
		}
		for _, p := range sw.Planes[1:] {
			for i := range p {
				p[i] = 128
			}
		}
		frame = sw
	}

	l.frames++
	return media.NewVideoUnit(l.id, pts, dur, frame)
}

func (tp *TestPattern) audioUnit(l *layer, pts rational.Rational) *media.Unit {
	spec := tp.opts.AudioSpec
	n := tp.opts.UnitSamples

	// trim the last unit to the stream duration
	remaining := tp.opts.Duration.Sub(pts).MulInt(int64(spec.SampleRate)).Floor()
	if remaining <= int64(n) {
		n = int(remaining)
		l.audioDone = true
	}

	amp := 0.2 / float64(max(len(tp.layers), 1))
	planes := make([][]byte, spec.Channels)
	for c := range planes {
		planes[c] = make([]byte, n*4)
	}
	for s := 0; s < n; s++ {
		t := float64(l.samples+int64(s)) / float64(spec.SampleRate)
		v := float32(amp * math.Sin(2*math.Pi*tp.opts.ToneHz*float64(l.index+1)*t))
		for c := range planes {
			binary.LittleEndian.PutUint32(planes[c][s*4:], math.Float32bits(v))
		}
	}

	l.samples += int64(n)
	return media.NewAudioUnit(l.id, pts, spec, n, planes)
}
