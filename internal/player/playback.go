package player

import (
	"context"
	"time"

	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
)

// PlaybackOptions configures the consumer clock
type PlaybackOptions struct {
	FrameRate       rational.Rational
	CallbackSamples int

	// Realtime paces the clock against the wall clock. Otherwise the clock
	// advances as soon as the decoder has produced content for it.
	Realtime bool

	OnFrames func(pts rational.Rational, frames map[string]*media.Unit)
	// OnAudio receives planar channels back to back in render mode
	OnAudio func(pts rational.Rational, data []byte)
	// OnAudioUnit receives whole units and their resume offset in encode mode
	OnAudioUnit func(u *media.Unit, offset int)
}

// Playback drives the consumer side: video frames are pulled at every
// frame tick and audio at every callback tick, both against one PTS
// clock. It returns once decoding has stopped and everything decoded
// has been played.
func (p *Player) Playback(ctx context.Context, opts PlaybackOptions) error {
	metrics.IncrementGoroutineCreated("playback")
	defer metrics.IncrementGoroutineDestroyed("playback")

	if opts.FrameRate.Sign() <= 0 {
		opts.FrameRate = rational.FrameRate25
	}
	if opts.CallbackSamples <= 0 {
		opts.CallbackSamples = 1024
	}

	var (
		frameDur  = opts.FrameRate.Invert()
		cbDur     = rational.New(int64(opts.CallbackSamples), int64(p.spec.SampleRate))
		cbBytes   = opts.CallbackSamples * p.spec.Format.BytesPerSample() * p.spec.Channels
		hasAudio  = p.buffer != nil || p.aqueue != nil
		nextVideo = rational.Zero
		nextAudio = rational.Zero
		start     = time.Now()
		gen, _    = p.lastSeek()
		log       = logger.WithComponent(p.logger, "playback")
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g, at := p.lastSeek(); g != gen {
			// restart the clock at the seek target
			gen = g
			nextVideo, nextAudio = at, at
			start = time.Now().Add(-at.Duration())
			log.WithField("pts", at.String()).Debug("Playback clock moved")
		}
		if p.buffer != nil {
			nextAudio = p.AudioPTS()
		}
		if p.drained(nextVideo, nextAudio) {
			log.WithFields(map[string]interface{}{
				"video_pts":        nextVideo.String(),
				"audio_pts":        nextAudio.String(),
				"frames_delivered": p.framesDelivered.Load(),
			}).Info("Playback finished")
			return nil
		}

		doVideo := p.video != nil && (!hasAudio || nextVideo.LessEq(nextAudio))
		pts, until := nextAudio, nextAudio.Add(cbDur)
		if doVideo {
			pts, until = nextVideo, nextVideo
		}

		if opts.Realtime {
			if err := sleepUntil(ctx, start.Add(pts.Duration())); err != nil {
				return err
			}
		} else if err := p.waitFor(ctx, doVideo, until, gen); err != nil {
			return err
		}
		if g, _ := p.lastSeek(); g != gen {
			continue
		}

		if doVideo {
			frames := p.VideoFrames(pts)
			if opts.OnFrames != nil && len(frames) > 0 {
				opts.OnFrames(pts, frames)
			}
			nextVideo = nextVideo.Add(frameDur)
			continue
		}

		switch {
		case p.buffer != nil:
			buf := make([]byte, cbBytes)
			if err := p.ReadAudio(buf, cbBytes); err != nil {
				return err
			}
			if opts.OnAudio != nil {
				opts.OnAudio(pts, buf)
			}
		case p.aqueue != nil:
			p.popAudioUntil(until, opts.OnAudioUnit)
		}
		nextAudio = until
	}
}

// waitFor blocks until every layer has been decoded up to until. It also
// returns once decoding stops, a decode gate closes or a seek moves the
// clock; a closed gate means the decoder waits on this consumer.
func (p *Player) waitFor(ctx context.Context, isVideo bool, until rational.Rational, gen uint64) error {
	ends := p.audioEnds
	if isVideo {
		ends = p.videoEnds
	}
	for {
		seen := p.progress.Get()
		if p.Ended() {
			return nil
		}
		if g, _ := p.lastSeek(); g != gen {
			return nil
		}
		if !p.state.VideoDecodeReady.Get() || !p.state.AudioDecodeReady.Get() {
			return nil
		}
		if end, ok := p.decodedTo(ends); ok {
			if isVideo && until.Less(end) {
				return nil
			}
			if !isVideo && until.LessEq(end) {
				return nil
			}
		}
		if err := p.progress.Wait(ctx, func(v uint64) bool { return v != seen }); err != nil {
			return err
		}
	}
}

func (p *Player) drained(nextVideo, nextAudio rational.Rational) bool {
	if !p.Ended() {
		return false
	}
	if p.video != nil && nextVideo.Less(p.decodedMax(p.videoEnds)) {
		return false
	}
	if (p.buffer != nil || p.aqueue != nil) && nextAudio.Less(p.decodedMax(p.audioEnds)) {
		return false
	}
	return true
}

// popAudioUntil hands every active layer's units starting before until
// to fn
func (p *Player) popAudioUntil(until rational.Rational, fn func(u *media.Unit, offset int)) {
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	for _, id := range p.state.ActiveLayers() {
		for {
			head := p.aqueue.Front(id)
			if head == nil || !head.PTS.Less(until) {
				break
			}
			u, offset, _ := p.aqueue.PopFront(id)
			p.audioBytesRead.Add(int64(u.Size))
			if fn != nil {
				fn(u, offset)
			}
		}
	}
}

func sleepUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
