package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zsiec/playout/internal/audio"
	"github.com/zsiec/playout/internal/config"
	"github.com/zsiec/playout/internal/decoder"
	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/internal/state"
	"github.com/zsiec/playout/internal/video"
)

// Mode selects where decoded audio goes
type Mode string

const (
	// ModeRender mixes audio into the channel rings for a fixed-size callback
	ModeRender Mode = "render"
	// ModeEncode keeps audio units per layer for an encoder to pull
	ModeEncode Mode = "encode"
)

// Player wires a decoder to the video queue and the audio buffer or queue
// and exposes the consumer side. All audio access is serialized under
// audioMu; the video queue locks itself.
type Player struct {
	mode  Mode
	spec  media.AudioSpec
	state *state.State

	video *video.Queue

	audioMu sync.Mutex
	buffer  *audio.Buffer
	aqueue  *audio.Queue

	worker *decoder.Worker

	// progress ticks on every enqueue and when decoding stops
	progress  *state.Synced[uint64]
	hwMu      sync.Mutex
	videoEnds map[string]rational.Rational
	audioEnds map[string]rational.Rational

	// seekGen changes on every Seek so the playback clock can follow
	seekMu  sync.Mutex
	seekGen uint64
	seekPTS rational.Rational

	ended   atomic.Bool
	errMu   sync.Mutex
	lastErr error

	framesDelivered atomic.Int64
	audioBytesRead  atomic.Int64

	logger logger.Logger
}

// New creates a player for the playback config. The decoder is driven by
// Run; consumers pull through the remaining methods.
func New(cfg *config.PlaybackConfig, dec decoder.Decoder, log logger.Logger) (*Player, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	method, err := media.ParseDecodeMethod(cfg.DecodeMethod)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	mode := Mode(cfg.Mode)
	if mode != ModeRender && mode != ModeEncode {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown playback mode %q", cfg.Mode))
	}

	spec := media.AudioSpec{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Format:     media.SampleFormatFLTP,
	}
	st := state.New(state.Properties{
		VideoMaxQueueSize:  cfg.Video.MaxQueueSize,
		VideoMaxQueueCount: cfg.Video.MaxQueueCount,
		AudioMaxQueueSize:  cfg.Audio.MaxQueueSize,
		AudioMaxBufferSize: cfg.Audio.MaxBufferSize,
		AudioSpec:          spec,
		DecodeMethod:       method,
	})

	p := &Player{
		mode:      mode,
		spec:      spec,
		state:     st,
		progress:  state.NewSynced[uint64](0),
		videoEnds: make(map[string]rational.Rational),
		audioEnds: make(map[string]rational.Rational),
		logger:    logger.WithComponent(log, "player"),
	}

	var (
		vsink decoder.VideoSink
		asink decoder.AudioSink
	)
	if cfg.Video.Enabled {
		p.video = video.NewQueue(st, log)
		vsink = videoSink{p}
	}
	if cfg.Audio.Enabled {
		switch mode {
		case ModeRender:
			p.buffer = audio.NewBuffer(spec, cfg.Audio.MaxBufferSize, log)
		case ModeEncode:
			p.aqueue = audio.NewQueue(st, log)
		}
		asink = audioSink{p}
	}

	loop := decoder.NewLoop(dec, vsink, asink, log)
	p.worker = decoder.NewWorker(loop, st, log)
	return p, nil
}

// State returns the shared decode state
func (p *Player) State() *state.State {
	return p.state
}

// Mode returns the playback mode
func (p *Player) Mode() Mode {
	return p.mode
}

// Run decodes until the stream ends, the decoder fails or ctx is done.
// The end of stream is not an error.
func (p *Player) Run(ctx context.Context) error {
	err := p.worker.Run(ctx)

	p.errMu.Lock()
	if err != nil && !errors.IsEnded(err) && ctx.Err() == nil {
		p.lastErr = err
	}
	p.errMu.Unlock()
	p.ended.Store(true)
	p.bump()

	if errors.IsEnded(err) {
		return nil
	}
	return err
}

// Ended reports whether decoding has stopped
func (p *Player) Ended() bool {
	return p.ended.Load()
}

func (p *Player) bump() {
	p.progress.Update(func(v uint64) uint64 { return v + 1 })
}

// VideoFrames dequeues the frame to show at pts for every active layer
func (p *Player) VideoFrames(pts rational.Rational) map[string]*media.Unit {
	frames := make(map[string]*media.Unit)
	if p.video == nil {
		return frames
	}
	for _, id := range p.state.ActiveLayers() {
		if u := p.video.Dequeue(id, pts); u != nil {
			frames[id] = u
		}
	}
	p.framesDelivered.Add(int64(len(frames)))
	return frames
}

// VideoFrame dequeues the frame to show at pts for one layer
func (p *Player) VideoFrame(layerID string, pts rational.Rational) *media.Unit {
	if p.video == nil {
		return nil
	}
	u := p.video.Dequeue(layerID, pts)
	if u != nil {
		p.framesDelivered.Add(1)
	}
	return u
}

// ReadAudio pulls length bytes of mixed planar audio, channels back to
// back. Only available in render mode.
func (p *Player) ReadAudio(out []byte, length int) error {
	if p.buffer == nil {
		return errors.NewValidationError("audio buffer is not configured")
	}
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	if err := p.buffer.Dequeue(out, length); err != nil {
		return err
	}
	p.audioBytesRead.Add(int64(length))
	p.publishAudioLocked()
	return nil
}

// NextAudio pops the next audio unit of a layer and the byte offset to
// start from. Only available in encode mode.
func (p *Player) NextAudio(layerID string) (*media.Unit, int, bool) {
	if p.aqueue == nil {
		return nil, 0, false
	}
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	u, offset, ok := p.aqueue.PopFront(layerID)
	if ok {
		p.audioBytesRead.Add(int64(u.Size))
	}
	return u, offset, ok
}

// AudioPTS returns the audio read cursor in render mode
func (p *Player) AudioPTS() rational.Rational {
	if p.buffer == nil {
		return rational.New(-1, 1)
	}
	p.audioMu.Lock()
	defer p.audioMu.Unlock()
	return p.buffer.CurPTS()
}

// Seek repositions queued content at pts. Backward seeks in render mode
// reset the rings. It reports whether any output found content to resume.
func (p *Player) Seek(pts rational.Rational) bool {
	found := false
	if p.video != nil && p.video.Seek(pts) {
		found = true
	}

	p.audioMu.Lock()
	switch {
	case p.buffer != nil:
		if err := p.buffer.Seek(pts); err != nil {
			p.buffer.Reset(pts)
		}
		p.publishAudioLocked()
		found = true
	case p.aqueue != nil:
		if p.aqueue.Seek(pts) {
			found = true
		}
	}
	p.audioMu.Unlock()

	p.seekMu.Lock()
	p.seekGen++
	p.seekPTS = pts
	p.seekMu.Unlock()
	p.bump()

	p.logger.WithFields(map[string]interface{}{
		"pts":   pts.String(),
		"found": found,
	}).Info("Seek")
	return found
}

// Clear drops all queued content and opens both decode gates
func (p *Player) Clear() {
	if p.video != nil {
		p.video.Clear(true)
	}

	p.audioMu.Lock()
	switch {
	case p.buffer != nil:
		p.buffer.Reset(p.buffer.CurPTS())
		p.state.AudioDecodeReady.Set(true, true)
		metrics.SetDecodeReady("audio", true)
	case p.aqueue != nil:
		p.aqueue.Clear(true)
	}
	p.audioMu.Unlock()
}

// ClearLayer drops queued content of one layer. Audio already mixed into
// the rings cannot be separated and is kept.
func (p *Player) ClearLayer(layerID string) {
	if p.video != nil {
		p.video.ClearByID(layerID, true)
	}
	if p.aqueue != nil {
		p.audioMu.Lock()
		p.aqueue.ClearByID(layerID, true)
		p.audioMu.Unlock()
	}
}

// SetActiveLayers replaces the set of layers that are rendered and seeked
func (p *Player) SetActiveLayers(ids ...string) {
	p.state.SetActiveLayers(ids...)
}

// SetLayerGain sets the mix gain of a layer in render mode
func (p *Player) SetLayerGain(layerID string, gain float32) {
	if p.buffer == nil {
		return
	}
	p.audioMu.Lock()
	p.buffer.SetGain(layerID, gain)
	p.audioMu.Unlock()
}

// publishAudioLocked writes render-mode readiness. Caller holds audioMu.
// The audio queue publishes for itself in encode mode.
func (p *Player) publishAudioLocked() {
	if p.buffer == nil {
		return
	}
	ready := p.buffer.WriteReady()
	p.state.AudioDecodeReady.Set(ready, false)
	metrics.SetDecodeReady("audio", ready)
}

// extend records the end of a decoded unit in the per-layer high-water
// marks
func (p *Player) extend(ends map[string]rational.Rational, u *media.Unit) {
	p.hwMu.Lock()
	if e, ok := ends[u.LayerID]; !ok || e.Less(u.End()) {
		ends[u.LayerID] = u.End()
	}
	p.hwMu.Unlock()
}

func (p *Player) lastSeek() (uint64, rational.Rational) {
	p.seekMu.Lock()
	defer p.seekMu.Unlock()
	return p.seekGen, p.seekPTS
}

// decodedTo returns the lowest high-water mark across the active layers,
// or across every layer seen when none is active. ok is false until each
// of those layers has produced a unit.
func (p *Player) decodedTo(ends map[string]rational.Rational) (rational.Rational, bool) {
	ids := p.state.ActiveLayers()

	p.hwMu.Lock()
	defer p.hwMu.Unlock()
	if len(ids) == 0 {
		for id := range ends {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return rational.Zero, false
	}
	var low rational.Rational
	for i, id := range ids {
		e, ok := ends[id]
		if !ok {
			return rational.Zero, false
		}
		if i == 0 || e.Less(low) {
			low = e
		}
	}
	return low, true
}

// decodedMax returns the highest high-water mark of any layer
func (p *Player) decodedMax(ends map[string]rational.Rational) rational.Rational {
	p.hwMu.Lock()
	defer p.hwMu.Unlock()
	high := rational.Zero
	for _, e := range ends {
		if high.Less(e) {
			high = e
		}
	}
	return high
}

// videoSink feeds the video queue and records decode progress
type videoSink struct{ p *Player }

func (s videoSink) Enqueue(u *media.Unit) error {
	if err := s.p.video.Enqueue(u); err != nil {
		return err
	}
	s.p.extend(s.p.videoEnds, u)
	s.p.bump()
	return nil
}

func (s videoSink) Ready() bool {
	return s.p.video.Ready()
}

// audioSink serializes decode-side audio access with the consumer
type audioSink struct{ p *Player }

func (s audioSink) Enqueue(u *media.Unit) error {
	p := s.p
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	if p.aqueue != nil {
		if err := p.aqueue.Enqueue(u); err != nil {
			return err
		}
		p.extend(p.audioEnds, u)
		p.bump()
		return nil
	}

	pending := p.buffer.PendingUnit()
	err := p.buffer.Enqueue(u)
	p.publishAudioLocked()
	if pending != nil && p.buffer.PendingUnit() != pending {
		p.extend(p.audioEnds, pending)
	}
	if err == nil {
		p.extend(p.audioEnds, u)
	}
	p.bump()
	return err
}

// WriteReady drains a back-buffer that fits again, so a held unit is
// written even when no further audio is decoded
func (s audioSink) WriteReady() bool {
	p := s.p
	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	if p.aqueue != nil {
		return p.aqueue.WriteReady()
	}
	if u, err := p.buffer.Flush(); err == nil && u != nil {
		p.extend(p.audioEnds, u)
		p.bump()
		p.publishAudioLocked()
	}
	return p.buffer.WriteReady()
}

// Status is a point-in-time snapshot for the debug server
type Status struct {
	Mode             Mode     `json:"mode"`
	DecodeMethod     string   `json:"decode_method"`
	ActiveLayers     []string `json:"active_layers"`
	VideoQueueBytes  int64    `json:"video_queue_bytes"`
	VideoQueueFrames int64    `json:"video_queue_frames"`
	AudioQueueBytes  int64    `json:"audio_queue_bytes,omitempty"`
	AudioPTS         string   `json:"audio_pts,omitempty"`
	AudioPending     bool     `json:"audio_pending"`
	VideoDecodeReady bool     `json:"video_decode_ready"`
	AudioDecodeReady bool     `json:"audio_decode_ready"`
	Ended            bool     `json:"ended"`
	Error            string   `json:"error,omitempty"`
	FramesDelivered  int64    `json:"frames_delivered"`
	AudioBytesRead   int64    `json:"audio_bytes_read"`
}

// Status returns the current queue and decode state
func (p *Player) Status() Status {
	st := Status{
		Mode:             p.mode,
		DecodeMethod:     p.state.Props().DecodeMethod.String(),
		ActiveLayers:     p.state.ActiveLayers(),
		VideoDecodeReady: p.state.VideoDecodeReady.Get(),
		AudioDecodeReady: p.state.AudioDecodeReady.Get(),
		Ended:            p.Ended(),
		FramesDelivered:  p.framesDelivered.Load(),
		AudioBytesRead:   p.audioBytesRead.Load(),
	}
	if p.video != nil {
		st.VideoQueueBytes = p.video.Size()
		st.VideoQueueFrames = p.video.Count()
	}

	p.audioMu.Lock()
	switch {
	case p.buffer != nil:
		st.AudioPTS = p.buffer.CurPTS().String()
		st.AudioPending = p.buffer.Pending()
	case p.aqueue != nil:
		st.AudioQueueBytes = p.aqueue.Size()
	}
	p.audioMu.Unlock()

	p.errMu.Lock()
	if p.lastErr != nil {
		st.Error = p.lastErr.Error()
	}
	p.errMu.Unlock()
	return st
}
