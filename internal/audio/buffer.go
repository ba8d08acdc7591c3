package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
)

// ErrBackBufferOccupied is returned when a unit arrives while the pending
// back-buffer still cannot be written. Callers must wait for WriteReady.
var ErrBackBufferOccupied = errors.NewInternalError("audio back-buffer occupied").WithCode(codeBackBufferOccupied)

const codeBackBufferOccupied = "BACK_BUFFER_OCCUPIED"

// Buffer fans planar audio out to one Ring per channel. Layers are mixed
// additively. At most one unit is held back when the rings are full.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	spec  media.AudioSpec
	rings []*Ring
	back  *media.Unit
	gains map[string]float32

	logger logger.Logger
}

// NewBuffer creates a buffer of maxBufferSize bytes split across channels.
// Rings always hold FLTP samples regardless of spec.Format.
func NewBuffer(spec media.AudioSpec, maxBufferSize int, log logger.Logger) *Buffer {
	if log == nil {
		log = logger.NewNullLogger()
	}
	spec.Format = media.SampleFormatFLTP

	b := &Buffer{
		spec:   spec,
		gains:  make(map[string]float32),
		logger: logger.WithComponent(log, "audio_buffer"),
	}
	if spec.Channels <= 0 {
		return b
	}

	perChannel := maxBufferSize / spec.Channels
	b.rings = make([]*Ring, spec.Channels)
	for i := range b.rings {
		b.rings[i] = NewRing(perChannel, spec.SampleRate, spec.Format.BytesPerSample(),
			b.logger.WithField("channel", i))
	}
	return b
}

// Spec returns the output layout of the buffer
func (b *Buffer) Spec() media.AudioSpec {
	return b.spec
}

// Enqueue mixes a unit into the channel rings. A pending back-buffer is
// drained first. When the unit does not fit it becomes the back-buffer
// and an out-of-range error is returned.
func (b *Buffer) Enqueue(u *media.Unit) error {
	if b.back != nil {
		pending := b.back
		if _, err := b.Flush(); err != nil {
			metrics.IncrementBackBuffer("reject")
			b.logger.WithFields(map[string]interface{}{
				"pending_pts": pending.PTS.String(),
				"pts":         u.PTS.String(),
				"layer_id":    u.LayerID,
			}).Warn("Audio unit enqueued while back-buffer is pending")
			return errors.NewInternalError(ErrBackBufferOccupied.Message).WithCode(codeBackBufferOccupied).WithDetails(map[string]interface{}{
				"pending_pts": pending.PTS.String(),
			})
		}
	}

	if err := b.write(u); err != nil {
		if !errors.IsOutOfRange(err) {
			return err
		}
		b.back = u
		metrics.IncrementBackBuffer("stash")
		b.logger.WithFields(map[string]interface{}{
			"pts":      u.PTS.String(),
			"layer_id": u.LayerID,
			"buf_pts":  b.CurPTS().String(),
		}).Debug("Audio unit held in back-buffer")
		return err
	}
	return nil
}

// Flush writes the back-buffer if it fits now and returns the drained
// unit. The unit stays pending on error.
func (b *Buffer) Flush() (*media.Unit, error) {
	if b.back == nil {
		return nil, nil
	}
	pending := b.back
	if err := b.write(pending); err != nil {
		return nil, err
	}
	b.back = nil
	metrics.IncrementBackBuffer("drain")
	return pending, nil
}

// write checks every channel before touching any ring, so a rejected unit
// leaves no partial mix behind
func (b *Buffer) write(u *media.Unit) error {
	if len(b.rings) == 0 {
		return nil
	}
	planes, pts, err := b.prepare(u)
	if err != nil || planes == nil {
		return err
	}

	for i, r := range b.rings {
		if !r.WithinRange(len(planes[i]), pts) {
			return errors.NewOutOfRangeError("audio unit outside buffer window").WithDetails(map[string]interface{}{
				"pts":      u.PTS.String(),
				"layer_id": u.LayerID,
				"channel":  i,
			})
		}
	}

	gain := b.gain(u.LayerID)
	for i, r := range b.rings {
		if err := r.Write(planes[i], pts, gain, true); err != nil {
			return err
		}
	}
	return nil
}

// prepare returns the planes to write and their PTS. Samples already
// behind the read cursor are cut off; a unit entirely behind it yields
// no planes.
func (b *Buffer) prepare(u *media.Unit) ([][]byte, rational.Rational, error) {
	planes, err := b.planes(u)
	if err != nil {
		return nil, u.PTS, err
	}

	pts := u.PTS
	cur := b.CurPTS()
	if !pts.Less(cur) {
		return planes, pts, nil
	}
	if u.End().LessEq(cur) {
		metrics.IncrementBackBuffer("stale")
		b.logger.WithFields(map[string]interface{}{
			"pts":      u.PTS.String(),
			"layer_id": u.LayerID,
			"buf_pts":  cur.String(),
		}).Debug("Dropped audio unit behind read cursor")
		return nil, pts, nil
	}

	skip := b.rings[0].ToLength(cur.Sub(pts))
	if rem := skip % sampleAlign; rem != 0 {
		skip += sampleAlign - rem
	}
	trimmed := make([][]byte, len(planes))
	for i, p := range planes {
		trimmed[i] = p[min(skip, len(p)):]
	}
	return trimmed, pts.Add(b.rings[0].ToPTS(skip)), nil
}

// planes returns one FLTP plane per output channel, converting interleaved
// input when needed
func (b *Buffer) planes(u *media.Unit) ([][]byte, error) {
	if u.Audio.Channels != b.spec.Channels {
		return nil, errors.NewValidationError(fmt.Sprintf("unit has %d channels, buffer has %d",
			u.Audio.Channels, b.spec.Channels))
	}
	if u.Audio.SampleRate != b.spec.SampleRate {
		return nil, errors.NewValidationError(fmt.Sprintf("unit sample rate %d, buffer sample rate %d",
			u.Audio.SampleRate, b.spec.SampleRate))
	}

	switch u.Audio.Format {
	case media.SampleFormatFLTP:
		if len(u.Data) != b.spec.Channels {
			return nil, errors.NewValidationError(fmt.Sprintf("unit has %d planes, want %d", len(u.Data), b.spec.Channels))
		}
		return u.Data, nil
	case media.SampleFormatFLT, media.SampleFormatS16:
		if len(u.Data) != 1 {
			return nil, errors.NewValidationError("interleaved audio must have a single plane")
		}
		return deinterleave(u.Data[0], u.Audio.Format, b.spec.Channels, u.Samples), nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported sample format %s", u.Audio.Format))
	}
}

func deinterleave(src []byte, format media.SampleFormat, channels, samples int) [][]byte {
	bps := format.BytesPerSample()
	if avail := len(src) / (bps * channels); samples > avail {
		samples = avail
	}
	out := make([][]byte, channels)
	for c := range out {
		out[c] = make([]byte, samples*4)
	}
	for s := 0; s < samples; s++ {
		for c := 0; c < channels; c++ {
			off := (s*channels + c) * bps
			var v float32
			if format == media.SampleFormatS16 {
				v = float32(int16(binary.LittleEndian.Uint16(src[off:]))) / 32768
			} else {
				v = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
			}
			binary.LittleEndian.PutUint32(out[c][s*4:], math.Float32bits(v))
		}
	}
	return out
}

// Dequeue splits length evenly across channels, reads each ring and then
// consumes it. out receives the channels back to back.
func (b *Buffer) Dequeue(out []byte, length int) error {
	if len(b.rings) == 0 {
		return nil
	}
	per := length / len(b.rings)
	if len(out) < per*len(b.rings) {
		return errors.NewValidationError(fmt.Sprintf("output holds %d bytes, want %d", len(out), per*len(b.rings)))
	}

	for i, r := range b.rings {
		if err := r.Read(out[i*per:(i+1)*per], per); err != nil {
			b.logger.WithError(err).WithField("channel", i).Error("Audio ring read failed")
			return errors.WrapInternalError(err, "audio dequeue failed")
		}
		r.SeekBytes(per)
	}
	return nil
}

// WriteReady reports whether the next Enqueue can be accepted
func (b *Buffer) WriteReady() bool {
	if b.back == nil || len(b.rings) == 0 {
		return true
	}
	planes, pts, err := b.prepare(b.back)
	if err != nil || planes == nil {
		return true
	}
	return b.rings[0].WithinRange(len(planes[0]), pts)
}

// CurPTS returns the read cursor of channel 0, or -1 with no channels
func (b *Buffer) CurPTS() rational.Rational {
	if len(b.rings) == 0 {
		return rational.New(-1, 1)
	}
	return b.rings[0].PTS()
}

// Seek moves every channel cursor forward to pts
func (b *Buffer) Seek(pts rational.Rational) error {
	for _, r := range b.rings {
		if err := r.Seek(pts); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every ring, drops the back-buffer and re-anchors at pts
func (b *Buffer) Reset(pts rational.Rational) {
	for _, r := range b.rings {
		r.Reset(pts)
	}
	b.back = nil
}

// SetGain sets the mix gain applied to a layer's samples
func (b *Buffer) SetGain(layerID string, gain float32) {
	b.gains[layerID] = gain
}

func (b *Buffer) gain(layerID string) float32 {
	if g, ok := b.gains[layerID]; ok {
		return g
	}
	return 1
}

// Pending reports whether a unit is held in the back-buffer
func (b *Buffer) Pending() bool {
	return b.back != nil
}

// PendingUnit returns the back-buffer unit, or nil
func (b *Buffer) PendingUnit() *media.Unit {
	return b.back
}

// Capacity returns the ring size of one channel
func (b *Buffer) Capacity() int {
	if len(b.rings) == 0 {
		return 0
	}
	return b.rings[0].Capacity()
}
