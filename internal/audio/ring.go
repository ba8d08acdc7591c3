package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
)

// sampleAlign is the write index alignment, one float32 sample
const sampleAlign = 4

// Ring is a fixed-capacity circular byte buffer for one audio channel,
// addressed by PTS. The read cursor sits at bufPTS and writes are only
// accepted inside [bufPTS, bufPTS+ToPTS(capacity)).
//
// Ring is not safe for concurrent use.
type Ring struct {
	data           []byte
	capacity       int
	readIdx        int
	bufPTS         rational.Rational
	bytesPerSecond int64

	logger logger.Logger
}

// NewRing creates a ring of capacity bytes, aligned down to whole samples
func NewRing(capacity, sampleRate, bytesPerSample int, log logger.Logger) *Ring {
	if bytesPerSample <= 0 {
		bytesPerSample = 1
	}
	capacity -= capacity % bytesPerSample
	// write indexes land on float boundaries
	capacity -= capacity % sampleAlign
	if capacity < 0 {
		capacity = 0
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Ring{
		data:           make([]byte, capacity),
		capacity:       capacity,
		bufPTS:         rational.Zero,
		bytesPerSecond: int64(sampleRate) * int64(bytesPerSample),
		logger:         log,
	}
}

// Capacity returns the ring size in bytes
func (r *Ring) Capacity() int {
	return r.capacity
}

// PTS returns the timestamp of the read cursor
func (r *Ring) PTS() rational.Rational {
	return r.bufPTS
}

// MaxPTS returns the end of the writable window
func (r *Ring) MaxPTS() rational.Rational {
	return r.bufPTS.Add(r.ToPTS(r.capacity))
}

// ToPTS converts a byte length into a duration
func (r *Ring) ToPTS(length int) rational.Rational {
	return rational.New(int64(length), r.bytesPerSecond)
}

// ToLength converts a duration into a byte length. Non-integer results are
// floored and counted since they shift samples off their exact position.
func (r *Ring) ToLength(pts rational.Rational) int {
	v := pts.MulInt(r.bytesPerSecond)
	if !v.IsInteger() {
		metrics.IncrementFractionalOffset()
		r.logger.WithFields(map[string]interface{}{
			"pts":    pts.String(),
			"length": v.String(),
		}).Warn("Fractional byte offset in audio ring")
	}
	return int(v.Floor())
}

// WithinRange reports whether length bytes at pts fit the writable window
func (r *Ring) WithinRange(length int, pts rational.Rational) bool {
	if pts.Sign() < 0 || pts.Less(r.bufPTS) {
		return false
	}
	return pts.Add(r.ToPTS(length)).LessEq(r.MaxPTS())
}

// Write places data at the position of pts. With mix set, the region is
// treated as little-endian float32 samples and old+gain*new is stored.
func (r *Ring) Write(data []byte, pts rational.Rational, gain float32, mix bool) error {
	if !r.WithinRange(len(data), pts) {
		return errors.NewOutOfRangeError("audio write outside ring window").WithDetails(map[string]interface{}{
			"pts":     pts.String(),
			"length":  len(data),
			"buf_pts": r.bufPTS.String(),
			"max_pts": r.MaxPTS().String(),
		})
	}
	if len(data) == 0 {
		return nil
	}

	offset := r.ToLength(pts.Sub(r.bufPTS))
	idx := r.readIdx + offset
	if rem := idx % sampleAlign; rem != 0 {
		idx += sampleAlign - rem
	}
	idx %= r.capacity

	if !mix {
		written := 0
		for written < len(data) {
			n := copy(r.data[idx:], data[written:])
			written += n
			idx = (idx + n) % r.capacity
		}
		return nil
	}

	samples := len(data) / sampleAlign
	for i := 0; i < samples; i++ {
		pos := (idx + i*sampleAlign) % r.capacity
		old := math.Float32frombits(binary.LittleEndian.Uint32(r.data[pos:]))
		add := math.Float32frombits(binary.LittleEndian.Uint32(data[i*sampleAlign:]))
		binary.LittleEndian.PutUint32(r.data[pos:], math.Float32bits(old+gain*add))
	}
	return nil
}

// Read copies length bytes from the read cursor into out without advancing
func (r *Ring) Read(out []byte, length int) error {
	if length > r.capacity {
		return errors.NewOutOfRangeError("audio read exceeds ring capacity").WithDetails(map[string]interface{}{
			"length":   length,
			"capacity": r.capacity,
		})
	}
	if len(out) < length {
		return errors.NewValidationError(fmt.Sprintf("output holds %d bytes, want %d", len(out), length))
	}

	idx := r.readIdx
	read := 0
	for read < length {
		n := copy(out[read:length], r.data[idx:])
		read += n
		idx = (idx + n) % r.capacity
	}
	return nil
}

// SeekBytes zero-fills length consumed bytes and advances the cursor
func (r *Ring) SeekBytes(length int) {
	if length <= 0 || r.capacity == 0 {
		return
	}
	clearLen := length
	if clearLen > r.capacity {
		clearLen = r.capacity
	}
	idx := r.readIdx
	for clearLen > 0 {
		n := min(clearLen, r.capacity-idx)
		clear(r.data[idx : idx+n])
		clearLen -= n
		idx = (idx + n) % r.capacity
	}
	r.readIdx = (r.readIdx + length) % r.capacity
	r.bufPTS = r.bufPTS.Add(r.ToPTS(length))
}

// Seek advances the cursor to pts. Seeking backward fails.
func (r *Ring) Seek(pts rational.Rational) error {
	if pts.Less(r.bufPTS) {
		return errors.NewOutOfRangeError("backward audio ring seek").WithDetails(map[string]interface{}{
			"pts":     pts.String(),
			"buf_pts": r.bufPTS.String(),
		})
	}
	r.SeekBytes(r.ToLength(pts.Sub(r.bufPTS)))
	return nil
}

// Reset empties the ring and re-anchors the cursor at pts
func (r *Ring) Reset(pts rational.Rational) {
	clear(r.data)
	r.readIdx = 0
	r.bufPTS = pts
}
