package decoder

import (
	"context"

	"github.com/zsiec/playout/internal/media"
)

// Result is the outcome of a single decode call
type Result int

const (
	ResultOK Result = iota
	ResultError
	ResultEOS
	ResultLayerEOF
	ResultLayerEnded
	ResultStreamEnded
	ResultAtomEnded
	ResultAgain
	ResultSkipped
)

// String returns the string representation of Result
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultEOS:
		return "eos"
	case ResultLayerEOF:
		return "layer_eof"
	case ResultLayerEnded:
		return "layer_ended"
	case ResultStreamEnded:
		return "stream_ended"
	case ResultAtomEnded:
		return "atom_ended"
	case ResultAgain:
		return "again"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Transient reports whether the loop should keep decoding after r
func (r Result) Transient() bool {
	switch r {
	case ResultLayerEOF, ResultLayerEnded, ResultStreamEnded, ResultAtomEnded, ResultAgain, ResultSkipped:
		return true
	}
	return false
}

// Decoder produces decoded units. The unit is only set with ResultOK; the
// layer id names the layer the result belongs to.
type Decoder interface {
	Decode(ctx context.Context) (Result, *media.Unit, string)
}

// VideoSink accepts decoded video frames
type VideoSink interface {
	Enqueue(u *media.Unit) error
	Ready() bool
}

// AudioSink accepts decoded audio units
type AudioSink interface {
	Enqueue(u *media.Unit) error
	WriteReady() bool
}
