package media

import (
	"fmt"

	"github.com/zsiec/playout/internal/rational"
)

// Unit is one decoded chunk of a layer: a video frame or a block of audio
// samples. A unit is owned by whichever queue currently holds it.
type Unit struct {
	Kind     Kind
	PTS      rational.Rational // presentation time in seconds
	Duration rational.Rational
	LayerID  string

	// Data holds raw planes: per-channel sample planes for planar audio,
	// a single interleaved plane otherwise, or pixel planes for software video.
	Data [][]byte
	Size int

	// Audio geometry
	Audio   AudioSpec
	Samples int // samples per channel

	// Video geometry
	Frame Frame

	Method DecodeMethod
}

// NewAudioUnit creates an audio unit. Duration is derived from the sample count.
func NewAudioUnit(layerID string, pts rational.Rational, spec AudioSpec, samples int, data [][]byte) *Unit {
	size := 0
	for _, p := range data {
		size += len(p)
	}
	return &Unit{
		Kind:     KindAudio,
		PTS:      pts,
		Duration: rational.New(int64(samples), int64(spec.SampleRate)),
		LayerID:  layerID,
		Data:     data,
		Size:     size,
		Audio:    spec,
		Samples:  samples,
		Method:   DecodeSoftware,
	}
}

// NewVideoUnit creates a video unit around a decoded frame
func NewVideoUnit(layerID string, pts, duration rational.Rational, frame Frame) *Unit {
	u := &Unit{
		Kind:     KindVideo,
		PTS:      pts,
		Duration: duration,
		LayerID:  layerID,
		Frame:    frame,
		Method:   frame.Method(),
	}
	if sw, ok := frame.(*SoftwareFrame); ok {
		u.Data = sw.Planes
		u.Size = sw.Size()
	} else {
		geo := frame.Geometry()
		u.Size = geo.Format.FrameSize(geo.Width, geo.Height)
	}
	return u
}

// End returns the PTS just after the unit
func (u *Unit) End() rational.Rational {
	return u.PTS.Add(u.Duration)
}

// PlaneBytes returns the byte length of one audio channel plane
func (u *Unit) PlaneBytes() int {
	return u.Samples * u.Audio.Format.BytesPerSample()
}

// Validate checks that the payload matches the declared geometry
func (u *Unit) Validate() error {
	if u.LayerID == "" {
		return fmt.Errorf("unit has no layer id")
	}
	if u.PTS.Sign() < 0 {
		return fmt.Errorf("negative pts %s", u.PTS)
	}

	switch u.Kind {
	case KindAudio:
		if u.Audio.SampleRate <= 0 || u.Audio.Channels <= 0 {
			return fmt.Errorf("invalid audio spec %+v", u.Audio)
		}
		if u.Audio.Format.IsPlanar() {
			if len(u.Data) != u.Audio.Channels {
				return fmt.Errorf("planar audio has %d planes, want %d", len(u.Data), u.Audio.Channels)
			}
			for i, p := range u.Data {
				if len(p) < u.PlaneBytes() {
					return fmt.Errorf("plane %d has %d bytes, want %d", i, len(p), u.PlaneBytes())
				}
			}
		} else {
			if len(u.Data) != 1 {
				return fmt.Errorf("interleaved audio has %d planes, want 1", len(u.Data))
			}
			if want := u.PlaneBytes() * u.Audio.Channels; len(u.Data[0]) < want {
				return fmt.Errorf("interleaved plane has %d bytes, want %d", len(u.Data[0]), want)
			}
		}
	case KindVideo:
		if u.Frame == nil {
			return fmt.Errorf("video unit has no frame")
		}
	default:
		return fmt.Errorf("unknown media kind %d", u.Kind)
	}
	return nil
}

// String implements fmt.Stringer
func (u *Unit) String() string {
	return fmt.Sprintf("%s unit layer=%s pts=%s size=%d", u.Kind, u.LayerID, u.PTS, u.Size)
}
