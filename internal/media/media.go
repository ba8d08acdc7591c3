package media

import (
	"fmt"
	"strings"
)

// Kind is the media type of a decoded unit
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// DecodeMethod tags how a unit was decoded
type DecodeMethod uint8

const (
	DecodeSoftware DecodeMethod = iota
	DecodeHardware              // surfaces come from a fixed hardware pool
)

// String returns the string representation of DecodeMethod
func (m DecodeMethod) String() string {
	switch m {
	case DecodeSoftware:
		return "software"
	case DecodeHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// ParseDecodeMethod parses "software" or "hardware"
func ParseDecodeMethod(s string) (DecodeMethod, error) {
	switch strings.ToLower(s) {
	case "software", "sw":
		return DecodeSoftware, nil
	case "hardware", "hw":
		return DecodeHardware, nil
	default:
		return DecodeSoftware, fmt.Errorf("unknown decode method %q", s)
	}
}

// SampleFormat is an audio sample layout
type SampleFormat uint8

const (
	SampleFormatS16  SampleFormat = iota // Signed 16-bit interleaved
	SampleFormatFLT                      // 32-bit float interleaved
	SampleFormatFLTP                     // 32-bit float planar, one buffer per channel
)

// String returns the string representation of SampleFormat
func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatFLT:
		return "flt"
	case SampleFormatFLTP:
		return "fltp"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of one sample of one channel
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatFLT, SampleFormatFLTP:
		return 4
	default:
		return 0
	}
}

// IsPlanar reports whether each channel has its own plane
func (f SampleFormat) IsPlanar() bool {
	return f == SampleFormatFLTP
}

// AudioSpec describes an audio stream layout
type AudioSpec struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// BytesPerSecond returns the byte rate of a single channel plane
func (s AudioSpec) BytesPerSecond() int64 {
	return int64(s.SampleRate) * int64(s.Format.BytesPerSample())
}

// PixelFormat represents video pixel formats
type PixelFormat uint8

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA                    // Packed RGBA, 4 bytes per pixel
)

// String returns the string representation of PixelFormat
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA:
		return 1
	default:
		return 0
	}
}

// FrameSize returns the byte size of one frame
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatI420, PixelFormatNV12:
		return width*height + 2*((width+1)/2)*((height+1)/2)
	case PixelFormatRGBA:
		return width * height * 4
	default:
		return 0
	}
}
