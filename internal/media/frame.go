package media

// Geometry describes the pixel layout of a frame
type Geometry struct {
	Width  int
	Height int
	Format PixelFormat
}

// Frame is a decoded picture. Implementations are SoftwareFrame (CPU planes)
// and HardwareFrame (a surface owned by a decoder device pool).
type Frame interface {
	Geometry() Geometry
	Method() DecodeMethod
	// Attach binds backend-specific context (device handle, render target).
	Attach(ctx any)
	Context() any
}

// SoftwareFrame holds pixel planes in system memory
type SoftwareFrame struct {
	Geo     Geometry
	Planes  [][]byte
	Strides []int
	ctx     any
}

// NewSoftwareFrame allocates tightly packed planes for the given geometry
func NewSoftwareFrame(geo Geometry) *SoftwareFrame {
	f := &SoftwareFrame{Geo: geo}
	switch geo.Format {
	case PixelFormatI420:
		cw, ch := (geo.Width+1)/2, (geo.Height+1)/2
		f.Planes = [][]byte{make([]byte, geo.Width*geo.Height), make([]byte, cw*ch), make([]byte, cw*ch)}
		f.Strides = []int{geo.Width, cw, cw}
	case PixelFormatNV12:
		cw, ch := (geo.Width+1)/2, (geo.Height+1)/2
		f.Planes = [][]byte{make([]byte, geo.Width*geo.Height), make([]byte, 2*cw*ch)}
		f.Strides = []int{geo.Width, 2 * cw}
	case PixelFormatRGBA:
		f.Planes = [][]byte{make([]byte, geo.Width*geo.Height*4)}
		f.Strides = []int{geo.Width * 4}
	}
	return f
}

func (f *SoftwareFrame) Geometry() Geometry   { return f.Geo }
func (f *SoftwareFrame) Method() DecodeMethod { return DecodeSoftware }
func (f *SoftwareFrame) Attach(ctx any)       { f.ctx = ctx }
func (f *SoftwareFrame) Context() any         { return f.ctx }

// Size returns the total byte size of all planes
func (f *SoftwareFrame) Size() int {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	return n
}

// HardwareFrame references a decoder surface. The pixel data never leaves
// the device, so its queue cost is counted in surfaces rather than bytes.
type HardwareFrame struct {
	Geo     Geometry
	Device  string
	Surface uint32 // index into the device surface pool
	ctx     any
}

func (f *HardwareFrame) Geometry() Geometry   { return f.Geo }
func (f *HardwareFrame) Method() DecodeMethod { return DecodeHardware }
func (f *HardwareFrame) Attach(ctx any)       { f.ctx = ctx }
func (f *HardwareFrame) Context() any         { return f.ctx }
