// Package depth provides depth-camera frame types, the unprojection math that
// maps depth pixels into camera space, and the producer/consumer buffers the
// pipeline workers communicate through.
package depth

// Raw depth sample encoding. The sensor quantizes depth to 11 bits; the
// out-of-range token marks dropped or saturated pixels.
const (
	MaxValidDepth uint16 = 2047
	Invalid       uint16 = 2048
)

// RawFrame is one depth sample grid from the sensor. Immutable after
// publication; the version number increases monotonically.
type RawFrame struct {
	Width, Height int
	Version       uint64
	Pix           []uint16 // row-major, Width*Height, Invalid marks bad samples
}

// NewRawFrame allocates a frame with all pixels invalid.
func NewRawFrame(w, h int) *RawFrame {
	pix := make([]uint16, w*h)
	for i := range pix {
		pix[i] = Invalid
	}
	return &RawFrame{Width: w, Height: h, Pix: pix}
}

// At returns the raw sample at (x, y).
func (f *RawFrame) At(x, y int) uint16 {
	return f.Pix[y*f.Width+x]
}

// Set stores a raw sample at (x, y).
func (f *RawFrame) Set(x, y int, v uint16) {
	f.Pix[y*f.Width+x] = v
}

// CopyFrom copies pixels and version from src. Sizes must match.
func (f *RawFrame) CopyFrom(src *RawFrame) {
	copy(f.Pix, src.Pix)
	f.Version = src.Version
}

// FilteredFrame is a stabilized float-valued depth grid produced by the frame
// filter. Versions are strictly monotonic; consumers use them to skip stale
// uploads.
type FilteredFrame struct {
	Width, Height int
	Version       uint64
	Pix           []float32
}

// NewFilteredFrame allocates a zeroed filtered frame.
func NewFilteredFrame(w, h int) *FilteredFrame {
	return &FilteredFrame{Width: w, Height: h, Pix: make([]float32, w*h)}
}

// At returns the filtered value at (x, y).
func (f *FilteredFrame) At(x, y int) float32 {
	return f.Pix[y*f.Width+x]
}
