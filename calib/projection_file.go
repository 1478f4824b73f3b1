package calib

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ReadProjectorTransform reads the binary projector transform: 16 IEEE-754
// float64 values, row-major, little-endian, forming an opaque 4x4 matrix
// consumed by the rendering layer.
func ReadProjectorTransform(r io.Reader) (*mat.Dense, error) {
	vals := make([]float64, 16)
	if err := binary.Read(r, binary.LittleEndian, vals); err != nil {
		return nil, fmt.Errorf("reading projector transform: %w", err)
	}
	return mat.NewDense(4, 4, vals), nil
}

// LoadProjectorTransform reads a projector transform file.
func LoadProjectorTransform(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening projector transform: %w", err)
	}
	defer f.Close()
	return ReadProjectorTransform(f)
}

// WriteProjectorTransform writes the matrix in the same binary layout.
func WriteProjectorTransform(w io.Writer, m *mat.Dense) error {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return fmt.Errorf("projector transform must be 4x4, got %dx%d", r, c)
	}
	vals := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		vals = append(vals, m.RawRowView(i)...)
	}
	if err := binary.Write(w, binary.LittleEndian, vals); err != nil {
		return fmt.Errorf("writing projector transform: %w", err)
	}
	return nil
}
