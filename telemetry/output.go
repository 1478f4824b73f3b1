package telemetry

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
)

// Output writes window stats to a CSV file, header first, rows appended.
type Output struct {
	file          *os.File
	headerWritten bool
}

// NewOutput creates the stats CSV file. Returns nil if path is empty
// (telemetry disabled); nil receivers are safe to use.
func NewOutput(path string) (*Output, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating stats file: %w", err)
	}
	return &Output{file: f}, nil
}

// Write appends one stats record.
func (o *Output) Write(stats WindowStats) error {
	if o == nil {
		return nil
	}
	records := []WindowStats{stats}
	if !o.headerWritten {
		if err := gocsv.Marshal(records, o.file); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		o.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, o.file); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (o *Output) Close() error {
	if o == nil {
		return nil
	}
	return o.file.Close()
}

// WriteGridCSV dumps a row-major float grid as CSV, one grid row per
// line. Used for bathymetry snapshots.
func WriteGridCSV(path string, data []float32, w, h int) error {
	if len(data) != w*h {
		return fmt.Errorf("grid size mismatch: %d values for %dx%d", len(data), w, h)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating grid file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 0, w*16)
	for y := 0; y < h; y++ {
		buf = buf[:0]
		for x := 0; x < w; x++ {
			if x > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendFloat(buf, float64(data[y*w+x]), 'g', 6, 32)
		}
		buf = append(buf, '\n')
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("writing grid file: %w", err)
		}
	}
	return nil
}
