package calib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ColorEntry is one control point of an elevation color map.
type ColorEntry struct {
	Elevation float64
	Color     [4]uint8
}

// ColorMap maps elevation to color by piecewise-linear interpolation over
// strictly increasing control points.
type ColorMap struct {
	Entries []ColorEntry
}

// ParseColorMap reads an elevation color map. Two row formats are accepted:
// whitespace-separated "<elev> <r> <g> <b>" with channels in 0..255, or
// comma-separated "<elev>,<r>,<g>,<b>" with channels in 0..1. Blank lines
// and lines starting with # are skipped.
func ParseColorMap(r io.Reader) (*ColorMap, error) {
	sc := bufio.NewScanner(r)
	cm := &ColorMap{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var entry ColorEntry
		var err error
		if strings.Contains(line, ",") {
			entry, err = parseUnitRow(line)
		} else {
			entry, err = parseByteRow(line)
		}
		if err != nil {
			return nil, fmt.Errorf("color map line %d: %w", lineNo, err)
		}
		if n := len(cm.Entries); n > 0 && entry.Elevation <= cm.Entries[n-1].Elevation {
			return nil, fmt.Errorf("color map line %d: elevation %g not increasing", lineNo, entry.Elevation)
		}
		cm.Entries = append(cm.Entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading color map: %w", err)
	}
	if len(cm.Entries) < 2 {
		return nil, fmt.Errorf("color map: need at least 2 entries, got %d", len(cm.Entries))
	}
	return cm, nil
}

// LoadColorMap reads and parses a color map file.
func LoadColorMap(path string) (*ColorMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening color map: %w", err)
	}
	defer f.Close()
	return ParseColorMap(f)
}

func parseByteRow(line string) (ColorEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return ColorEntry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	elev, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return ColorEntry{}, fmt.Errorf("elevation %q: %w", fields[0], err)
	}
	e := ColorEntry{Elevation: elev, Color: [4]uint8{0, 0, 0, 255}}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(fields[1+i], 10, 8)
		if err != nil {
			return ColorEntry{}, fmt.Errorf("channel %q: %w", fields[1+i], err)
		}
		e.Color[i] = uint8(v)
	}
	return e, nil
}

func parseUnitRow(line string) (ColorEntry, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return ColorEntry{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return ColorEntry{}, fmt.Errorf("value %q: %w", f, err)
		}
		vals[i] = v
	}
	e := ColorEntry{Elevation: vals[0], Color: [4]uint8{0, 0, 0, 255}}
	for i := 0; i < 3; i++ {
		c := vals[1+i]
		if c < 0 || c > 1 {
			return ColorEntry{}, fmt.Errorf("channel %g out of [0,1]", c)
		}
		e.Color[i] = uint8(c*255 + 0.5)
	}
	return e, nil
}

// Sample interpolates the color at an elevation, clamping outside the
// control point range.
func (cm *ColorMap) Sample(elev float64) [4]uint8 {
	entries := cm.Entries
	if elev <= entries[0].Elevation {
		return entries[0].Color
	}
	last := entries[len(entries)-1]
	if elev >= last.Elevation {
		return last.Color
	}
	hi := 1
	for entries[hi].Elevation < elev {
		hi++
	}
	lo := entries[hi-1]
	t := (elev - lo.Elevation) / (entries[hi].Elevation - lo.Elevation)
	var out [4]uint8
	for k := 0; k < 4; k++ {
		a, b := float64(lo.Color[k]), float64(entries[hi].Color[k])
		out[k] = uint8(a + (b-a)*t + 0.5)
	}
	return out
}

// Range returns the elevation span covered by the control points.
func (cm *ColorMap) Range() (float64, float64) {
	return cm.Entries[0].Elevation, cm.Entries[len(cm.Entries)-1].Elevation
}

// DefaultColorMap is the built-in topographic palette used when no color
// map file is configured: deep water blues below zero through shoreline
// greens to mountain browns and snow.
func DefaultColorMap() *ColorMap {
	return &ColorMap{Entries: []ColorEntry{
		{Elevation: -40, Color: [4]uint8{0, 0, 80, 255}},
		{Elevation: -20, Color: [4]uint8{0, 30, 100, 255}},
		{Elevation: -10, Color: [4]uint8{0, 50, 120, 255}},
		{Elevation: -5, Color: [4]uint8{0, 80, 150, 255}},
		{Elevation: 0, Color: [4]uint8{0, 100, 200, 255}},
		{Elevation: 0.25, Color: [4]uint8{50, 120, 50, 255}},
		{Elevation: 5, Color: [4]uint8{110, 160, 70, 255}},
		{Elevation: 10, Color: [4]uint8{160, 170, 80, 255}},
		{Elevation: 20, Color: [4]uint8{160, 130, 70, 255}},
		{Elevation: 30, Color: [4]uint8{140, 100, 60, 255}},
		{Elevation: 40, Color: [4]uint8{190, 190, 190, 255}},
		{Elevation: 50, Color: [4]uint8{255, 255, 255, 255}},
	}}
}
