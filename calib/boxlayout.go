// Package calib loads the sandbox calibration artifacts: the box layout
// (base plane plus corner points), elevation color maps, and the projector
// transform matrix.
package calib

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Plane is an oriented plane in camera space, Normal·p = Offset.
type Plane struct {
	Normal [3]float64
	Offset float64
}

// Normalize scales the plane equation so the normal has unit length.
func (p *Plane) Normalize() {
	n := math.Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2])
	if n == 0 {
		return
	}
	p.Normal[0] /= n
	p.Normal[1] /= n
	p.Normal[2] /= n
	p.Offset /= n
}

// Eval returns the signed distance of a point from the plane, assuming a
// normalized equation.
func (p *Plane) Eval(pt [3]float64) float64 {
	return p.Normal[0]*pt[0] + p.Normal[1]*pt[1] + p.Normal[2]*pt[2] - p.Offset
}

// BoxLayout is the parsed box layout file: the sand surface base plane and
// the four corners of the sandbox in camera space.
type BoxLayout struct {
	Base    Plane
	Corners [4][3]float64
}

// ParseBoxLayout reads the box layout text format: line 1 holds the plane
// equation "(nx, ny, nz), offset", lines 2-5 hold the corner points
// "(x, y, z)" in camera space.
func ParseBoxLayout(r io.Reader) (*BoxLayout, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading box layout: %w", err)
	}
	if len(lines) < 5 {
		return nil, fmt.Errorf("box layout: expected 5 lines, got %d", len(lines))
	}

	var l BoxLayout
	vals, err := parseTuple(lines[0], 4)
	if err != nil {
		return nil, fmt.Errorf("box layout plane: %w", err)
	}
	l.Base.Normal = [3]float64{vals[0], vals[1], vals[2]}
	l.Base.Offset = vals[3]
	l.Base.Normalize()

	for i := 0; i < 4; i++ {
		vals, err := parseTuple(lines[1+i], 3)
		if err != nil {
			return nil, fmt.Errorf("box layout corner %d: %w", i, err)
		}
		l.Corners[i] = [3]float64{vals[0], vals[1], vals[2]}
	}
	return &l, nil
}

// LoadBoxLayout reads and parses a box layout file.
func LoadBoxLayout(path string) (*BoxLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening box layout: %w", err)
	}
	defer f.Close()
	return ParseBoxLayout(f)
}

// parseTuple extracts n floats from a line of the form "(a, b, c), d" or
// "(a, b, c)", tolerating arbitrary whitespace.
func parseTuple(line string, n int) ([]float64, error) {
	clean := strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(line)
	fields := strings.Fields(clean)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %d in %q", n, len(fields), line)
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", f, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// Transform is a rigid camera-to-upright-sandbox transform. Upright space
// has Z along the base plane normal and X along the long axis of the box.
type Transform struct {
	x, y, z, origin [3]float64
}

// UprightTransform derives the camera-to-upright transform from the layout:
// the origin is the plane-projected corner centroid, Z is the plane normal,
// and X runs from the midpoint of corners 0 and 2 toward the midpoint of
// corners 1 and 3.
func (l *BoxLayout) UprightTransform() *Transform {
	t := &Transform{z: l.Base.Normal}

	var centroid [3]float64
	for _, c := range l.Corners {
		for k := 0; k < 3; k++ {
			centroid[k] += c[k] * 0.25
		}
	}
	// Project the centroid onto the base plane.
	d := l.Base.Eval(centroid)
	for k := 0; k < 3; k++ {
		t.origin[k] = centroid[k] - d*t.z[k]
	}

	var xdir [3]float64
	for k := 0; k < 3; k++ {
		xdir[k] = (l.Corners[1][k]+l.Corners[3][k])*0.5 - (l.Corners[0][k]+l.Corners[2][k])*0.5
	}
	// Remove the out-of-plane component and normalize.
	dz := xdir[0]*t.z[0] + xdir[1]*t.z[1] + xdir[2]*t.z[2]
	for k := 0; k < 3; k++ {
		xdir[k] -= dz * t.z[k]
	}
	n := math.Sqrt(xdir[0]*xdir[0] + xdir[1]*xdir[1] + xdir[2]*xdir[2])
	for k := 0; k < 3; k++ {
		t.x[k] = xdir[k] / n
	}
	t.y = [3]float64{
		t.z[1]*t.x[2] - t.z[2]*t.x[1],
		t.z[2]*t.x[0] - t.z[0]*t.x[2],
		t.z[0]*t.x[1] - t.z[1]*t.x[0],
	}
	return t
}

// Apply maps a camera-space point into upright sandbox space.
func (t *Transform) Apply(p [3]float64) [3]float64 {
	var d [3]float64
	for k := 0; k < 3; k++ {
		d[k] = p[k] - t.origin[k]
	}
	return [3]float64{
		t.x[0]*d[0] + t.x[1]*d[1] + t.x[2]*d[2],
		t.y[0]*d[0] + t.y[1]*d[1] + t.y[2]*d[2],
		t.z[0]*d[0] + t.z[1]*d[1] + t.z[2]*d[2],
	}
}

// ApplyInverse maps an upright-space point back into camera space.
func (t *Transform) ApplyInverse(p [3]float64) [3]float64 {
	var out [3]float64
	for k := 0; k < 3; k++ {
		out[k] = t.origin[k] + t.x[k]*p[0] + t.y[k]*p[1] + t.z[k]*p[2]
	}
	return out
}

// Mat returns the transform as a homogeneous 4x4 matrix for the renderer.
func (t *Transform) Mat() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		t.x[0], t.x[1], t.x[2], -(t.x[0]*t.origin[0] + t.x[1]*t.origin[1] + t.x[2]*t.origin[2]),
		t.y[0], t.y[1], t.y[2], -(t.y[0]*t.origin[0] + t.y[1]*t.origin[1] + t.y[2]*t.origin[2]),
		t.z[0], t.z[1], t.z[2], -(t.z[0]*t.origin[0] + t.z[1]*t.origin[1] + t.z[2]*t.origin[2]),
		0, 0, 0, 1,
	})
}

// Domain is the rectangular simulation footprint in upright sandbox space,
// with the valid elevation band.
type Domain struct {
	Min, Max   [2]float64
	ZMin, ZMax float64
}

// Domain projects the four corners through the upright transform and takes
// their bounding rectangle; zmin and zmax bound valid elevations.
func (l *BoxLayout) Domain(t *Transform, zmin, zmax float64) Domain {
	d := Domain{
		Min:  [2]float64{math.Inf(1), math.Inf(1)},
		Max:  [2]float64{math.Inf(-1), math.Inf(-1)},
		ZMin: zmin,
		ZMax: zmax,
	}
	for _, c := range l.Corners {
		p := t.Apply(c)
		for k := 0; k < 2; k++ {
			d.Min[k] = math.Min(d.Min[k], p[k])
			d.Max[k] = math.Max(d.Max[k], p[k])
		}
	}
	return d
}

// CellSize returns the simulation cell extents for a grid of w by h cells.
func (d Domain) CellSize(w, h int) (float64, float64) {
	return (d.Max[0] - d.Min[0]) / float64(w), (d.Max[1] - d.Min[1]) / float64(h)
}

// ClampZ restricts an elevation to the domain's valid band.
func (d Domain) ClampZ(z float64) float64 {
	if z < d.ZMin {
		return d.ZMin
	}
	if z > d.ZMax {
		return d.ZMax
	}
	return z
}
