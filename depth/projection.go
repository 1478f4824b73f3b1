package depth

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PixelCorrection converts a raw quantized depth value to a corrected one.
// Each pixel carries an affine (scale, offset) pair supplied with the camera
// intrinsics; the identity correction leaves raw values untouched.
type PixelCorrection struct {
	Scale, Offset []float32 // per pixel, row-major; nil means identity
}

// Correct applies the correction for pixel index i.
func (c *PixelCorrection) Correct(i int, v float32) float32 {
	if c == nil || c.Scale == nil {
		return v
	}
	return v*c.Scale[i] + c.Offset[i]
}

// LensDistortion holds radial distortion coefficients for the depth lens,
// applied to pixel centers when building template vertex grids. Zero values
// mean an ideal lens.
type LensDistortion struct {
	Kappa  [3]float64 // radial terms
	Rho    [2]float64 // tangential terms
	Center [2]float64 // distortion center in pixel coordinates
}

// IsIdentity reports whether the distortion is a no-op.
func (l *LensDistortion) IsIdentity() bool {
	return l == nil || (l.Kappa == [3]float64{} && l.Rho == [2]float64{})
}

// Undistort maps a distorted pixel position to the corrected one.
func (l *LensDistortion) Undistort(x, y float64) (float64, float64) {
	if l.IsIdentity() {
		return x, y
	}
	dx := x - l.Center[0]
	dy := y - l.Center[1]
	r2 := dx*dx + dy*dy
	radial := 1 + r2*(l.Kappa[0]+r2*(l.Kappa[1]+r2*l.Kappa[2]))
	ux := dx*radial + 2*l.Rho[0]*dx*dy + l.Rho[1]*(r2+2*dx*dx)
	uy := dy*radial + l.Rho[0]*(r2+2*dy*dy) + 2*l.Rho[1]*dx*dy
	return l.Center[0] + ux, l.Center[1] + uy
}

// Projection is the 4x4 projective map from depth-image space
// (x+0.5, y+0.5, d, 1) to camera space.
type Projection struct {
	m *mat.Dense // 4x4
}

// NewProjection builds a projection from 16 row-major doubles.
func NewProjection(elems []float64) (*Projection, error) {
	if len(elems) != 16 {
		return nil, fmt.Errorf("projection needs 16 elements, got %d", len(elems))
	}
	return &Projection{m: mat.NewDense(4, 4, elems)}, nil
}

// DefaultProjection returns intrinsics for an ideal sensor at 90 degree
// horizontal field of view with depth mapped linearly to centimeters. The
// lateral scale is fixed at the 1 m working depth of the synthetic rig, so
// x = (px-cx)/fx * 100 cm independent of d. Used by synthetic sources and
// tests.
func DefaultProjection(w, h int) *Projection {
	fx := float64(w) / 2
	cx := float64(w) / 2
	cy := float64(h) / 2
	return &Projection{m: mat.NewDense(4, 4, []float64{
		100 / fx, 0, 0, -100 * cx / fx,
		0, 100 / fx, 0, -100 * cy / fx,
		0, 0, 0.1, 0,
		0, 0, 0, 1,
	})}
}

// Unproject maps a depth pixel center and depth value to camera space.
func (p *Projection) Unproject(x, y, d float64) [3]float64 {
	v := mat.NewVecDense(4, []float64{x + 0.5, y + 0.5, d, 1})
	var out mat.VecDense
	out.MulVec(p.m, v)
	w := out.AtVec(3)
	return [3]float64{out.AtVec(0) / w, out.AtVec(1) / w, out.AtVec(2) / w}
}

// TransformPlane pulls a camera-space half-space n·p >= o back into
// depth-image space. The returned equation is evaluated as
// e[0]*(x+0.5) + e[1]*(y+0.5) + e[2]*d + e[3] >= 0 on corrected depth values.
func (p *Projection) TransformPlane(normal [3]float64, offset float64) [4]float64 {
	h := mat.NewVecDense(4, []float64{normal[0], normal[1], normal[2], -offset})
	var out mat.VecDense
	out.MulVec(p.m.T(), h)
	return [4]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2), out.AtVec(3)}
}

// Mat returns the underlying matrix.
func (p *Projection) Mat() *mat.Dense {
	return p.m
}

// EvalPlane evaluates a depth-space plane equation at a pixel center.
func EvalPlane(e [4]float64, x, y int, d float64) float64 {
	return e[0]*(float64(x)+0.5) + e[1]*(float64(y)+0.5) + e[2]*d + e[3]
}
