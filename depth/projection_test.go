package depth

import (
	"math"
	"testing"
)

func TestDefaultProjectionUnproject(t *testing.T) {
	proj := DefaultProjection(640, 480)

	// The optical center maps to the axis; depth scales linearly.
	p := proj.Unproject(319.5, 239.5, 1000)
	if math.Abs(p[0]) > 1e-9 || math.Abs(p[1]) > 1e-9 {
		t.Errorf("center ray = (%g, %g), want (0, 0)", p[0], p[1])
	}
	if math.Abs(p[2]-100) > 1e-9 {
		t.Errorf("z = %g, want 100", p[2])
	}

	// A pixel at the horizontal edge sits one focal length off axis.
	p = proj.Unproject(639.5, 239.5, 1000)
	if math.Abs(p[0]-100) > 1e-9 {
		t.Errorf("edge x = %g, want 100", p[0])
	}
}

func TestTransformPlaneMatchesUnproject(t *testing.T) {
	proj := DefaultProjection(640, 480)
	normal := [3]float64{0.2, -0.3, 0.93}
	offset := 95.0
	e := proj.TransformPlane(normal, offset)

	// The pulled-back equation must agree in sign and zero set with the
	// camera-space test n·p - offset at sampled pixels.
	for _, tc := range []struct{ x, y, d float64 }{
		{100, 100, 900},
		{320, 240, 1000},
		{600, 400, 1100},
		{10, 470, 950},
	} {
		p := proj.Unproject(tc.x, tc.y, tc.d)
		camSide := normal[0]*p[0] + normal[1]*p[1] + normal[2]*p[2] - offset
		depthSide := e[0]*(tc.x+0.5) + e[1]*(tc.y+0.5) + e[2]*tc.d + e[3]
		if math.Abs(camSide-depthSide) > 1e-6 {
			t.Errorf("pixel (%g,%g,d=%g): camera %g vs depth %g",
				tc.x, tc.y, tc.d, camSide, depthSide)
		}
	}
}

func TestNewProjectionRejectsBadLength(t *testing.T) {
	if _, err := NewProjection(make([]float64, 12)); err == nil {
		t.Error("12-element projection accepted")
	}
}

func TestPixelCorrection(t *testing.T) {
	var id *PixelCorrection
	if got := id.Correct(3, 500); got != 500 {
		t.Errorf("nil correction changed value: %g", got)
	}
	c := &PixelCorrection{
		Scale:  []float32{2, 0.5},
		Offset: []float32{10, -5},
	}
	if got := c.Correct(0, 100); got != 210 {
		t.Errorf("Correct(0) = %g, want 210", got)
	}
	if got := c.Correct(1, 100); got != 45 {
		t.Errorf("Correct(1) = %g, want 45", got)
	}
}

func TestLensDistortion(t *testing.T) {
	var id *LensDistortion
	if !id.IsIdentity() {
		t.Error("nil distortion not identity")
	}
	x, y := id.Undistort(12, 34)
	if x != 12 || y != 34 {
		t.Errorf("identity Undistort moved the point: (%g, %g)", x, y)
	}

	l := &LensDistortion{
		Kappa:  [3]float64{1e-7, 0, 0},
		Center: [2]float64{320, 240},
	}
	if l.IsIdentity() {
		t.Error("radial distortion reported as identity")
	}
	// The center is a fixed point; off-center points move radially outward
	// for positive kappa.
	x, y = l.Undistort(320, 240)
	if x != 320 || y != 240 {
		t.Errorf("center moved: (%g, %g)", x, y)
	}
	x, _ = l.Undistort(620, 240)
	if x <= 620 {
		t.Errorf("positive radial term pulled x inward: %g", x)
	}
}
