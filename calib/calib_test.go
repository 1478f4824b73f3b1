package calib

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

const flatLayout = `(0.0, 0.0, 2.0), 20.0
(-2.0, -1.0, 10.0)
(2.0, -1.0, 10.0)
(-2.0, 1.0, 10.0)
(2.0, 1.0, 10.0)
`

func TestParseBoxLayout(t *testing.T) {
	l, err := ParseBoxLayout(strings.NewReader(flatLayout))
	if err != nil {
		t.Fatal(err)
	}

	want := BoxLayout{
		Base: Plane{Normal: [3]float64{0, 0, 1}, Offset: 10},
		Corners: [4][3]float64{
			{-2, -1, 10},
			{2, -1, 10},
			{-2, 1, 10},
			{2, 1, 10},
		},
	}
	if diff := cmp.Diff(want, *l); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBoxLayoutErrors(t *testing.T) {
	cases := map[string]string{
		"too few lines": "(0, 0, 1), 10\n(0, 0, 0)\n",
		"bad plane":     "(0, 0), 10\n(0,0,0)\n(1,0,0)\n(0,1,0)\n(1,1,0)\n",
		"bad corner":    "(0, 0, 1), 10\n(0,0,x)\n(1,0,0)\n(0,1,0)\n(1,1,0)\n",
	}
	for name, input := range cases {
		if _, err := ParseBoxLayout(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUprightTransform(t *testing.T) {
	l, err := ParseBoxLayout(strings.NewReader(flatLayout))
	if err != nil {
		t.Fatal(err)
	}
	tr := l.UprightTransform()

	// All corners lie on the base plane, so they map to Z=0; corner 1 is
	// on the +X side.
	for i, c := range l.Corners {
		p := tr.Apply(c)
		if math.Abs(p[2]) > 1e-12 {
			t.Errorf("corner %d: Z = %g, want 0", i, p[2])
		}
	}
	if p := tr.Apply(l.Corners[1]); p[0] <= 0 {
		t.Errorf("corner 1 should map to +X, got %v", p)
	}

	// A point one unit along the normal sits at elevation 1.
	if p := tr.Apply([3]float64{0, 0, 11}); math.Abs(p[2]-1) > 1e-12 {
		t.Errorf("elevation = %g, want 1", p[2])
	}
}

func TestTransformRoundTrip(t *testing.T) {
	layout := `(1.0, 2.0, 2.0), 5.0
(-1.8, -1.1, 9.7)
(2.1, -0.9, 8.3)
(-2.2, 1.0, 10.4)
(1.9, 1.2, 9.1)
`
	l, err := ParseBoxLayout(strings.NewReader(layout))
	if err != nil {
		t.Fatal(err)
	}
	tr := l.UprightTransform()

	pts := [][3]float64{{0, 0, 0}, {1.5, -2.25, 7}, {-3, 4, 12.5}}
	for _, p := range pts {
		back := tr.ApplyInverse(tr.Apply(p))
		for k := 0; k < 3; k++ {
			if math.Abs(back[k]-p[k]) > 1e-9 {
				t.Errorf("round trip of %v gave %v", p, back)
				break
			}
		}
	}
}

func TestDomainAndCellSize(t *testing.T) {
	l, err := ParseBoxLayout(strings.NewReader(flatLayout))
	if err != nil {
		t.Fatal(err)
	}
	tr := l.UprightTransform()
	d := l.Domain(tr, -0.1, 0.5)

	want := Domain{Min: [2]float64{-2, -1}, Max: [2]float64{2, 1}, ZMin: -0.1, ZMax: 0.5}
	if diff := cmp.Diff(want, d, cmp.Comparer(func(a, b float64) bool {
		return math.Abs(a-b) < 1e-12
	})); diff != "" {
		t.Errorf("domain mismatch (-want +got):\n%s", diff)
	}

	dx, dy := d.CellSize(400, 200)
	if math.Abs(dx-0.01) > 1e-12 || math.Abs(dy-0.01) > 1e-12 {
		t.Errorf("cell size = (%g, %g), want (0.01, 0.01)", dx, dy)
	}

	if got := d.ClampZ(2.0); got != 0.5 {
		t.Errorf("ClampZ(2.0) = %g, want 0.5", got)
	}
	if got := d.ClampZ(-1.0); got != -0.1 {
		t.Errorf("ClampZ(-1.0) = %g, want -0.1", got)
	}
}

func TestParseColorMapByteFormat(t *testing.T) {
	input := `# shoreline palette
-10 0 0 128
0 0 100 200
10 200 180 120
`
	cm, err := ParseColorMap(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []ColorEntry{
		{Elevation: -10, Color: [4]uint8{0, 0, 128, 255}},
		{Elevation: 0, Color: [4]uint8{0, 100, 200, 255}},
		{Elevation: 10, Color: [4]uint8{200, 180, 120, 255}},
	}
	if diff := cmp.Diff(want, cm.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestParseColorMapUnitFormat(t *testing.T) {
	input := "0,0.0,0.0,1.0\n1,1.0,1.0,1.0\n"
	cm, err := ParseColorMap(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := []ColorEntry{
		{Elevation: 0, Color: [4]uint8{0, 0, 255, 255}},
		{Elevation: 1, Color: [4]uint8{255, 255, 255, 255}},
	}
	if diff := cmp.Diff(want, cm.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestColorMapRejectsNonIncreasing(t *testing.T) {
	input := "0 0 0 0\n10 50 50 50\n10 90 90 90\n"
	if _, err := ParseColorMap(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for non-increasing elevations")
	}
}

func TestColorMapSample(t *testing.T) {
	cm := &ColorMap{Entries: []ColorEntry{
		{Elevation: 0, Color: [4]uint8{0, 0, 0, 255}},
		{Elevation: 10, Color: [4]uint8{100, 200, 40, 255}},
	}}

	if got := cm.Sample(5); got != [4]uint8{50, 100, 20, 255} {
		t.Errorf("Sample(5) = %v", got)
	}
	if got := cm.Sample(-5); got != cm.Entries[0].Color {
		t.Errorf("Sample below range = %v", got)
	}
	if got := cm.Sample(50); got != cm.Entries[1].Color {
		t.Errorf("Sample above range = %v", got)
	}
}

func TestDefaultColorMapIsValid(t *testing.T) {
	cm := DefaultColorMap()
	for i := 1; i < len(cm.Entries); i++ {
		if cm.Entries[i].Elevation <= cm.Entries[i-1].Elevation {
			t.Fatalf("default map not increasing at entry %d", i)
		}
	}
	lo, hi := cm.Range()
	if lo >= hi {
		t.Errorf("degenerate range [%g, %g]", lo, hi)
	}
}

func TestProjectorTransformRoundTrip(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i) * 0.5
	}
	m := mat.NewDense(4, 4, vals)

	var buf bytes.Buffer
	if err := WriteProjectorTransform(&buf, m); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 16*8 {
		t.Fatalf("expected 128 bytes, got %d", buf.Len())
	}

	got, err := ReadProjectorTransform(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(m, got) {
		t.Errorf("round trip mismatch:\n%v", mat.Formatted(got))
	}
}
