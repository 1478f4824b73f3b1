package hands

import (
	"math"
	"testing"

	"github.com/grainlab/sandtable/depth"
)

func testParams() Params {
	return Params{
		MaxFgDepth:         800,
		MaxDepthDist:       12,
		MinBlobSize:        40,
		MaxBlobSize:        100000,
		SnakeLength:        30,
		MaxCornerEnterDist: 20,
		MinCenterDist:      0.2,
		MinHandProbability: 0.1,
	}
}

// fillRect marks a rectangle of foreground pixels at the given depth.
func fillRect(f *depth.RawFrame, x0, y0, x1, y1 int, d uint16) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			f.Set(x, y, d)
		}
	}
}

// fillDisc marks a filled circle of foreground pixels.
func fillDisc(f *depth.RawFrame, cx, cy, r int, d uint16) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				f.Set(x, y, d)
			}
		}
	}
}

func TestUnionFindConnectsUShape(t *testing.T) {
	e := New(32, 32, depth.DefaultProjection(32, 32), testParams())
	raw := depth.NewRawFrame(32, 32)

	// Two vertical bars joined by a bottom bar: all spans must share a
	// root even though the tops are far apart.
	fillRect(raw, 2, 2, 5, 21, 500)
	fillRect(raw, 10, 2, 13, 21, 500)
	fillRect(raw, 2, 18, 13, 21, 500)

	e.raw.CopyFrom(raw)
	p := e.params.Load()
	e.buildSpans(p)

	if len(e.spans) == 0 {
		t.Fatal("expected spans")
	}
	root := e.find(0)
	for i := range e.spans {
		if got := e.find(int32(i)); got != root {
			t.Errorf("span %d (row %d): root %d, want %d", i, e.spans[i].y, got, root)
		}
	}

	if n := e.assignBlobIDs(p); n != 1 {
		t.Errorf("expected one blob, got %d", n)
	}
}

func TestDepthGapSplitsBlobs(t *testing.T) {
	e := New(16, 16, depth.DefaultProjection(16, 16), testParams())
	raw := depth.NewRawFrame(16, 16)

	// Column-overlapping regions at depths 200 and 500: the 300-unit gap
	// exceeds MaxDepthDist, so they must stay separate blobs.
	fillRect(raw, 2, 2, 14, 8, 200)
	fillRect(raw, 2, 8, 14, 14, 500)

	p := e.params.Load()
	p2 := *p
	p2.MinBlobSize = 10
	e.Configure(p2)
	e.raw.CopyFrom(raw)
	e.buildSpans(&p2)

	if n := e.assignBlobIDs(&p2); n != 2 {
		t.Errorf("expected two blobs across the depth gap, got %d", n)
	}
}

func TestBlobSizeBounds(t *testing.T) {
	p := testParams()
	p.MinBlobSize = 100
	p.MaxBlobSize = 200
	e := New(32, 32, depth.DefaultProjection(32, 32), p)
	raw := depth.NewRawFrame(32, 32)

	fillRect(raw, 1, 1, 5, 5, 500)    // 16 px, too small
	fillRect(raw, 8, 8, 20, 20, 500)  // 144 px, in range
	fillRect(raw, 1, 22, 31, 31, 500) // 270 px, too large

	e.raw.CopyFrom(raw)
	e.buildSpans(&p)
	if n := e.assignBlobIDs(&p); n != 1 {
		t.Errorf("expected exactly one size-qualified blob, got %d", n)
	}
}

func TestTraceBoundaryRectangle(t *testing.T) {
	const w, h = 16, 16
	img := make([]int32, w*h)
	for i := range img {
		img[i] = invalidBlob
	}
	// 6x4 rectangle at (3,5).
	for y := 5; y < 9; y++ {
		for x := 3; x < 9; x++ {
			img[y*w+x] = 0
		}
	}

	boundary := traceBoundary(img, w, h, 3, 5, 0, nil)

	// Perimeter of a 6x4 rectangle: 2*(6+4) - 4 pixels.
	if len(boundary) != 16 {
		t.Fatalf("expected 16 boundary pixels, got %d", len(boundary))
	}
	seen := map[point]bool{}
	for _, pt := range boundary {
		if img[pt.y*w+pt.x] != 0 {
			t.Fatalf("boundary point %v not in blob", pt)
		}
		if seen[pt] {
			t.Fatalf("boundary point %v visited twice", pt)
		}
		seen[pt] = true
	}
}

func TestTraceBoundaryThinBar(t *testing.T) {
	const w, h = 16, 16
	img := make([]int32, w*h)
	for i := range img {
		img[i] = invalidBlob
	}
	// 5x1 bar at (3,4): the walk goes out along the bar and retraces it.
	for x := 3; x < 8; x++ {
		img[4*w+x] = 0
	}

	boundary := traceBoundary(img, w, h, 3, 4, 0, nil)

	// One lap visits the end pixels once and the interior twice.
	if len(boundary) != 8 {
		t.Fatalf("expected 8 boundary points, got %d", len(boundary))
	}
	for _, pt := range boundary {
		if img[pt.y*w+pt.x] != 0 {
			t.Fatalf("boundary point %v not in blob", pt)
		}
	}
}

func TestFindCornersSkipsZeroChord(t *testing.T) {
	// A square with an out-and-back spike: the snake chord collapses to a
	// point where the boundary retraces the spike. With the entry distance
	// tightened below one pixel no real chord qualifies either, so nothing
	// may be reported.
	boundary := []point{
		{0, 0}, {1, 0}, {1, -1}, {1, 0}, {2, 0},
		{2, 1}, {2, 2}, {1, 2}, {0, 2}, {0, 1},
	}
	corners := findCorners(boundary, 3, 0.5, 0.1, nil)
	if len(corners) != 0 {
		t.Fatalf("zero-length chord produced %d corners", len(corners))
	}
}

func TestHandProbabilityUniformGeometryIsOne(t *testing.T) {
	tips := [4][2]float64{{0, 0}, {10, 0}, {20, 0}, {30, 0}}
	nooks := [3][2]float64{{5, 10}, {15, 10}, {25, 10}}

	prob, _ := scoreHand(tips, nooks, 500, depth.DefaultProjection(64, 64))
	if math.Abs(prob-1.0) > 1e-12 {
		t.Errorf("expected probability 1.0 for uniform geometry, got %g", prob)
	}
}

func TestHandProbabilityDropsWithSkew(t *testing.T) {
	tips := [4][2]float64{{0, 0}, {10, 0}, {20, 0}, {30, 0}}
	nooks := [3][2]float64{{5, 10}, {15, 10}, {25, 10}}
	prob0, _ := scoreHand(tips, nooks, 500, depth.DefaultProjection(64, 64))

	// Spread one tip: every affected ratio drops below one.
	tips[3] = [2]float64{45, 0}
	prob1, _ := scoreHand(tips, nooks, 500, depth.DefaultProjection(64, 64))

	if prob1 >= prob0 {
		t.Errorf("expected skewed geometry to score lower: %g >= %g", prob1, prob0)
	}
}

// synthesizeHand draws a four-finger silhouette: a palm disc with four
// upward bars. Returns the palm centroid.
func synthesizeHand(raw *depth.RawFrame, d uint16) (float64, float64) {
	const palmX, palmY, palmR = 160, 150, 40
	fillDisc(raw, palmX, palmY, palmR, d)
	for i := 0; i < 4; i++ {
		cx := palmX - 27 + 18*i
		fillRect(raw, cx-6, 55, cx+6, 120, d)
	}
	return palmX, palmY
}

func TestSyntheticHandDetected(t *testing.T) {
	const w, h = 320, 240
	proj := depth.DefaultProjection(w, h)
	p := testParams()
	p.MinBlobSize = 1000
	e := New(w, h, proj, p)

	raw := depth.NewRawFrame(w, h)
	palmX, palmY := synthesizeHand(raw, 500)

	list := e.ExtractOneFrame(raw)
	if len(list.Hands) != 1 {
		t.Fatalf("expected exactly one hand, got %d", len(list.Hands))
	}
	hand := list.Hands[0]

	// The palm center must land near the synthetic palm centroid. Compare
	// in camera space with a tolerance of a few pixels at the hand depth.
	want := proj.Unproject(palmX, palmY, 500)
	step := proj.Unproject(palmX+1, palmY, 500)
	pxTol := 6 * math.Abs(step[0]-want[0])

	dx := hand.Center[0] - want[0]
	dy := hand.Center[1] - want[1]
	if math.Sqrt(dx*dx+dy*dy) > pxTol {
		t.Errorf("palm center %v too far from %v (tol %g)", hand.Center, want, pxTol)
	}
	if hand.Radius <= 0 {
		t.Error("expected positive hand radius")
	}
}

func TestEmptyFrameYieldsNoHands(t *testing.T) {
	e := New(64, 64, depth.DefaultProjection(64, 64), testParams())
	list := e.ExtractOneFrame(depth.NewRawFrame(64, 64))
	if len(list.Hands) != 0 {
		t.Errorf("expected no hands in an empty frame, got %d", len(list.Hands))
	}
}

func TestVersionAdvances(t *testing.T) {
	e := New(16, 16, depth.DefaultProjection(16, 16), testParams())
	raw := depth.NewRawFrame(16, 16)
	v1 := e.ExtractOneFrame(raw).Version
	v2 := e.ExtractOneFrame(raw).Version
	if v2 <= v1 {
		t.Errorf("expected version to advance: %d then %d", v1, v2)
	}
}
