package game

import (
	"math"
	"strings"
	"testing"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/components"
	"github.com/grainlab/sandtable/depth"
	"github.com/grainlab/sandtable/sim"
)

const rainTestLayout = `(0, 0, 1), 100
(-5, -5, 100)
(5, -5, 100)
(-5, 5, 100)
(5, 5, 100)
`

// newRainTable builds a flat 8x8 water table with zero bathymetry for
// emitter tests.
func newRainTable(t *testing.T) *sim.WaterTable {
	t.Helper()
	const n = 8
	layout, err := calib.ParseBoxLayout(strings.NewReader(rainTestLayout))
	if err != nil {
		t.Fatal(err)
	}
	tr := layout.UprightTransform()
	domain := layout.Domain(tr, -1000, 1000)
	proj := depth.DefaultProjection(n, n)
	res := sim.NewResampler(proj, tr, domain, n, n, n, n)

	bath := sim.NewBathymetry(n, n)
	solver := sim.NewSolver(n, n, 1, 1, bath, sim.Params{
		Gravity: 9.81,
		Theta:   1.3,
		CFL:     0.25,
		Workers: 1,
	})
	table := sim.NewWaterTable(solver, bath, res, 1.0, 30)
	t.Cleanup(table.Close)
	return table
}

func TestEmitterLifetimeExpiry(t *testing.T) {
	table := newRainTable(t)
	reg := NewRainRegistry(table)
	defer reg.Close()

	reg.Spawn(4, 4, 1, 0.5, components.OriginHand, 0.3)
	reg.Spawn(2, 2, 1, 0.5, components.OriginManual, 0)

	if got := reg.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	reg.Update(0.2)
	if got := reg.Count(); got != 2 {
		t.Fatalf("Count after 0.2s = %d, want 2", got)
	}
	reg.Update(0.2)
	if got := reg.Count(); got != 1 {
		t.Fatalf("Count after 0.4s = %d, want 1 (persistent emitter only)", got)
	}
	// The persistent emitter never ages out.
	reg.Update(100)
	if got := reg.Count(); got != 1 {
		t.Fatalf("Count after 100s = %d, want 1", got)
	}
}

func TestReplaceHandEmitters(t *testing.T) {
	table := newRainTable(t)
	reg := NewRainRegistry(table)
	defer reg.Close()

	reg.Spawn(1, 1, 1, 0.5, components.OriginManual, 0)
	reg.ReplaceHandEmitters([][2]float32{{2, 2}, {5, 5}}, 1, 0.5, 0.5)
	if got := reg.Count(); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}

	// A new detection replaces all hand emitters, leaving manual ones alone.
	reg.ReplaceHandEmitters([][2]float32{{3, 3}}, 1, 0.5, 0.5)
	if got := reg.Count(); got != 2 {
		t.Fatalf("Count after replace = %d, want 2", got)
	}
	reg.ReplaceHandEmitters(nil, 1, 0.5, 0.5)
	if got := reg.Count(); got != 1 {
		t.Fatalf("Count after empty replace = %d, want 1", got)
	}
}

func TestEmitterPaintsDisk(t *testing.T) {
	table := newRainTable(t)
	reg := NewRainRegistry(table)
	defer reg.Close()

	reg.Spawn(4.5, 4.5, 1.2, 10, components.OriginManual, 0)
	steps, advanced := table.RunSteps(0.01)
	if steps != 1 {
		t.Fatalf("RunSteps = %d steps, want 1", steps)
	}

	q := table.Solver().State()
	center := float64(q.Sw[4*q.W+4])
	corner := float64(q.Sw[0])
	want := 10 * advanced
	if math.Abs(center-want) > 1e-4 {
		t.Errorf("center depth = %g, want %g", center, want)
	}
	if corner > 1e-6 {
		t.Errorf("corner depth = %g, want 0 (outside emitter radius)", corner)
	}
}

func TestGlobalRainToggle(t *testing.T) {
	table := newRainTable(t)
	reg := NewRainRegistry(table)
	defer reg.Close()

	reg.SetGlobalRain(true, 2)
	_, advanced := table.RunSteps(0.01)

	q := table.Solver().State()
	want := 2 * advanced
	for _, x := range []int{0, 3, 7} {
		got := float64(q.Sw[5*q.W+x])
		if math.Abs(got-want) > 1e-4 {
			t.Fatalf("depth at x=%d is %g, want %g", x, got, want)
		}
	}

	reg.SetGlobalRain(false, 2)
	if got := reg.Count(); got != 0 {
		t.Fatalf("Count after toggle off = %d, want 0", got)
	}
	before := q.Sw[5*q.W+3]
	table.RunSteps(0.001)
	after := table.Solver().State().Sw[5*q.W+3]
	if after > before+1e-5 {
		t.Errorf("depth rose from %g to %g with rain off", before, after)
	}
}

func TestDrainEmitterRemovesWater(t *testing.T) {
	table := newRainTable(t)
	reg := NewRainRegistry(table)
	defer reg.Close()

	q := table.Solver().State()
	for i := range q.Sw {
		q.Sw[i] = 0.2
	}
	reg.Spawn(4.5, 4.5, 1.2, -5, components.OriginManual, 0)
	table.RunSteps(0.005)

	q = table.Solver().State()
	center := q.Sw[4*q.W+4]
	far := q.Sw[1*q.W+1]
	if center >= far {
		t.Errorf("center depth %g not drained below far depth %g", center, far)
	}
	if center < 0 {
		t.Errorf("drain produced negative depth %g", center)
	}
}
