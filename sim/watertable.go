package sim

import (
	"log/slog"

	"github.com/grainlab/sandtable/depth"
)

// RenderFunc paints a water-depth change into the source accumulator for
// one tick of length dt. Values are in world units of depth per unit
// water speed.
type RenderFunc func(r *Grid, dt float32)

// WaterTable couples the solver to the live bathymetry: it resamples
// filtered depth frames into the terrain, preserves water depth across
// terrain changes, composites registered water sources, and runs the step
// budget loop for the orchestrator.
type WaterTable struct {
	solver *Solver
	bath   *Bathymetry
	res    *Resampler

	r        *Grid // per-tick source/sink accumulator
	deposit  float32
	speed    float64
	maxSteps int

	renderFuncs map[int]RenderFunc
	nextHandle  int

	pendingBath []float32
	haveBath    bool

	lastDepthVersion uint64
	sawDepth         bool
}

// NewWaterTable wires a solver, its bathymetry, and the frame resampler.
func NewWaterTable(solver *Solver, bath *Bathymetry, res *Resampler, speed float64, maxSteps int) *WaterTable {
	return &WaterTable{
		solver:      solver,
		bath:        bath,
		res:         res,
		r:           NewGrid(solver.w, solver.h),
		speed:       speed,
		maxSteps:    maxSteps,
		renderFuncs: map[int]RenderFunc{},
	}
}

// Solver exposes the underlying solver for rendering and tests.
func (t *WaterTable) Solver() *Solver { return t.solver }

// Bathymetry exposes the current terrain.
func (t *WaterTable) Bathymetry() *Bathymetry { return t.bath }

// SetSpeed updates the simulation speed multiplier.
func (t *WaterTable) SetSpeed(v float64) {
	if v > 0 {
		t.speed = v
	}
}

// Speed returns the simulation speed multiplier.
func (t *WaterTable) Speed() float64 { return t.speed }

// SetMaxSteps bounds the per-frame step count.
func (t *WaterTable) SetMaxSteps(n int) {
	if n > 0 {
		t.maxSteps = n
	}
}

// SetAttenuation updates the per-second momentum loss fraction.
func (t *WaterTable) SetAttenuation(a float64) {
	if a >= 0 && a < 1 {
		t.solver.p.Attenuation = a
	}
}

// SetDeposit sets the uniform water deposit rate (depth per second);
// negative values evaporate.
func (t *WaterTable) SetDeposit(rate float32) {
	t.deposit = rate
}

// UpdateBathymetry resamples a filtered frame into the back terrain slot,
// adjusts the water surface so depth is preserved where possible, and
// swaps. Returns whether the terrain changed; frames already seen by
// version are skipped.
func (t *WaterTable) UpdateBathymetry(frame *depth.FilteredFrame, version uint64) bool {
	if t.sawDepth && version == t.lastDepthVersion {
		return false
	}
	t.lastDepthVersion = version
	t.sawDepth = true

	t.res.Resample(frame, t.bath.Back())
	t.adaptQ()
	t.bath.Swap()

	if t.pendingBath != nil {
		copy(t.pendingBath, t.bath.Current().Data)
		t.pendingBath = nil
		t.haveBath = true
	}
	return true
}

// adaptQ shifts each cell's water surface by the terrain change so the
// water depth is preserved, clamping to dry where the new ground rises
// above the old surface. Runs against the back slot before the swap.
func (t *WaterTable) adaptQ() {
	old := t.bath.Current()
	fresh := t.bath.Back()
	q := t.solver.cur
	for y := 0; y < t.solver.h; y++ {
		for x := 0; x < t.solver.w; x++ {
			i := y*t.solver.w + x
			oldB := cellMean(old, x, y)
			newB := cellMean(fresh, x, y)
			w := q.Sw[i] + (newB - oldB)
			// Zero depth is dry; a dry cell carries no discharge.
			if w <= newB {
				w = newB
				q.Hu[i] = 0
				q.Hv[i] = 0
			}
			q.Sw[i] = w
		}
	}
}

// cellMean averages the four clamped corner vertices of a cell on an
// arbitrary vertex grid slot.
func cellMean(g *Grid, x, y int) float32 {
	v := func(a, c int) float32 {
		return g.Data[clampi(c, 0, g.H-1)*g.W+clampi(a, 0, g.W-1)]
	}
	return 0.25 * (v(x-1, y-1) + v(x, y-1) + v(x-1, y) + v(x, y))
}

// RequestBathymetry queues a one-shot readback of the next updated terrain
// into the caller's buffer. Returns false while another request is
// pending; the data is ready once HaveBathymetry reports true.
func (t *WaterTable) RequestBathymetry(buf []float32) bool {
	if t.pendingBath != nil {
		return false
	}
	g := t.bath.Current()
	if len(buf) != len(g.Data) {
		slog.Warn("bathymetry request buffer size mismatch", "want", len(g.Data), "got", len(buf))
		return false
	}
	t.pendingBath = buf
	t.haveBath = false
	return true
}

// HaveBathymetry reports whether the last requested readback completed.
func (t *WaterTable) HaveBathymetry() bool { return t.haveBath }

// AddRenderFunction registers a water source painter and returns a handle
// for removal.
func (t *WaterTable) AddRenderFunction(f RenderFunc) int {
	h := t.nextHandle
	t.nextHandle++
	t.renderFuncs[h] = f
	return h
}

// RemoveRenderFunction unregisters a previously added painter.
func (t *WaterTable) RemoveRenderFunction(handle int) {
	delete(t.renderFuncs, handle)
}

// RunSteps advances the simulation until the time budget is exhausted or
// the step cap is hit, compositing water sources after each step. Returns
// the steps taken and the simulated time.
func (t *WaterTable) RunSteps(budget float64) (int, float64) {
	const minBudget = 1e-9
	steps := 0
	advanced := 0.0
	for budget > minBudget && steps < t.maxSteps {
		dt := t.solver.Step(float32(budget))
		t.applySources(dt)
		budget -= float64(dt)
		advanced += float64(dt)
		steps++
	}
	return steps, advanced
}

// applySources composites the per-tick source accumulator into the water
// surface: the uniform deposit plus all registered painters scaled by the
// inverse simulation speed, floored at zero depth.
func (t *WaterTable) applySources(dt float32) {
	if len(t.renderFuncs) == 0 && t.deposit == 0 {
		return
	}
	t.r.Fill(0)
	for _, f := range t.renderFuncs {
		f(t.r, dt)
	}
	invSpeed := float32(1.0 / t.speed)
	base := t.deposit * dt
	q := t.solver.cur
	for y := 0; y < t.solver.h; y++ {
		for x := 0; x < t.solver.w; x++ {
			i := y*t.solver.w + x
			dh := t.r.Data[i]*invSpeed + base
			if dh == 0 {
				continue
			}
			w := q.Sw[i] + dh
			if b := t.solver.bath.CellB(x, y); w < b {
				w = b
			}
			q.Sw[i] = w
		}
	}
}

// Close stops the solver's worker pool.
func (t *WaterTable) Close() {
	t.solver.Close()
}
