// Package telemetry aggregates pipeline statistics over fixed time
// windows and writes them as CSV.
package telemetry

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated pipeline statistics for one time window.
type WindowStats struct {
	WindowEnd   float64 `csv:"window_end"` // Seconds since collector start
	Frames      int     `csv:"frames"`     // Display frames in the window
	DepthFrames int     `csv:"depth_frames"`
	HandFrames  int     `csv:"hand_frames"`
	HandsSeen   int     `csv:"hands_seen"`

	SimSteps   int     `csv:"sim_steps"`
	SimTime    float64 `csv:"sim_time"` // Simulated seconds advanced
	StepMean   float64 `csv:"step_mean"`
	StepMin    float64 `csv:"step_min"`
	StepP90    float64 `csv:"step_p90"`
	StepBudget float64 `csv:"step_budget_frac"` // Fraction of frames hitting the step cap

	TickMeanMS float64 `csv:"tick_mean_ms"` // Solver wall time per display frame
	TickMaxMS  float64 `csv:"tick_max_ms"`

	WaterVolume float64 `csv:"water_volume"` // Sum of h over the grid at window end
}

// Collector accumulates per-frame samples and emits WindowStats once the
// configured window has elapsed. Main-thread only.
type Collector struct {
	window time.Duration
	start  time.Time
	open   time.Time

	cur       WindowStats
	stepSizes []float64
	tickMS    []float64
}

// NewCollector creates a collector with the given window length.
func NewCollector(window time.Duration) *Collector {
	now := time.Now()
	return &Collector{window: window, start: now, open: now}
}

// Frame records one display frame's worth of pipeline activity.
func (c *Collector) Frame(depthAdvanced, handsAdvanced bool, hands int) {
	c.cur.Frames++
	if depthAdvanced {
		c.cur.DepthFrames++
	}
	if handsAdvanced {
		c.cur.HandFrames++
	}
	c.cur.HandsSeen += hands
}

// Steps records the solver work done in one display frame.
func (c *Collector) Steps(steps int, advanced float64, capped bool, wall time.Duration) {
	c.cur.SimSteps += steps
	c.cur.SimTime += advanced
	if steps > 0 {
		c.stepSizes = append(c.stepSizes, advanced/float64(steps))
	}
	if capped {
		c.cur.StepBudget++
	}
	c.tickMS = append(c.tickMS, float64(wall)/float64(time.Millisecond))
}

// Flush closes the current window if it has elapsed and returns its
// stats. The waterVolume sample is taken by the caller at flush time.
func (c *Collector) Flush(waterVolume float64) (WindowStats, bool) {
	now := time.Now()
	if now.Sub(c.open) < c.window {
		return WindowStats{}, false
	}
	out := c.cur
	out.WindowEnd = now.Sub(c.start).Seconds()
	out.WaterVolume = waterVolume
	if out.Frames > 0 {
		out.StepBudget /= float64(out.Frames)
	}
	if len(c.stepSizes) > 0 {
		sort.Float64s(c.stepSizes)
		out.StepMean = stat.Mean(c.stepSizes, nil)
		out.StepMin = c.stepSizes[0]
		out.StepP90 = stat.Quantile(0.9, stat.Empirical, c.stepSizes, nil)
	}
	if len(c.tickMS) > 0 {
		out.TickMeanMS = stat.Mean(c.tickMS, nil)
		for _, v := range c.tickMS {
			if v > out.TickMaxMS {
				out.TickMaxMS = v
			}
		}
	}

	c.cur = WindowStats{}
	c.stepSizes = c.stepSizes[:0]
	c.tickMS = c.tickMS[:0]
	c.open = now
	return out, true
}
