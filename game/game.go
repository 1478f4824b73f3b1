// Package game wires the sandbox pipeline together: depth source, frame
// filter and hand extractor workers, water table, rain emitters, renderers
// and the control pipe, driven once per display frame from the main thread.
package game

import (
	"fmt"
	"log/slog"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/mat"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/components"
	"github.com/grainlab/sandtable/config"
	"github.com/grainlab/sandtable/depth"
	"github.com/grainlab/sandtable/filter"
	"github.com/grainlab/sandtable/hands"
	"github.com/grainlab/sandtable/renderer"
	"github.com/grainlab/sandtable/sim"
	"github.com/grainlab/sandtable/telemetry"
)

// Game owns the whole pipeline for one sandbox session.
type Game struct {
	cfg *config.Config

	source    depth.Source
	filter    *filter.Filter
	extractor *hands.Extractor

	proj   *depth.Projection
	tr     *calib.Transform
	domain calib.Domain

	table *sim.WaterTable
	rain  *RainRegistry

	depthView *renderer.DepthImage
	surface   *renderer.SurfaceRenderer
	water     *renderer.WaterRenderer

	stats    *telemetry.Collector
	statsOut *telemetry.Output
	control  *Control

	paused    bool
	showPanel bool
	showDepth bool

	bathBuf     []float32
	bathPending bool

	lastHands uint64
}

// NewGame builds the pipeline from the loaded configuration. source is the
// raw-frame producer; headless skips all GPU-side construction.
func NewGame(source depth.Source, headless bool) (*Game, error) {
	cfg := config.Cfg()

	proj := depth.DefaultProjection(cfg.Depth.Width, cfg.Depth.Height)

	layout, err := loadLayout(cfg, proj)
	if err != nil {
		return nil, err
	}
	tr := layout.UprightTransform()
	domain := layout.Domain(tr, cfg.Filter.MinElevation, cfg.Filter.MaxElevation)

	gridW := cfg.Derived.GridW
	gridH := cfg.Derived.GridH
	dx, dy := domain.CellSize(gridW, gridH)

	res := sim.NewResampler(proj, tr, domain, cfg.Depth.Width, cfg.Depth.Height, gridW, gridH)
	res.SetLens(&depth.LensDistortion{
		Kappa:  cfg.Depth.Lens.Kappa,
		Rho:    cfg.Depth.Lens.Rho,
		Center: cfg.Depth.Lens.Center,
	})
	bath := sim.NewBathymetry(gridW, gridH)
	solver := sim.NewSolver(gridW, gridH, dx, dy, bath, sim.Params{
		Gravity:     float32(cfg.Water.Gravity),
		Theta:       float32(cfg.Water.Theta),
		CFL:         float32(cfg.Water.CFL),
		Attenuation: cfg.Water.Attenuation,
		DryBoundary: cfg.Water.DryBoundary,
		Workers:     cfg.Water.Workers,
	})
	table := sim.NewWaterTable(solver, bath, res, cfg.Water.Speed, cfg.Water.MaxSteps)
	table.SetDeposit(float32(-cfg.Rain.Evaporation))

	minPlane, maxPlane := filter.ValidElevationInterval(
		proj, layout.Base.Normal, layout.Base.Offset,
		cfg.Filter.MinElevation, cfg.Filter.MaxElevation)
	flt := filter.New(cfg.Depth.Width, cfg.Depth.Height, cfg.Filter.AveragingSlots, nil, filter.Params{
		MinValidSamples: uint32(cfg.Derived.MinValidSamples),
		MaxVariance:     cfg.Filter.MaxVariance,
		Hysteresis:      float32(cfg.Filter.Hysteresis),
		RetainValids:    cfg.Filter.RetainValids,
		InstableValue:   float32(cfg.Filter.InstableValue),
		SpatialFilter:   cfg.Filter.SpatialFilter,
		MinPlane:        minPlane,
		MaxPlane:        maxPlane,
	})
	extractor := hands.New(cfg.Depth.Width, cfg.Depth.Height, proj, hands.Params{
		MaxFgDepth:         cfg.Hands.MaxFgDepth,
		MaxDepthDist:       cfg.Hands.MaxDepthDist,
		MinBlobSize:        cfg.Hands.MinBlobSize,
		MaxBlobSize:        cfg.Hands.MaxBlobSize,
		SnakeLength:        cfg.Hands.SnakeLength,
		MaxCornerEnterDist: cfg.Hands.MaxCornerEnterDist,
		MinCenterDist:      cfg.Hands.MinCenterDist,
		MinHandProbability: cfg.Hands.MinHandProbability,
	})

	g := &Game{
		cfg:       cfg,
		source:    source,
		filter:    flt,
		extractor: extractor,
		proj:      proj,
		tr:        tr,
		domain:    domain,
		table:     table,
		stats:     telemetry.NewCollector(time.Duration(cfg.Telemetry.StatsWindow * float64(time.Second))),
	}
	g.rain = NewRainRegistry(table)

	if !headless {
		g.depthView = renderer.NewDepthImage(float32(domain.ZMin), float32(domain.ZMax))
		cmap, err := loadColorMap(cfg)
		if err != nil {
			return nil, err
		}
		g.surface = renderer.NewSurfaceRenderer(cmap, cfg.Render.ContourInterval, cfg.Render.UseShaders)
		g.water = renderer.NewWaterRenderer(cfg.Render.WaterOpacity, cfg.Render.UseShaders)
		if cfg.Calib.ProjectorTransform != "" {
			pm, err := calib.LoadProjectorTransform(cfg.Calib.ProjectorTransform)
			if err != nil {
				return nil, fmt.Errorf("loading projector transform: %w", err)
			}
			m := rlMatrix(pm)
			g.surface.SetProjector(m)
			g.water.SetProjector(m)
		}
	}

	if cfg.Control.Pipe != "" {
		g.control, err = OpenControl(cfg.Control.Pipe)
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// loadLayout reads the configured box layout, or derives one for the
// synthetic rig when no file is configured.
func loadLayout(cfg *config.Config, proj *depth.Projection) (*calib.BoxLayout, error) {
	if cfg.Calib.BoxLayout != "" {
		layout, err := calib.LoadBoxLayout(cfg.Calib.BoxLayout)
		if err != nil {
			return nil, fmt.Errorf("loading box layout: %w", err)
		}
		return layout, nil
	}
	return syntheticLayout(proj, cfg.Depth.Width, cfg.Depth.Height), nil
}

// syntheticLayout builds a box layout matching the synthetic source: a
// level base plane at raw depth 1000 spanning the full frame.
func syntheticLayout(proj *depth.Projection, w, h int) *calib.BoxLayout {
	const base = 1000
	z := proj.Unproject(float64(w)/2, float64(h)/2, base)[2]
	l := &calib.BoxLayout{
		Base: calib.Plane{Normal: [3]float64{0, 0, 1}, Offset: z},
		Corners: [4][3]float64{
			proj.Unproject(0, 0, base),
			proj.Unproject(float64(w-1), 0, base),
			proj.Unproject(0, float64(h-1), base),
			proj.Unproject(float64(w-1), float64(h-1), base),
		},
	}
	return l
}

// rlMatrix converts a row-major 4x4 into raylib's matrix layout.
func rlMatrix(m *mat.Dense) rl.Matrix {
	return rl.Matrix{
		M0: float32(m.At(0, 0)), M4: float32(m.At(0, 1)), M8: float32(m.At(0, 2)), M12: float32(m.At(0, 3)),
		M1: float32(m.At(1, 0)), M5: float32(m.At(1, 1)), M9: float32(m.At(1, 2)), M13: float32(m.At(1, 3)),
		M2: float32(m.At(2, 0)), M6: float32(m.At(2, 1)), M10: float32(m.At(2, 2)), M14: float32(m.At(2, 3)),
		M3: float32(m.At(3, 0)), M7: float32(m.At(3, 1)), M11: float32(m.At(3, 2)), M15: float32(m.At(3, 3)),
	}
}

func loadColorMap(cfg *config.Config) (*calib.ColorMap, error) {
	if cfg.Calib.ColorMap == "" {
		return calib.DefaultColorMap(), nil
	}
	cmap, err := calib.LoadColorMap(cfg.Calib.ColorMap)
	if err != nil {
		return nil, fmt.Errorf("loading color map: %w", err)
	}
	return cmap, nil
}

// Start launches the workers and the depth stream.
func (g *Game) Start() {
	g.filter.Start()
	g.extractor.Start()
	g.source.Start(func(raw *depth.RawFrame) {
		g.filter.Submit(raw)
		g.extractor.Submit(raw)
	})
	slog.Info("pipeline started",
		"grid", fmt.Sprintf("%dx%d", g.cfg.Derived.GridW, g.cfg.Derived.GridH),
		"domain_x", g.domain.Max[0]-g.domain.Min[0],
		"domain_y", g.domain.Max[1]-g.domain.Min[1])
}

// Update runs one display frame of pipeline work: consume worker output,
// refresh the bathymetry, advance emitters and step the solver within the
// frame budget.
func (g *Game) Update(frameTime float64) {
	g.drainControl()

	frame, newFrame := g.filter.Lock()
	if newFrame {
		if g.depthView != nil {
			g.depthView.SetFrame(frame, frame.Version)
		}
		g.table.UpdateBathymetry(frame, frame.Version)
	}

	list, newHands := g.extractor.LockExtracted()
	handCount := 0
	if newHands && list.Version != g.lastHands {
		g.lastHands = list.Version
		handCount = len(list.Hands)
		g.rain.ReplaceHandEmitters(g.handCells(list),
			float32(g.cfg.Derived.GridW)/20,
			float32(g.cfg.Rain.Strength),
			float32(g.cfg.Rain.HandTTL))
	}

	steps := 0
	var advanced float64
	tickStart := time.Now()
	if !g.paused {
		g.rain.Update(float32(frameTime))
		steps, advanced = g.table.RunSteps(frameTime * g.table.Speed())
	}
	g.stats.Frame(newFrame, newHands, handCount)
	g.stats.Steps(steps, advanced, steps >= g.cfg.Water.MaxSteps, time.Since(tickStart))
	if stats, ok := g.stats.Flush(g.waterVolume()); ok {
		if err := g.statsOut.Write(stats); err != nil {
			slog.Warn("stats write failed", "error", err)
		}
		slog.Debug("stats window",
			"frames", stats.Frames, "sim_steps", stats.SimSteps,
			"tick_mean_ms", stats.TickMeanMS)
	}

	g.finishSnapshot()
}

// SetStatsOutput routes closed stats windows to a CSV writer.
func (g *Game) SetStatsOutput(out *telemetry.Output) {
	g.statsOut = out
}

// handCells converts detected hand centers from camera space to water-grid
// cell coordinates, dropping hands outside the domain.
func (g *Game) handCells(list *hands.List) [][2]float32 {
	out := make([][2]float32, 0, len(list.Hands))
	w := float64(g.cfg.Derived.GridW)
	h := float64(g.cfg.Derived.GridH)
	for _, hand := range list.Hands {
		up := g.tr.Apply(hand.Center)
		cx := (up[0] - g.domain.Min[0]) / (g.domain.Max[0] - g.domain.Min[0]) * w
		cy := (up[1] - g.domain.Min[1]) / (g.domain.Max[1] - g.domain.Min[1]) * h
		if cx < 0 || cx >= w || cy < 0 || cy >= h {
			continue
		}
		out = append(out, [2]float32{float32(cx), float32(cy)})
	}
	return out
}

// waterVolume sums water depth over the grid.
func (g *Game) waterVolume() float64 {
	q := g.table.Solver().State()
	bath := g.table.Bathymetry()
	var sum float64
	for y := 0; y < q.H; y++ {
		for x := 0; x < q.W; x++ {
			h := float64(q.Sw[y*q.W+x] - bath.CellB(x, y))
			if h > 0 {
				sum += h
			}
		}
	}
	return sum
}

// RequestSnapshot queues a one-shot bathymetry readback written to a CSV
// file once the next depth frame lands.
func (g *Game) RequestSnapshot() {
	if g.bathPending {
		return
	}
	n := (g.cfg.Derived.GridW - 1) * (g.cfg.Derived.GridH - 1)
	if cap(g.bathBuf) < n {
		g.bathBuf = make([]float32, n)
	}
	g.bathBuf = g.bathBuf[:n]
	if g.table.RequestBathymetry(g.bathBuf) {
		g.bathPending = true
		slog.Info("bathymetry snapshot requested")
	}
}

func (g *Game) finishSnapshot() {
	if !g.bathPending || !g.table.HaveBathymetry() {
		return
	}
	g.bathPending = false
	name := fmt.Sprintf("bathymetry-%s.csv", time.Now().Format("20060102-150405"))
	if err := telemetry.WriteGridCSV(name, g.bathBuf, g.cfg.Derived.GridW-1, g.cfg.Derived.GridH-1); err != nil {
		slog.Warn("bathymetry snapshot failed", "error", err)
		return
	}
	slog.Info("bathymetry snapshot written", "file", name)
}

// Table exposes the water table for command wiring.
func (g *Game) Table() *sim.WaterTable { return g.table }

// Rain exposes the emitter registry.
func (g *Game) Rain() *RainRegistry { return g.rain }

// Paused reports whether solver stepping is suspended.
func (g *Game) Paused() bool { return g.paused }

// SetPaused suspends or resumes solver stepping; rendering continues.
func (g *Game) SetPaused(v bool) { g.paused = v }

// SpawnManualEmitter adds a water source at a water-grid cell.
func (g *Game) SpawnManualEmitter(cx, cy float32, persistent bool) {
	ttl := float32(2)
	if persistent {
		ttl = 0
	}
	g.rain.Spawn(cx, cy, float32(g.cfg.Derived.GridW)/20,
		float32(g.cfg.Rain.Strength), components.OriginManual, ttl)
}

// Close stops the stream and workers, then the solver pool. GPU objects
// are freed afterwards on the caller's (main) thread.
func (g *Game) Close() {
	g.source.Stop()
	g.filter.Stop()
	g.extractor.Stop()
	if g.control != nil {
		g.control.Close()
	}
	g.rain.Close()
	g.table.Close()
	if g.depthView != nil {
		g.depthView.Unload()
		g.surface.Unload()
		g.water.Unload()
	}
}
