package main

import (
	"flag"
	"log/slog"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/grainlab/sandtable/config"
	"github.com/grainlab/sandtable/depth"
	"github.com/grainlab/sandtable/game"
	"github.com/grainlab/sandtable/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run the pipeline without graphics")
	replay := flag.String("replay", "", "Play back a recorded depth stream instead of the synthetic source")
	statsPath := flag.String("stats", "", "Write window statistics to this CSV file")
	maxFrames := flag.Int("max-frames", 0, "Stop after N display frames (0 = unlimited)")
	seed := flag.Int64("seed", 42, "Synthetic source RNG seed")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	source, err := openSource(*replay, cfg, *seed)
	if err != nil {
		slog.Error("failed to open depth source", "error", err)
		os.Exit(1)
	}

	statsOut, err := telemetry.NewOutput(*statsPath)
	if err != nil {
		slog.Error("failed to open stats output", "error", err)
		os.Exit(1)
	}
	defer statsOut.Close()

	if *headless {
		runHeadless(source, statsOut, *maxFrames)
		return
	}

	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Sand Table")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGame(source, false)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer g.Close()
	g.SetStatsOutput(statsOut)
	g.Start()

	frames := 0
	for !rl.WindowShouldClose() {
		g.HandleInput()
		g.Update(cfg.Derived.FrameTime)

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		g.Draw()
		rl.EndDrawing()

		frames++
		if *maxFrames > 0 && frames >= *maxFrames {
			break
		}
	}
}

func openSource(replay string, cfg *config.Config, seed int64) (depth.Source, error) {
	if replay == "" {
		return depth.NewSyntheticSource(cfg.Depth.Width, cfg.Depth.Height, seed), nil
	}
	src, err := depth.OpenReplay(replay)
	if err != nil {
		return nil, err
	}
	w, h := src.Size()
	if w != cfg.Depth.Width || h != cfg.Depth.Height {
		slog.Warn("replay frame size overrides config", "width", w, "height", h)
		cfg.Depth.Width = w
		cfg.Depth.Height = h
		if cfg.Water.GridWidth == 0 {
			cfg.Derived.GridW = w
		}
		if cfg.Water.GridHeight == 0 {
			cfg.Derived.GridH = h
		}
	}
	return src, nil
}

// runHeadless drives the pipeline at the configured frame rate without a
// window. Used for CI and soak runs.
func runHeadless(source depth.Source, statsOut *telemetry.Output, maxFrames int) {
	cfg := config.Cfg()
	g, err := game.NewGame(source, true)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer g.Close()
	g.SetStatsOutput(statsOut)
	g.Start()

	slog.Info("running headless", "max_frames", maxFrames)
	for frames := 0; maxFrames == 0 || frames < maxFrames; frames++ {
		g.Update(cfg.Derived.FrameTime)
	}
}
