package game

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/filter"
)

// Control reads line-oriented commands from a FIFO or stdin on its own
// goroutine and queues them for the main thread. One command per line,
// case-insensitive verbs; unknown verbs are ignored.
type Control struct {
	lines chan string
	file  *os.File
}

// OpenControl starts reading commands from path ("-" means stdin).
func OpenControl(path string) (*Control, error) {
	c := &Control{lines: make(chan string, 16)}
	if path == "-" {
		c.file = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening control pipe: %w", err)
		}
		c.file = f
	}
	go c.read()
	return c, nil
}

func (c *Control) read() {
	scanner := bufio.NewScanner(c.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		default:
			// A stalled main thread drops commands rather than blocking
			// the reader.
		}
	}
	close(c.lines)
}

// Close stops the reader. Reading stdin is left to terminate with the
// process.
func (c *Control) Close() {
	if c.file != os.Stdin {
		c.file.Close()
	}
}

// drainControl applies all queued commands on the main thread.
func (g *Game) drainControl() {
	if g.control == nil {
		return
	}
	for {
		select {
		case line, ok := <-g.control.lines:
			if !ok {
				g.control = nil
				return
			}
			g.applyCommand(line)
		default:
			return
		}
	}
}

func (g *Game) applyCommand(line string) {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "waterspeed":
		if v, err := parseFloatArg(args); err == nil && v > 0 {
			g.table.SetSpeed(v)
			slog.Info("control: water speed", "value", v)
		}
	case "watermaxsteps":
		if len(args) == 1 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				g.table.SetMaxSteps(n)
				g.cfg.Water.MaxSteps = n
				slog.Info("control: max steps", "value", n)
			}
		}
	case "waterattenuation":
		if v, err := parseFloatArg(args); err == nil && v >= 0 && v < 1 {
			g.table.SetAttenuation(v)
			slog.Info("control: attenuation", "value", v)
		}
	case "colormap":
		if len(args) == 1 && g.surface != nil {
			cmap, err := calib.LoadColorMap(args[0])
			if err != nil {
				slog.Warn("control: color map rejected", "path", args[0], "error", err)
				return
			}
			g.surface.SetColorMap(cmap)
			slog.Info("control: color map", "path", args[0])
		}
	case "heightmapplane":
		if plane, ok := parsePlaneArgs(args); ok {
			g.setBasePlane(plane)
			slog.Info("control: base plane",
				"normal", plane.Normal, "offset", plane.Offset)
		}
	}
}

func parseFloatArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("want 1 argument, got %d", len(args))
	}
	return strconv.ParseFloat(args[0], 64)
}

func parsePlaneArgs(args []string) (calib.Plane, bool) {
	if len(args) != 4 {
		return calib.Plane{}, false
	}
	var vals [4]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return calib.Plane{}, false
		}
		vals[i] = v
	}
	p := calib.Plane{Normal: [3]float64{vals[0], vals[1], vals[2]}, Offset: vals[3]}
	if p.Normal == [3]float64{} {
		return calib.Plane{}, false
	}
	p.Normalize()
	return p, true
}

// setBasePlane replaces the elevation reference plane used by the frame
// filter's validity gate.
func (g *Game) setBasePlane(plane calib.Plane) {
	minPlane, maxPlane := filter.ValidElevationInterval(
		g.proj, plane.Normal, plane.Offset,
		g.cfg.Filter.MinElevation, g.cfg.Filter.MaxElevation)
	g.filter.Configure(filter.Params{
		MinValidSamples: uint32(g.cfg.Derived.MinValidSamples),
		MaxVariance:     g.cfg.Filter.MaxVariance,
		Hysteresis:      float32(g.cfg.Filter.Hysteresis),
		RetainValids:    g.cfg.Filter.RetainValids,
		InstableValue:   float32(g.cfg.Filter.InstableValue),
		SpatialFilter:   g.cfg.Filter.SpatialFilter,
		MinPlane:        minPlane,
		MaxPlane:        maxPlane,
	})
}
