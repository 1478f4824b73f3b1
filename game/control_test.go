package game

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/config"
	"github.com/grainlab/sandtable/depth"
	"github.com/grainlab/sandtable/hands"
)

func init() {
	config.MustInit("")
}

func TestControlCommands(t *testing.T) {
	pipe := filepath.Join(t.TempDir(), "commands")
	script := "WaterSpeed 2.5\n" +
		"watermaxsteps 12\n" +
		"WATERATTENUATION 0.25\n" +
		"launchMissiles now\n" +
		"waterSpeed not-a-number\n" +
		"heightMapPlane 0 0 2 50\n"
	if err := os.WriteFile(pipe, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Cfg()
	cfg.Control.Pipe = pipe
	defer func() {
		cfg.Control.Pipe = ""
		cfg.Water.MaxSteps = 30
	}()

	g, err := NewGame(depth.NewSyntheticSource(cfg.Depth.Width, cfg.Depth.Height, 1), true)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	// The reader closes the line channel at EOF; drain until then.
	deadline := time.Now().Add(2 * time.Second)
	for g.control != nil {
		if time.Now().After(deadline) {
			t.Fatal("control commands not consumed in time")
		}
		g.drainControl()
		time.Sleep(time.Millisecond)
	}

	if got := g.table.Speed(); got != 2.5 {
		t.Errorf("water speed = %g, want 2.5", got)
	}
	if cfg.Water.MaxSteps != 12 {
		t.Errorf("max steps = %d, want 12", cfg.Water.MaxSteps)
	}
}

func TestParsePlaneArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want calib.Plane
		ok   bool
	}{
		{"valid", []string{"0", "0", "2", "50"},
			calib.Plane{Normal: [3]float64{0, 0, 1}, Offset: 25}, true},
		{"zero normal", []string{"0", "0", "0", "5"}, calib.Plane{}, false},
		{"too few", []string{"1", "2"}, calib.Plane{}, false},
		{"not numeric", []string{"a", "b", "c", "d"}, calib.Plane{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePlaneArgs(tt.args)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("plane = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandCellMapping(t *testing.T) {
	cfg := config.Cfg()
	g, err := NewGame(depth.NewSyntheticSource(cfg.Depth.Width, cfg.Depth.Height, 1), true)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	// The domain center maps to the grid center; a point far outside the
	// footprint is dropped.
	center := [3]float64{
		(g.domain.Min[0] + g.domain.Max[0]) / 2,
		(g.domain.Min[1] + g.domain.Max[1]) / 2,
		0,
	}
	cam := g.tr.ApplyInverse(center)
	cells := g.handCells(handList(cam))
	if len(cells) != 1 {
		t.Fatalf("got %d cells, want 1", len(cells))
	}
	wantX := float32(cfg.Derived.GridW) / 2
	wantY := float32(cfg.Derived.GridH) / 2
	if absf32(cells[0][0]-wantX) > 0.5 || absf32(cells[0][1]-wantY) > 0.5 {
		t.Errorf("cell = %v, want (%g, %g)", cells[0], wantX, wantY)
	}

	outside := g.tr.ApplyInverse([3]float64{g.domain.Max[0] + 100, 0, 0})
	if cells := g.handCells(handList(outside)); len(cells) != 0 {
		t.Errorf("out-of-domain hand not dropped: %v", cells)
	}
}

func handList(center [3]float64) *hands.List {
	return &hands.List{Version: 1, Hands: []hands.Hand{{Center: center, Radius: 5}}}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
