package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector(0) // zero window: every Flush closes

	c.Frame(true, false, 0)
	c.Frame(true, true, 2)
	c.Frame(false, false, 0)
	c.Steps(4, 0.04, false, 2*time.Millisecond)
	c.Steps(10, 0.02, true, 6*time.Millisecond)

	stats, ok := c.Flush(1.25)
	if !ok {
		t.Fatal("Flush did not close the window")
	}
	if stats.Frames != 3 || stats.DepthFrames != 2 || stats.HandFrames != 1 {
		t.Errorf("frame counts = %d/%d/%d, want 3/2/1",
			stats.Frames, stats.DepthFrames, stats.HandFrames)
	}
	if stats.HandsSeen != 2 {
		t.Errorf("HandsSeen = %d, want 2", stats.HandsSeen)
	}
	if stats.SimSteps != 14 {
		t.Errorf("SimSteps = %d, want 14", stats.SimSteps)
	}
	if math.Abs(stats.SimTime-0.06) > 1e-12 {
		t.Errorf("SimTime = %g, want 0.06", stats.SimTime)
	}
	// Step sizes 0.01 and 0.002.
	if math.Abs(stats.StepMean-0.006) > 1e-12 {
		t.Errorf("StepMean = %g, want 0.006", stats.StepMean)
	}
	if math.Abs(stats.StepMin-0.002) > 1e-12 {
		t.Errorf("StepMin = %g, want 0.002", stats.StepMin)
	}
	if math.Abs(stats.StepBudget-1.0/3.0) > 1e-12 {
		t.Errorf("StepBudget = %g, want 1/3", stats.StepBudget)
	}
	if math.Abs(stats.TickMeanMS-4) > 1e-9 || math.Abs(stats.TickMaxMS-6) > 1e-9 {
		t.Errorf("tick ms = %g/%g, want 4/6", stats.TickMeanMS, stats.TickMaxMS)
	}
	if stats.WaterVolume != 1.25 {
		t.Errorf("WaterVolume = %g, want 1.25", stats.WaterVolume)
	}

	// The window resets after a flush.
	stats, ok = c.Flush(0)
	if !ok {
		t.Fatal("second Flush did not close")
	}
	if stats.Frames != 0 || stats.SimSteps != 0 {
		t.Errorf("window did not reset: %+v", stats)
	}
}

func TestCollectorHoldsWindowOpen(t *testing.T) {
	c := NewCollector(time.Hour)
	c.Frame(true, true, 1)
	if _, ok := c.Flush(0); ok {
		t.Error("Flush closed a window before it elapsed")
	}
}

func TestOutputWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	out, err := NewOutput(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.Write(WindowStats{Frames: 1}); err != nil {
		t.Fatal(err)
	}
	if err := out.Write(WindowStats{Frames: 2}); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "window_end") {
		t.Errorf("header missing: %q", lines[0])
	}
	if strings.Contains(lines[2], "window_end") {
		t.Errorf("header repeated: %q", lines[2])
	}
}

func TestNilOutputIsSafe(t *testing.T) {
	var out *Output
	if err := out.Write(WindowStats{}); err != nil {
		t.Errorf("nil Write returned %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestWriteGridCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bath.csv")
	data := []float32{1, 2, 3, 4, 5, 6}
	if err := WriteGridCSV(path, data, 3, 2); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1,2,3\n4,5,6\n"
	if string(raw) != want {
		t.Errorf("grid CSV = %q, want %q", raw, want)
	}

	if err := WriteGridCSV(path, data, 4, 2); err == nil {
		t.Error("size mismatch not rejected")
	}
}
