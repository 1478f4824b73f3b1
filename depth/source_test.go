package depth

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// collectFrames runs the source until n frames arrived or the deadline
// passed, returning copies of the delivered frames.
func collectFrames(t *testing.T, s Source, n int) []*RawFrame {
	t.Helper()

	var mu sync.Mutex
	var got []*RawFrame
	s.Start(func(f *RawFrame) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) < n {
			cp := NewRawFrame(f.Width, f.Height)
			cp.CopyFrom(f)
			got = append(got, cp)
		}
	})
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		done := len(got) >= n
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	return got
}

func TestSyntheticSourceStreams(t *testing.T) {
	s := NewSyntheticSource(32, 24, 1)
	frames := collectFrames(t, s, 3)

	for i, f := range frames {
		if f.Width != 32 || f.Height != 24 {
			t.Fatalf("frame %d is %dx%d, want 32x24", i, f.Width, f.Height)
		}
		if i > 0 && f.Version <= frames[i-1].Version {
			t.Errorf("frame %d version %d did not advance past %d", i, f.Version, frames[i-1].Version)
		}
		valid := 0
		for _, v := range f.Pix {
			if v <= MaxValidDepth {
				valid++
			}
		}
		// Dropouts are rare; the bulk of every frame must be usable.
		if valid < len(f.Pix)*9/10 {
			t.Errorf("frame %d has only %d/%d valid samples", i, valid, len(f.Pix))
		}
	}
}

func TestSyntheticSourceStopIsIdempotent(t *testing.T) {
	s := NewSyntheticSource(8, 8, 1)
	s.Stop()
	collectFrames(t, s, 1)
	s.Stop()
	s.Stop()
}

// writeRecording dumps frames in the replay file format.
func writeRecording(t *testing.T, path string, w, h int, frames [][]uint16) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	header := [4]uint32{uint32(w), uint32(h), uint32(len(frames)), 0}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		t.Fatal(err)
	}
	for _, pix := range frames {
		if err := binary.Write(f, binary.LittleEndian, pix); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReplaySourceLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth.rec")
	a := []uint16{10, 20, 30, 40, 50, 60}
	b := []uint16{11, 21, 31, 41, 51, 61}
	writeRecording(t, path, 3, 2, [][]uint16{a, b})

	s, err := OpenReplay(path)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := s.Size(); w != 3 || h != 2 {
		t.Fatalf("Size() = %dx%d, want 3x2", w, h)
	}

	// Three frames from a two-frame recording proves playback loops.
	frames := collectFrames(t, s, 3)
	want := [][]uint16{a, b, a}
	for i, f := range frames {
		for j, v := range want[i] {
			if f.Pix[j] != v {
				t.Fatalf("frame %d pixel %d = %d, want %d", i, j, f.Pix[j], v)
			}
		}
	}
}

func TestOpenReplayRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.rec")
	writeRecording(t, empty, 4, 4, nil)
	if _, err := OpenReplay(empty); err == nil {
		t.Error("expected an error for a recording with no frames")
	}

	truncated := filepath.Join(dir, "short.rec")
	writeRecording(t, truncated, 4, 4, nil)
	// Rewrite the header to claim a frame that is not there.
	f, err := os.OpenFile(truncated, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(f, binary.LittleEndian, [4]uint32{4, 4, 1, 0}); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := OpenReplay(truncated); err == nil {
		t.Error("expected an error for a truncated recording")
	}

	if _, err := OpenReplay(filepath.Join(dir, "missing.rec")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
