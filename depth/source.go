package depth

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"
)

// Source produces raw depth frames on its own goroutine and hands each one to
// the sink. The frame passed to the sink is owned by the source and only
// valid for the duration of the call; sinks copy what they keep.
type Source interface {
	Start(sink func(*RawFrame))
	Stop()
}

// SyntheticSource generates frames of a sloped sand bed with sensor noise.
// It stands in for the camera when no hardware or recording is available.
type SyntheticSource struct {
	width, height int
	rate          time.Duration
	baseDepth     uint16
	noise         uint16

	frame *RawFrame
	rng   *rand.Rand

	mu   sync.Mutex
	run  bool
	done chan struct{}
}

// NewSyntheticSource creates a ~30 Hz synthetic depth stream.
func NewSyntheticSource(w, h int, seed int64) *SyntheticSource {
	return &SyntheticSource{
		width:     w,
		height:    h,
		rate:      time.Second / 30,
		baseDepth: 1000,
		noise:     3,
		frame:     NewRawFrame(w, h),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Start begins pumping frames to sink until Stop is called.
func (s *SyntheticSource) Start(sink func(*RawFrame)) {
	s.mu.Lock()
	if s.run {
		s.mu.Unlock()
		return
	}
	s.run = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.rate)
		defer ticker.Stop()
		for {
			s.mu.Lock()
			running := s.run
			s.mu.Unlock()
			if !running {
				return
			}
			s.generate()
			sink(s.frame)
			<-ticker.C
		}
	}()
}

// Stop halts the pump and waits for the goroutine to exit.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	if !s.run {
		s.mu.Unlock()
		return
	}
	s.run = false
	done := s.done
	s.mu.Unlock()
	<-done
}

// generate fills the frame with a gently sloped surface plus noise.
func (s *SyntheticSource) generate() {
	s.frame.Version++
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			d := float64(s.baseDepth)
			d -= 60 * math.Sin(float64(x)/float64(s.width)*math.Pi)
			d -= 30 * math.Sin(float64(y)/float64(s.height)*math.Pi)
			d += float64(s.rng.Intn(int(2*s.noise+1))) - float64(s.noise)
			if d < 0 {
				d = 0
			}
			if d > float64(MaxValidDepth) {
				d = float64(MaxValidDepth)
			}
			// Sprinkle dropouts the way a structured-light sensor does.
			if s.rng.Float64() < 0.002 {
				s.frame.Set(x, y, Invalid)
			} else {
				s.frame.Set(x, y, uint16(d))
			}
		}
	}
}

// ReplaySource streams raw frames recorded to a file. The format is the
// dump produced by recording tools: a 16-byte header of width, height,
// frame count and reserved field as little-endian uint32, followed by
// width*height uint16 samples per frame. Playback loops.
type ReplaySource struct {
	width, height int
	frames        [][]uint16
	rate          time.Duration

	frame *RawFrame

	mu   sync.Mutex
	run  bool
	done chan struct{}
}

// OpenReplay loads a recorded depth stream.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening depth recording: %w", err)
	}
	defer f.Close()

	var header [4]uint32
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading recording header: %w", err)
	}
	w, h, n := int(header[0]), int(header[1]), int(header[2])
	if w < 2 || h < 2 || n < 1 {
		return nil, fmt.Errorf("recording header %dx%d with %d frames is not usable", w, h, n)
	}

	frames := make([][]uint16, 0, n)
	for i := 0; i < n; i++ {
		pix := make([]uint16, w*h)
		if err := binary.Read(f, binary.LittleEndian, pix); err != nil {
			return nil, fmt.Errorf("reading frame %d: %w", i, err)
		}
		frames = append(frames, pix)
	}

	return &ReplaySource{
		width:  w,
		height: h,
		frames: frames,
		rate:   time.Second / 30,
		frame:  NewRawFrame(w, h),
	}, nil
}

// Size returns the recorded frame dimensions.
func (s *ReplaySource) Size() (int, int) {
	return s.width, s.height
}

// Start begins looping playback into sink.
func (s *ReplaySource) Start(sink func(*RawFrame)) {
	s.mu.Lock()
	if s.run {
		s.mu.Unlock()
		return
	}
	s.run = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.rate)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.frames) {
			s.mu.Lock()
			running := s.run
			s.mu.Unlock()
			if !running {
				return
			}
			copy(s.frame.Pix, s.frames[i])
			s.frame.Version++
			sink(s.frame)
			<-ticker.C
		}
	}()
}

// Stop halts playback.
func (s *ReplaySource) Stop() {
	s.mu.Lock()
	if !s.run {
		s.mu.Unlock()
		return
	}
	s.run = false
	done := s.done
	s.mu.Unlock()
	<-done
}
