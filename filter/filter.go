// Package filter turns the noisy, partially invalid raw depth stream into a
// stream of stable float elevations suitable for bathymetry. Each pixel keeps
// a ring of recent valid samples with running statistics; a pixel is emitted
// as stable only when enough samples agree within a variance gate, and the
// emitted value is frozen inside a hysteresis envelope.
package filter

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/grainlab/sandtable/depth"
)

// Params are the tunable filter parameters. They may be replaced concurrently
// with frame submission; the worker picks up the new set on its next pass.
type Params struct {
	MinValidSamples uint32  // Stable needs at least this many ring samples
	MaxVariance     float64 // Population variance gate, raw units squared
	Hysteresis      float32 // Output freeze envelope, corrected units
	RetainValids    bool    // Unstable pixels keep their last stable value
	InstableValue   float32 // Emitted for unstable pixels when RetainValids is false
	SpatialFilter   bool    // Two-pass separable 1-2-1 smoothing

	// Half-space equations in depth-image space; a corrected sample is
	// accepted iff both evaluate >= 0. See SetValidElevationInterval.
	MinPlane, MaxPlane [4]float64
}

// ValidDepthInterval returns plane equations accepting corrected depths in
// [dmin, dmax].
func ValidDepthInterval(dmin, dmax float64) (minPlane, maxPlane [4]float64) {
	return [4]float64{0, 0, 1, -dmin}, [4]float64{0, 0, -1, dmax}
}

// ValidElevationInterval returns plane equations accepting samples whose
// camera-space elevation over the base plane lies in [min, max]. The plane is
// given by its unit normal and offset; proj maps depth pixels to camera space.
func ValidElevationInterval(proj *depth.Projection, normal [3]float64, offset, min, max float64) (minPlane, maxPlane [4]float64) {
	minPlane = proj.TransformPlane(normal, offset+min)
	neg := [3]float64{-normal[0], -normal[1], -normal[2]}
	maxPlane = proj.TransformPlane(neg, -(offset + max))
	return minPlane, maxPlane
}

// Filter is the frame-filter worker. One producer submits raw frames, one
// consumer locks filtered frames; both sides are non-blocking.
type Filter struct {
	width, height int
	numSlots      int

	in  *depth.FrameMailbox
	out *depth.TripleBuffer[*depth.FilteredFrame]

	params  atomic.Pointer[Params]
	correct *depth.PixelCorrection
	onFrame func(*depth.FilteredFrame)

	// Worker state. Rings are slot-major so one pass walks each slice
	// linearly; statistics are exact integer sums so the variance gate
	// never drifts.
	raw      *depth.RawFrame
	ring     []uint16 // numSlots * width*height, depth.Invalid marks empty
	count    []uint32
	sum      []uint32
	sum2     []uint64
	valid    []float32 // last emitted value per pixel
	writeIdx int
	version  uint64

	runMu sync.Mutex
	run   bool
	wg    sync.WaitGroup
}

// New creates a filter for w x h frames with the given ring depth.
// correct may be nil for the identity depth correction.
func New(w, h, averagingSlots int, correct *depth.PixelCorrection, params Params) *Filter {
	n := w * h
	f := &Filter{
		width:    w,
		height:   h,
		numSlots: averagingSlots,
		in:       depth.NewFrameMailbox(w, h),
		out: depth.NewTripleBuffer(func() *depth.FilteredFrame {
			return depth.NewFilteredFrame(w, h)
		}),
		correct: correct,
		raw:     depth.NewRawFrame(w, h),
		ring:    make([]uint16, averagingSlots*n),
		count:   make([]uint32, n),
		sum:     make([]uint32, n),
		sum2:    make([]uint64, n),
		valid:   make([]float32, n),
	}
	for i := range f.ring {
		f.ring[i] = depth.Invalid
	}
	for i := range f.valid {
		f.valid[i] = params.InstableValue
	}
	f.params.Store(&params)
	return f
}

// Configure replaces the parameter set. Safe to call concurrently with
// Submit; the worker applies it on its next pass.
func (f *Filter) Configure(p Params) {
	f.params.Store(&p)
}

// OnFrame registers a callback invoked from the worker goroutine after each
// published frame. Must be set before Start.
func (f *Filter) OnFrame(cb func(*depth.FilteredFrame)) {
	f.onFrame = cb
}

// Submit hands a raw frame to the worker. Non-blocking; under load,
// intermediate frames are dropped and only the latest is processed.
func (f *Filter) Submit(raw *depth.RawFrame) {
	f.in.Submit(raw)
}

// Lock claims the most recent filtered frame. The boolean reports whether it
// is new since the previous Lock.
func (f *Filter) Lock() (*depth.FilteredFrame, bool) {
	return f.out.Lock()
}

// Start launches the worker goroutine.
func (f *Filter) Start() {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.run {
		return
	}
	f.run = true
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for f.in.Next(f.raw) {
			f.processFrame()
		}
	}()
}

// Stop shuts the worker down and waits for it to exit. The worker touches no
// shared buffers after Stop returns.
func (f *Filter) Stop() {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if !f.run {
		return
	}
	f.in.Close()
	f.wg.Wait()
	f.run = false
}

// ProcessOneFrame runs a single worker pass synchronously on raw. Intended
// for tests and offline tools; do not mix with a started worker.
func (f *Filter) ProcessOneFrame(raw *depth.RawFrame) *depth.FilteredFrame {
	f.raw.CopyFrom(raw)
	f.processFrame()
	frame, _ := f.out.Lock()
	return frame
}

// processFrame runs one worker pass over the current raw frame.
func (f *Filter) processFrame() {
	p := f.params.Load()
	n := f.width * f.height
	slotBase := f.writeIdx * n
	out := f.out.Writable()

	i := 0
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			v := f.raw.Pix[i]

			accepted := false
			if v != depth.Invalid {
				vc := float64(f.correct.Correct(i, float32(v)))
				accepted = depth.EvalPlane(p.MinPlane, x, y, vc) >= 0 &&
					depth.EvalPlane(p.MaxPlane, x, y, vc) >= 0
			}

			if accepted {
				f.evictSlot(slotBase + i, i)
				f.ring[slotBase+i] = v
				f.count[i]++
				f.sum[i] += uint32(v)
				f.sum2[i] += uint64(v) * uint64(v)
			} else if !p.RetainValids {
				f.evictSlot(slotBase+i, i)
			}

			// Stability test in population-variance form:
			// count*sum2 - sum^2 <= maxVariance*count^2.
			c := f.count[i]
			stable := c >= p.MinValidSamples &&
				float64(c)*float64(f.sum2[i])-float64(f.sum[i])*float64(f.sum[i]) <=
					p.MaxVariance*float64(c)*float64(c)

			if stable {
				mean := f.correct.Correct(i, float32(float64(f.sum[i])/float64(c)))
				if absf(mean-f.valid[i]) >= p.Hysteresis {
					f.valid[i] = mean
				}
				out.Pix[i] = f.valid[i]
			} else if p.RetainValids {
				out.Pix[i] = f.valid[i]
			} else {
				f.valid[i] = p.InstableValue
				out.Pix[i] = p.InstableValue
			}

			i++
		}
	}

	f.writeIdx = (f.writeIdx + 1) % f.numSlots

	if p.SpatialFilter {
		spatialFilterColumns(out.Pix, f.width, f.height)
		spatialFilterRows(out.Pix, f.width, f.height)
	}

	f.version++
	out.Version = f.version
	f.out.Publish()
	if f.onFrame != nil {
		f.onFrame(out)
	}
}

// evictSlot removes the stored sample from pixel i's statistics.
func (f *Filter) evictSlot(slot, i int) {
	old := f.ring[slot]
	if old == depth.Invalid {
		return
	}
	f.ring[slot] = depth.Invalid
	f.count[i]--
	f.sum[i] -= uint32(old)
	f.sum2[i] -= uint64(old) * uint64(old)
}

// spatialFilterColumns runs one in-place vertical 1-2-1 pass. Endpoints use
// the reflective weights (2a+b)/3; interior samples use (a+2b+c)/4.
func spatialFilterColumns(pix []float32, w, h int) {
	for x := 0; x < w; x++ {
		prev := pix[x]
		pix[x] = (2*pix[x] + pix[w+x]) / 3
		for y := 1; y < h-1; y++ {
			idx := y*w + x
			cur := pix[idx]
			pix[idx] = (prev + 2*cur + pix[idx+w]) / 4
			prev = cur
		}
		idx := (h-1)*w + x
		pix[idx] = (2*pix[idx] + prev) / 3
	}
}

// spatialFilterRows runs one in-place horizontal 1-2-1 pass.
func spatialFilterRows(pix []float32, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[y*w : y*w+w]
		prev := row[0]
		row[0] = (2*row[0] + row[1]) / 3
		for x := 1; x < w-1; x++ {
			cur := row[x]
			row[x] = (prev + 2*cur + row[x+1]) / 4
			prev = cur
		}
		row[w-1] = (2*row[w-1] + prev) / 3
	}
}

func absf(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
