// Package hands identifies open hands hovering above the sand in the raw
// depth stream. Foreground pixels are grouped into blobs with a row-span
// union-find, each blob's outer boundary is walked once, and a sliding corner
// snake feeds a finger-geometry matcher. Detected hands trigger localized
// rain in the simulation.
package hands

import (
	"sync"
	"sync/atomic"

	"github.com/grainlab/sandtable/depth"
)

// Hand is one candidate hand above the sand, in camera space.
type Hand struct {
	Center [3]float64 // palm center
	Radius float64    // mean tip distance, camera units
}

// List is a published set of hands for one frame.
type List struct {
	Version uint64
	Hands   []Hand
}

// Params are the tunable extractor parameters.
type Params struct {
	MaxFgDepth         uint16  // Pixels deeper than this are background
	MaxDepthDist       uint16  // Max raw-depth step between connected samples
	MinBlobSize        int     // Candidate pixel-count bounds
	MaxBlobSize        int
	SnakeLength        int     // Boundary corner snake length
	MaxCornerEnterDist float64 // Snake tail-head distance entering a corner
	MinCenterDist      float64 // Midpoint offset ratio entering a corner
	MinHandProbability float64 // Shape-match accept threshold
}

// invalidBlob fills non-blob pixels in the blob id image.
const invalidBlob int32 = -1

// span is a maximal run of connectable foreground pixels in one row.
// Spans double as union-find nodes; counts aggregate at the root.
type span struct {
	y          int
	start, end int // [start, end)
	parent     int32
	numPixels  int32
	sumDepth   uint64
	blobID     int32
}

// Extractor is the hand-extraction worker. Same producer/consumer shape as
// the frame filter: non-blocking submit, triple-buffered output.
type Extractor struct {
	width, height int

	in  *depth.FrameMailbox
	out *depth.TripleBuffer[*List]

	params atomic.Pointer[Params]
	proj   *depth.Projection

	// Worker scratch, reused across frames.
	raw       *depth.RawFrame
	spans     []span
	blobImage []int32
	boundary  []point
	corners   []corner
	version   uint64

	runMu sync.Mutex
	run   bool
	wg    sync.WaitGroup
}

// New creates an extractor for w x h frames. proj unprojects detected palm
// centers into camera space.
func New(w, h int, proj *depth.Projection, params Params) *Extractor {
	e := &Extractor{
		width:  w,
		height: h,
		in:     depth.NewFrameMailbox(w, h),
		out: depth.NewTripleBuffer(func() *List {
			return &List{}
		}),
		proj:      proj,
		raw:       depth.NewRawFrame(w, h),
		blobImage: make([]int32, w*h),
	}
	e.params.Store(&params)
	return e
}

// Configure replaces the parameter set; applied on the next worker pass.
func (e *Extractor) Configure(p Params) {
	e.params.Store(&p)
}

// Submit hands a raw frame to the worker. Non-blocking, last-writer-wins.
func (e *Extractor) Submit(raw *depth.RawFrame) {
	e.in.Submit(raw)
}

// LockExtracted claims the most recent hand list; the boolean reports
// whether it is new since the previous lock.
func (e *Extractor) LockExtracted() (*List, bool) {
	return e.out.Lock()
}

// Start launches the worker goroutine.
func (e *Extractor) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.run {
		return
	}
	e.run = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for e.in.Next(e.raw) {
			e.processFrame()
		}
	}()
}

// Stop shuts the worker down and waits for it.
func (e *Extractor) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.run {
		return
	}
	e.in.Close()
	e.wg.Wait()
	e.run = false
}

// ExtractOneFrame runs a single pass synchronously. For tests and tools; do
// not mix with a started worker.
func (e *Extractor) ExtractOneFrame(raw *depth.RawFrame) *List {
	e.raw.CopyFrom(raw)
	e.processFrame()
	list, _ := e.out.Lock()
	return list
}

// processFrame runs span extraction, blob labeling, and per-blob hand
// matching, then publishes the result.
func (e *Extractor) processFrame() {
	p := e.params.Load()

	e.buildSpans(p)
	numBlobs := e.assignBlobIDs(p)

	out := e.out.Writable()
	out.Hands = out.Hands[:0]

	if numBlobs > 0 {
		e.fillBlobImage()
		e.matchBlobs(p, numBlobs, out)
	}

	e.version++
	out.Version = e.version
	e.out.Publish()
}

// buildSpans walks each row collecting foreground spans and merging them
// with overlapping connectable spans from the row above.
func (e *Extractor) buildSpans(p *Params) {
	e.spans = e.spans[:0]
	rowAboveFirst := 0 // index of the previous row's first span

	for y := 0; y < e.height; y++ {
		rowBase := y * e.width
		aboveBase := rowBase - e.width
		rowAboveEnd := len(e.spans)

		x := 0
		for x < e.width {
			d := e.raw.Pix[rowBase+x]
			if d > p.MaxFgDepth {
				x++
				continue
			}

			// Extend the span while successive samples stay connected.
			start := x
			sum := uint64(d)
			prev := d
			x++
			for x < e.width {
				d = e.raw.Pix[rowBase+x]
				if d > p.MaxFgDepth || absDiff(d, prev) > p.MaxDepthDist {
					break
				}
				sum += uint64(d)
				prev = d
				x++
			}

			idx := int32(len(e.spans))
			e.spans = append(e.spans, span{
				y:         y,
				start:     start,
				end:       x,
				parent:    idx,
				numPixels: int32(x - start),
				sumDepth:  sum,
				blobID:    invalidBlob,
			})

			// Overlap-merge with spans in the row above.
			for a := rowAboveFirst; a < rowAboveEnd; a++ {
				above := &e.spans[a]
				lo := maxInt(start, above.start)
				hi := minInt(x, above.end)
				if lo >= hi {
					continue
				}
				for cx := lo; cx < hi; cx++ {
					if absDiff(e.raw.Pix[rowBase+cx], e.raw.Pix[aboveBase+cx]) <= p.MaxDepthDist {
						e.union(idx, int32(a))
						break
					}
				}
			}
		}

		rowAboveFirst = rowAboveEnd
	}
}

// find returns the union-find root of span i, with path compression.
func (e *Extractor) find(i int32) int32 {
	root := i
	for e.spans[root].parent != root {
		root = e.spans[root].parent
	}
	for e.spans[i].parent != root {
		e.spans[i].parent, i = root, e.spans[i].parent
	}
	return root
}

// union merges two span trees, keeping the minimum root index and
// aggregating pixel counts and depth sums at the root.
func (e *Extractor) union(a, b int32) {
	ra, rb := e.find(a), e.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	e.spans[rb].parent = ra
	e.spans[ra].numPixels += e.spans[rb].numPixels
	e.spans[ra].sumDepth += e.spans[rb].sumDepth
}

// assignBlobIDs gives each size-qualified root a consecutive blob id and
// propagates ids to child spans. Returns the number of blobs.
func (e *Extractor) assignBlobIDs(p *Params) int {
	next := int32(0)
	for i := range e.spans {
		s := &e.spans[i]
		if s.parent == int32(i) {
			if int(s.numPixels) >= p.MinBlobSize && int(s.numPixels) <= p.MaxBlobSize {
				s.blobID = next
				next++
			} else {
				s.blobID = invalidBlob
			}
		}
	}
	for i := range e.spans {
		root := e.find(int32(i))
		e.spans[i].blobID = e.spans[root].blobID
	}
	return int(next)
}

// fillBlobImage rasterizes span blob ids into the blob image.
func (e *Extractor) fillBlobImage() {
	for i := range e.blobImage {
		e.blobImage[i] = invalidBlob
	}
	for i := range e.spans {
		s := &e.spans[i]
		if s.blobID == invalidBlob {
			continue
		}
		row := e.blobImage[s.y*e.width : s.y*e.width+e.width]
		for x := s.start; x < s.end; x++ {
			row[x] = s.blobID
		}
	}
}

// matchBlobs walks each blob boundary and appends accepted hands to out.
func (e *Extractor) matchBlobs(p *Params, numBlobs int, out *List) {
	// Mean depth and a start pixel per blob, from the root spans.
	type blobInfo struct {
		meanDepth float64
		startSpan int32
		found     bool
	}
	infos := make([]blobInfo, numBlobs)
	for i := range e.spans {
		s := &e.spans[i]
		if s.blobID == invalidBlob {
			continue
		}
		info := &infos[s.blobID]
		if !info.found {
			info.startSpan = int32(i)
			info.found = true
		}
		if s.parent == int32(i) {
			info.meanDepth = float64(s.sumDepth) / float64(s.numPixels)
		}
	}

	for id := 0; id < numBlobs; id++ {
		info := &infos[id]
		if !info.found {
			continue
		}
		start := &e.spans[info.startSpan]

		e.boundary = traceBoundary(e.blobImage, e.width, e.height,
			start.start, start.y, int32(id), e.boundary[:0])
		if len(e.boundary) < p.SnakeLength {
			continue
		}

		e.corners = findCorners(e.boundary, p.SnakeLength,
			p.MaxCornerEnterDist, p.MinCenterDist, e.corners[:0])

		if hand, ok := matchHand(e.corners, p.MinHandProbability, info.meanDepth, e.proj); ok {
			out.Hands = append(out.Hands, hand)
		}
	}
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
