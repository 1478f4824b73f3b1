package sim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/depth"
)

// Bathymetry holds the terrain under the water as a vertex-centered grid:
// for a W by H cell grid the vertices form (W-1) by (H-1) interior cell
// corners. Two slots are kept so a new surface can be resampled while the
// solver still reads the old one.
type Bathymetry struct {
	cellW, cellH int
	slots        [2]*Grid
	cur          int
	version      uint64
}

// NewBathymetry allocates the double-buffered vertex grids for a cell grid
// of the given size.
func NewBathymetry(cellW, cellH int) *Bathymetry {
	b := &Bathymetry{cellW: cellW, cellH: cellH}
	b.slots[0] = NewGrid(cellW-1, cellH-1)
	b.slots[1] = NewGrid(cellW-1, cellH-1)
	return b
}

// Current returns the vertex grid the solver reads.
func (b *Bathymetry) Current() *Grid { return b.slots[b.cur] }

// Back returns the inactive slot, the target for the next resample.
func (b *Bathymetry) Back() *Grid { return b.slots[1-b.cur] }

// Swap makes the back slot current and bumps the version.
func (b *Bathymetry) Swap() {
	b.cur = 1 - b.cur
	b.version++
}

// Version identifies the current terrain; it advances on every Swap.
func (b *Bathymetry) Version() uint64 { return b.version }

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Vertex reads a vertex with clamp-to-edge semantics, so cell and face
// averages remain defined on the boundary ring.
func (b *Bathymetry) Vertex(a, c int) float32 {
	g := b.slots[b.cur]
	a = clampi(a, 0, g.W-1)
	c = clampi(c, 0, g.H-1)
	return g.Data[c*g.W+a]
}

// CellB is the cell-centered terrain elevation: the mean of the four
// corner vertices of cell (x, y).
func (b *Bathymetry) CellB(x, y int) float32 {
	return 0.25 * (b.Vertex(x-1, y-1) + b.Vertex(x, y-1) + b.Vertex(x-1, y) + b.Vertex(x, y))
}

// FaceBX is the terrain elevation on the east face of cell (x, y), the
// face shared with cell (x+1, y).
func (b *Bathymetry) FaceBX(x, y int) float32 {
	return 0.5 * (b.Vertex(x, y-1) + b.Vertex(x, y))
}

// FaceBY is the terrain elevation on the north face of cell (x, y), the
// face shared with cell (x, y+1).
func (b *Bathymetry) FaceBY(x, y int) float32 {
	return 0.5 * (b.Vertex(x-1, y) + b.Vertex(x, y))
}

// InitFlat sets both slots to a uniform elevation.
func (b *Bathymetry) InitFlat(elev float32) {
	b.slots[0].Fill(elev)
	b.slots[1].Fill(elev)
}

// Resampler converts filtered depth frames into vertex-centered terrain
// elevations in upright sandbox space. The depth-to-elevation map is the
// upright transform composed with the depth unprojection, folded into two
// matrix rows evaluated per sample.
type Resampler struct {
	frameW, frameH int
	gridW, gridH   int
	r2, r3         [4]float64
	domain         calib.Domain
	lens           *depth.LensDistortion
}

// NewResampler folds the unprojection and upright transform into the
// elevation rows and fixes the frame-to-grid sampling ratio.
func NewResampler(proj *depth.Projection, tr *calib.Transform, domain calib.Domain, frameW, frameH, gridW, gridH int) *Resampler {
	var m mat.Dense
	m.Mul(tr.Mat(), proj.Mat())
	r := &Resampler{
		frameW: frameW,
		frameH: frameH,
		gridW:  gridW,
		gridH:  gridH,
		domain: domain,
	}
	for k := 0; k < 4; k++ {
		r.r2[k] = m.At(2, k)
		r.r3[k] = m.At(3, k)
	}
	return r
}

// SetLens installs a lens distortion applied to pixel centers before the
// elevation rows. Call before the solver starts consuming resamples.
func (r *Resampler) SetLens(lens *depth.LensDistortion) {
	if lens.IsIdentity() {
		lens = nil
	}
	r.lens = lens
}

// Elevation maps one depth sample at pixel (x, y) to upright-space height.
func (r *Resampler) Elevation(x, y int, d float64) float64 {
	px, py := float64(x)+0.5, float64(y)+0.5
	if r.lens != nil {
		px, py = r.lens.Undistort(px, py)
	}
	num := r.r2[0]*px + r.r2[1]*py + r.r2[2]*d + r.r2[3]
	den := r.r3[0]*px + r.r3[1]*py + r.r3[2]*d + r.r3[3]
	return num / den
}

// Resample fills a vertex grid from a filtered frame: each vertex takes
// the maximum elevation of the four depth pixels adjacent to its corner
// position, clamped to the domain's elevation band. The maximum biases
// toward the sand surface when a steep edge crosses the corner.
func (r *Resampler) Resample(frame *depth.FilteredFrame, dst *Grid) {
	sx := float64(r.frameW) / float64(r.gridW)
	sy := float64(r.frameH) / float64(r.gridH)
	for b := 0; b < dst.H; b++ {
		py := float64(b+1) * sy
		iy0 := clampi(int(py-0.5), 0, r.frameH-1)
		iy1 := clampi(iy0+1, 0, r.frameH-1)
		for a := 0; a < dst.W; a++ {
			px := float64(a+1) * sx
			ix0 := clampi(int(px-0.5), 0, r.frameW-1)
			ix1 := clampi(ix0+1, 0, r.frameW-1)

			e := r.Elevation(ix0, iy0, float64(frame.At(ix0, iy0)))
			if v := r.Elevation(ix1, iy0, float64(frame.At(ix1, iy0))); v > e {
				e = v
			}
			if v := r.Elevation(ix0, iy1, float64(frame.At(ix0, iy1))); v > e {
				e = v
			}
			if v := r.Elevation(ix1, iy1, float64(frame.At(ix1, iy1))); v > e {
				e = v
			}
			dst.Data[b*dst.W+a] = float32(r.domain.ClampZ(e))
		}
	}
}
