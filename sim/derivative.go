package sim

import "math"

// Params holds the physical and numerical solver parameters.
type Params struct {
	Gravity     float32 // Gravitational acceleration
	Theta       float32 // Minmod limiter parameter, in [1,2]
	CFL         float32 // Courant number for the per-cell step bound
	Epsilon     float32 // Desingularization scale; 0 derives it from the cell size
	Attenuation float64 // Fraction of momentum lost per second, in [0,1)
	DryBoundary bool    // Reset the one-cell outer ring to dry after each step
	Workers     int     // Row-parallel workers; 0 = GOMAXPROCS
}

// Solver advances the shallow-water state over the current bathymetry with
// a minmod-limited MUSCL reconstruction, central-upwind face fluxes, and a
// per-cell CFL step bound.
type Solver struct {
	w, h   int
	dx, dy float32
	p      Params
	eps4   float32

	bath *Bathymetry

	cur, star, next *StateGrid
	deriv           *StateGrid
	maxStep         *Grid

	pool *rowPool
}

// NewSolver builds a solver for a w by h cell grid with the given cell
// extents. The state starts dry (surface equal to the bathymetry's initial
// zero elevation).
func NewSolver(w, h int, dx, dy float64, bath *Bathymetry, p Params) *Solver {
	eps := p.Epsilon
	if eps <= 0 {
		eps = float32(0.01 * math.Max(math.Max(dx, dy), 1))
	}
	return &Solver{
		w:       w,
		h:       h,
		dx:      float32(dx),
		dy:      float32(dy),
		p:       p,
		eps4:    eps * eps * eps * eps,
		bath:    bath,
		cur:     NewStateGrid(w, h),
		star:    NewStateGrid(w, h),
		next:    NewStateGrid(w, h),
		deriv:   NewStateGrid(w, h),
		maxStep: NewGrid(w, h),
		pool:    newRowPool(p.Workers),
	}
}

// State exposes the current quantities for initialization and rendering.
func (s *Solver) State() *StateGrid { return s.cur }

// Depth returns the water column height at a cell, floored at zero.
func (s *Solver) Depth(x, y int) float32 {
	h := s.cur.Sw[y*s.w+x] - s.bath.CellB(x, y)
	if h < 0 {
		return 0
	}
	return h
}

// Close stops the worker pool.
func (s *Solver) Close() {
	s.pool.stop()
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

// minmod3 returns the minimum-magnitude value when all arguments share a
// sign, and zero otherwise.
func minmod3(a, b, c float32) float32 {
	if a > 0 && b > 0 && c > 0 {
		m := a
		if b < m {
			m = b
		}
		if c < m {
			m = c
		}
		return m
	}
	if a < 0 && b < 0 && c < 0 {
		m := a
		if b > m {
			m = b
		}
		if c > m {
			m = c
		}
		return m
	}
	return 0
}

// desingular computes flux/h with a smooth regularization that keeps the
// velocity bounded as h approaches zero.
func (s *Solver) desingular(h, flux float32) float32 {
	h2 := h * h
	h4 := h2 * h2
	m := h4
	if s.eps4 > m {
		m = s.eps4
	}
	return float32(math.Sqrt2) * h * flux / sqrt32(h4+m)
}

func (s *Solver) at(data []float32, x, y int) float32 {
	x = clampi(x, 0, s.w-1)
	y = clampi(y, 0, s.h-1)
	return data[y*s.w+x]
}

// slope computes the limited slope of a quantity at a cell from its two
// neighbors along one axis.
func (s *Solver) slope(qm, qc, qp float32) float32 {
	th := s.p.Theta
	return minmod3(th*(qc-qm), 0.5*(qp-qm), th*(qp-qc))
}

// faceState is one side of a reconstructed face.
type faceState struct {
	w, h, hu, hv, u, v float32
}

// reconstruct builds the face state of cell (x, y) toward a face with
// terrain elevation bf. side is +1 for the cell's east/north face and -1
// for west/south; axis selects the reconstruction direction.
func (s *Solver) reconstruct(q *StateGrid, x, y int, axisX bool, side, bf float32) faceState {
	var dxm, dym int
	if axisX {
		dxm = 1
	} else {
		dym = 1
	}
	wc := s.at(q.Sw, x, y)
	wm := s.at(q.Sw, x-dxm, y-dym)
	wp := s.at(q.Sw, x+dxm, y+dym)
	huc := s.at(q.Hu, x, y)
	hum := s.at(q.Hu, x-dxm, y-dym)
	hup := s.at(q.Hu, x+dxm, y+dym)
	hvc := s.at(q.Hv, x, y)
	hvm := s.at(q.Hv, x-dxm, y-dym)
	hvp := s.at(q.Hv, x+dxm, y+dym)

	var f faceState
	f.w = wc + side*0.5*s.slope(wm, wc, wp)
	f.hu = huc + side*0.5*s.slope(hum, huc, hup)
	f.hv = hvc + side*0.5*s.slope(hvm, hvc, hvp)

	f.h = f.w - bf
	if f.h < 0 {
		f.h = 0
	}
	// Recompute the discharges from the regularized velocities so they
	// stay consistent with the bounded u, v in thin films.
	f.u = s.desingular(f.h, f.hu)
	f.v = s.desingular(f.h, f.hv)
	f.hu = f.h * f.u
	f.hv = f.h * f.v
	return f
}

// faceFlux is a central-upwind numerical flux with its one-sided speeds.
type faceFlux struct {
	f0, f1, f2 float32
	ap, am     float32
}

// flux evaluates the central-upwind flux between a left and right face
// state. axisX selects whether u or v is the face-normal velocity.
func (s *Solver) flux(l, r faceState, axisX bool) faceFlux {
	g := s.p.Gravity
	cl := sqrt32(g * l.h)
	cr := sqrt32(g * r.h)

	var ul, ur float32
	if axisX {
		ul, ur = l.u, r.u
	} else {
		ul, ur = l.v, r.v
	}

	ap := ul + cl
	if v := ur + cr; v > ap {
		ap = v
	}
	if ap < 0 {
		ap = 0
	}
	am := ul - cl
	if v := ur - cr; v < am {
		am = v
	}
	if am > 0 {
		am = 0
	}

	var f faceFlux
	f.ap, f.am = ap, am
	ad := ap - am
	if ad < 1e-8 {
		return f
	}

	// Physical fluxes on both sides.
	var fl0, fl1, fl2, fr0, fr1, fr2 float32
	if axisX {
		fl0 = l.hu
		fl1 = l.hu*l.u + 0.5*g*l.h*l.h
		fl2 = l.hv * l.u
		fr0 = r.hu
		fr1 = r.hu*r.u + 0.5*g*r.h*r.h
		fr2 = r.hv * r.u
	} else {
		fl0 = l.hv
		fl1 = l.hu * l.v
		fl2 = l.hv*l.v + 0.5*g*l.h*l.h
		fr0 = r.hv
		fr1 = r.hu * r.v
		fr2 = r.hv*r.v + 0.5*g*r.h*r.h
	}

	diss := ap * am / ad
	f.f0 = (ap*fl0-am*fr0)/ad + diss*(r.w-l.w)
	f.f1 = (ap*fl1-am*fr1)/ad + diss*(r.hu-l.hu)
	f.f2 = (ap*fl2-am*fr2)/ad + diss*(r.hv-l.hv)
	return f
}

// fluxX evaluates the flux across the face between cells (xl, y) and
// (xl+1, y).
func (s *Solver) fluxX(q *StateGrid, xl, y int) faceFlux {
	bf := s.bath.FaceBX(xl, y)
	l := s.reconstruct(q, xl, y, true, 1, bf)
	r := s.reconstruct(q, xl+1, y, true, -1, bf)
	return s.flux(l, r, true)
}

// fluxY evaluates the flux across the face between cells (x, yl) and
// (x, yl+1).
func (s *Solver) fluxY(q *StateGrid, x, yl int) faceFlux {
	bf := s.bath.FaceBY(x, yl)
	l := s.reconstruct(q, x, yl, false, 1, bf)
	r := s.reconstruct(q, x, yl+1, false, -1, bf)
	return s.flux(l, r, false)
}

// computeDerivative fills the temporal derivative and the per-cell step
// bound from a source state. Boundary-ring cells get a zero derivative.
func (s *Solver) computeDerivative(q *StateGrid) {
	s.pool.run(s.h, func(y0, y1 int) {
		s.derivRows(q, y0, y1)
	})
}

func (s *Solver) derivRows(q *StateGrid, y0, y1 int) {
	g := s.p.Gravity
	inf := float32(math.Inf(1))
	minCell := s.dx
	if s.dy < minCell {
		minCell = s.dy
	}

	for y := y0; y < y1; y++ {
		for x := 0; x < s.w; x++ {
			i := y*s.w + x
			if x == 0 || y == 0 || x == s.w-1 || y == s.h-1 {
				s.deriv.Sw[i] = 0
				s.deriv.Hu[i] = 0
				s.deriv.Hv[i] = 0
				s.maxStep.Data[i] = inf
				continue
			}

			fe := s.fluxX(q, x, y)
			fw := s.fluxX(q, x-1, y)
			fn := s.fluxY(q, x, y)
			fs := s.fluxY(q, x, y-1)

			// Topography source, with the cell-mean depth floored at
			// zero so dry cells feel no pressure gradient.
			hbar := q.Sw[i] - s.bath.CellB(x, y)
			if hbar < 0 {
				hbar = 0
			}
			sx := -g * hbar * (s.bath.FaceBX(x, y) - s.bath.FaceBX(x-1, y)) / s.dx
			sy := -g * hbar * (s.bath.FaceBY(x, y) - s.bath.FaceBY(x, y-1)) / s.dy

			s.deriv.Sw[i] = (fw.f0-fe.f0)/s.dx + (fs.f0-fn.f0)/s.dy
			s.deriv.Hu[i] = (fw.f1-fe.f1)/s.dx + (fs.f1-fn.f1)/s.dy + sx
			s.deriv.Hv[i] = (fw.f2-fe.f2)/s.dx + (fs.f2-fn.f2)/s.dy + sy

			a := fe.ap
			for _, v := range [7]float32{-fe.am, fw.ap, -fw.am, fn.ap, -fn.am, fs.ap, -fs.am} {
				if v > a {
					a = v
				}
			}
			if a > 0 {
				s.maxStep.Data[i] = s.p.CFL * minCell / a
			} else {
				s.maxStep.Data[i] = inf
			}
		}
	}
}
