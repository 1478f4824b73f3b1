package sim

import "math"

// Step advances the state by one adaptive RK2 (Heun) step. The step size
// is the minimum per-cell CFL bound, capped at maxDt; the taken step is
// returned. Momentum is attenuated by the configured per-second fraction,
// depth is floored at zero, and with DryBoundary the outer ring is reset
// to a dry state after each stage.
func (s *Solver) Step(maxDt float32) float32 {
	s.computeDerivative(s.cur)
	dt := s.maxStep.Min()
	if dt > maxDt {
		dt = maxDt
	}
	att := float32(math.Pow(1-s.p.Attenuation, float64(dt)))

	// Euler predictor.
	s.pool.run(s.h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < s.w; x++ {
				i := y*s.w + x
				s.star.Sw[i] = s.cur.Sw[i] + dt*s.deriv.Sw[i]
				s.star.Hu[i] = (s.cur.Hu[i] + dt*s.deriv.Hu[i]) * att
				s.star.Hv[i] = (s.cur.Hv[i] + dt*s.deriv.Hv[i]) * att
			}
			s.clampRow(s.star, y)
		}
	})
	if s.p.DryBoundary {
		s.dryRing(s.star)
	}

	// Corrector.
	s.computeDerivative(s.star)
	s.pool.run(s.h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < s.w; x++ {
				i := y*s.w + x
				s.next.Sw[i] = 0.5*(s.cur.Sw[i]+s.star.Sw[i]) + 0.5*dt*s.deriv.Sw[i]
				s.next.Hu[i] = (0.5*(s.cur.Hu[i]+s.star.Hu[i]) + 0.5*dt*s.deriv.Hu[i]) * att
				s.next.Hv[i] = (0.5*(s.cur.Hv[i]+s.star.Hv[i]) + 0.5*dt*s.deriv.Hv[i]) * att
			}
			s.clampRow(s.next, y)
		}
	})
	if s.p.DryBoundary {
		s.dryRing(s.next)
	}

	s.cur, s.next = s.next, s.cur
	return dt
}

// clampRow floors the water surface at the terrain: a cell whose depth
// would go negative is set dry with zero discharge.
func (s *Solver) clampRow(q *StateGrid, y int) {
	for x := 0; x < s.w; x++ {
		i := y*s.w + x
		b := s.bath.CellB(x, y)
		if q.Sw[i] < b {
			q.Sw[i] = b
			q.Hu[i] = 0
			q.Hv[i] = 0
		}
	}
}

// dryRing sets the one-cell outer boundary to a dry state consistent with
// the terrain.
func (s *Solver) dryRing(q *StateGrid) {
	setDry := func(x, y int) {
		i := y*s.w + x
		q.Sw[i] = s.bath.CellB(x, y)
		q.Hu[i] = 0
		q.Hv[i] = 0
	}
	for x := 0; x < s.w; x++ {
		setDry(x, 0)
		setDry(x, s.h-1)
	}
	for y := 1; y < s.h-1; y++ {
		setDry(0, y)
		setDry(s.w-1, y)
	}
}
