// Package sim implements the shallow-water solver driving the virtual
// water: bathymetry tracking the sanded surface, minmod-limited MUSCL
// reconstruction, central-upwind fluxes, and adaptive second-order
// Runge-Kutta stepping.
package sim

import "math"

// Grid is a single-float cell grid in row-major order.
type Grid struct {
	W, H int
	Data []float32
}

// NewGrid allocates a zeroed W by H grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]float32, w*h)}
}

// At returns the value at (x, y).
func (g *Grid) At(x, y int) float32 {
	return g.Data[y*g.W+x]
}

// Set stores a value at (x, y).
func (g *Grid) Set(x, y int, v float32) {
	g.Data[y*g.W+x] = v
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float32) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// CopyFrom copies another grid of the same dimensions.
func (g *Grid) CopyFrom(src *Grid) {
	copy(g.Data, src.Data)
}

// Min returns the smallest value in the grid, or +Inf when empty.
func (g *Grid) Min() float32 {
	m := float32(math.Inf(1))
	for _, v := range g.Data {
		if v < m {
			m = v
		}
	}
	return m
}

// StateGrid holds the conserved shallow-water quantities on a cell grid:
// the water surface W (bathymetry plus depth) and the discharges Hu, Hv.
type StateGrid struct {
	W, H       int
	Sw, Hu, Hv []float32
}

// NewStateGrid allocates a zeroed state grid.
func NewStateGrid(w, h int) *StateGrid {
	return &StateGrid{
		W:  w,
		H:  h,
		Sw: make([]float32, w*h),
		Hu: make([]float32, w*h),
		Hv: make([]float32, w*h),
	}
}

// Idx returns the flat index of (x, y).
func (q *StateGrid) Idx(x, y int) int {
	return y*q.W + x
}

// CopyFrom copies another state grid of the same dimensions.
func (q *StateGrid) CopyFrom(src *StateGrid) {
	copy(q.Sw, src.Sw)
	copy(q.Hu, src.Hu)
	copy(q.Hv, src.Hv)
}
