package game

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/grainlab/sandtable/components"
	"github.com/grainlab/sandtable/sim"
)

// RainRegistry keeps water emitters as ECS entities and paints them into
// the water table's source accumulator each simulation tick. Hands become
// short-lived emitters replaced on every detection; manual sources and the
// global rain key persist until removed.
type RainRegistry struct {
	world  *ecs.World
	mapper *ecs.Map3[components.Position, components.Emitter, components.Lifetime]
	filter *ecs.Filter3[components.Position, components.Emitter, components.Lifetime]

	table  *sim.WaterTable
	handle int

	globalEntity ecs.Entity
	globalActive bool

	toRemove []ecs.Entity
}

// NewRainRegistry creates the ECS world and registers the paint callback
// with the water table.
func NewRainRegistry(table *sim.WaterTable) *RainRegistry {
	world := ecs.NewWorld()
	r := &RainRegistry{
		world:  world,
		mapper: ecs.NewMap3[components.Position, components.Emitter, components.Lifetime](world),
		filter: ecs.NewFilter3[components.Position, components.Emitter, components.Lifetime](world),
		table:  table,
	}
	r.handle = table.AddRenderFunction(r.paint)
	return r
}

// Spawn adds an emitter at grid cell coordinates.
func (r *RainRegistry) Spawn(x, y, radius, rate float32, origin components.Origin, ttl float32) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	em := components.Emitter{Radius: radius, Rate: rate, Origin: origin}
	life := components.Lifetime{Remaining: ttl, Persistent: ttl <= 0}
	return r.mapper.NewEntity(&pos, &em, &life)
}

// ReplaceHandEmitters removes all hand-origin emitters and spawns fresh
// ones, one per detected hand.
func (r *RainRegistry) ReplaceHandEmitters(positions [][2]float32, radius, rate, ttl float32) {
	r.toRemove = r.toRemove[:0]
	query := r.filter.Query()
	for query.Next() {
		_, em, _ := query.Get()
		if em.Origin == components.OriginHand {
			r.toRemove = append(r.toRemove, query.Entity())
		}
	}
	for _, e := range r.toRemove {
		r.world.RemoveEntity(e)
	}
	for _, p := range positions {
		r.Spawn(p[0], p[1], radius, rate, components.OriginHand, ttl)
	}
}

// SetGlobalRain toggles the whole-domain rain emitter.
func (r *RainRegistry) SetGlobalRain(active bool, rate float32) {
	if active == r.globalActive {
		return
	}
	if active {
		r.globalEntity = r.Spawn(0, 0, 0, rate, components.OriginGlobal, 0)
	} else {
		r.world.RemoveEntity(r.globalEntity)
	}
	r.globalActive = active
}

// Update ages timed emitters and removes the expired ones.
func (r *RainRegistry) Update(dt float32) {
	r.toRemove = r.toRemove[:0]
	query := r.filter.Query()
	for query.Next() {
		_, _, life := query.Get()
		if life.Persistent {
			continue
		}
		life.Remaining -= dt
		if life.Remaining <= 0 {
			r.toRemove = append(r.toRemove, query.Entity())
		}
	}
	for _, e := range r.toRemove {
		r.world.RemoveEntity(e)
	}
}

// Count returns the number of live emitters.
func (r *RainRegistry) Count() int {
	n := 0
	query := r.filter.Query()
	for query.Next() {
		n++
	}
	return n
}

// paint renders every emitter footprint into the source accumulator.
func (r *RainRegistry) paint(grid *sim.Grid, dt float32) {
	query := r.filter.Query()
	for query.Next() {
		pos, em, _ := query.Get()
		dh := em.Rate * dt
		if em.Radius <= 0 {
			for i := range grid.Data {
				grid.Data[i] += dh
			}
			continue
		}
		r2 := em.Radius * em.Radius
		x0 := clampInt(int(pos.X-em.Radius), 0, grid.W-1)
		x1 := clampInt(int(pos.X+em.Radius)+1, 0, grid.W-1)
		y0 := clampInt(int(pos.Y-em.Radius), 0, grid.H-1)
		y1 := clampInt(int(pos.Y+em.Radius)+1, 0, grid.H-1)
		for y := y0; y <= y1; y++ {
			dy := float32(y) + 0.5 - pos.Y
			for x := x0; x <= x1; x++ {
				dx := float32(x) + 0.5 - pos.X
				if dx*dx+dy*dy <= r2 {
					grid.Data[y*grid.W+x] += dh
				}
			}
		}
	}
}

// Close unregisters the paint callback.
func (r *RainRegistry) Close() {
	r.table.RemoveRenderFunction(r.handle)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
