// Package components defines ECS components for water emitters.
package components

// Origin identifies what created an emitter.
type Origin uint8

const (
	OriginHand   Origin = iota // Spawned for a detected hand, replaced each detection
	OriginManual               // Placed by the user or the control pipe
	OriginGlobal               // Whole-domain rain
)

// Position is an emitter's location in water-grid cell coordinates.
type Position struct {
	X, Y float32
}

// Emitter paints water into its footprint every simulation tick.
type Emitter struct {
	Radius float32 // Footprint radius in cells; <= 0 covers the whole grid
	Rate   float32 // Depth added per second inside the footprint; negative drains
	Origin Origin
}

// Lifetime expires an emitter after a fixed time. Persistent emitters
// never expire.
type Lifetime struct {
	Remaining  float32 // Seconds until removal
	Persistent bool
}
