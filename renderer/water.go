package renderer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/grainlab/sandtable/sim"
)

// Depth at which the water overlay reaches full opacity.
const opaqueDepth = 1.0

// WaterRenderer draws the simulated water as a translucent overlay on the
// surface, alpha scaling with local depth up to a configured maximum.
type WaterRenderer struct {
	opacity    float32
	useShaders bool

	shader      rl.Shader
	opacityLoc  int32
	projLoc     int32
	shaderReady bool

	projector     rl.Matrix
	haveProjector bool

	tex        rl.Texture2D
	texW, texH int
	loaded     bool
	pixels     []color.RGBA
}

// NewWaterRenderer builds a water overlay with the given maximum opacity
// in [0,1].
func NewWaterRenderer(opacity float64, useShaders bool) *WaterRenderer {
	return &WaterRenderer{opacity: float32(opacity), useShaders: useShaders}
}

// SetOpacity adjusts the overlay's maximum alpha.
func (w *WaterRenderer) SetOpacity(v float64) {
	o := float32(v)
	if o < 0 {
		o = 0
	}
	if o > 1 {
		o = 1
	}
	w.opacity = o
}

// SetProjector installs the calibrated projector transform, applied in the
// fragment shader. Only effective on the shader path.
func (w *WaterRenderer) SetProjector(m rl.Matrix) {
	w.projector = m
	w.haveProjector = true
}

// Update rebuilds the overlay texture from the current solver state.
func (w *WaterRenderer) Update(solver *sim.Solver, bath *sim.Bathymetry) {
	q := solver.State()
	if !w.loaded || q.W != w.texW || q.H != w.texH {
		w.allocate(q.W, q.H)
	}
	maxA := w.opacity
	if w.useShaders {
		maxA = 1
	}
	for y := 0; y < q.H; y++ {
		for x := 0; x < q.W; x++ {
			i := y*q.W + x
			h := q.Sw[i] - bath.CellB(x, y)
			if h <= 0 {
				w.pixels[i] = color.RGBA{}
				continue
			}
			t := h / opaqueDepth
			if t > 1 {
				t = 1
			}
			a := uint8(t*maxA*255 + 0.5)
			// Premultiplied blue, darkening with depth.
			shade := uint8(200 - 80*t)
			w.pixels[i] = color.RGBA{
				R: uint8(float32(40) * t * maxA),
				G: uint8(float32(shade) * t * maxA / 2),
				B: uint8(float32(shade) * t * maxA),
				A: a,
			}
		}
	}
	rl.UpdateTexture(w.tex, w.pixels)
}

func (w *WaterRenderer) allocate(gw, gh int) {
	if w.loaded {
		rl.UnloadTexture(w.tex)
	}
	img := rl.GenImageColor(gw, gh, rl.Blank)
	w.tex = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	rl.SetTextureFilter(w.tex, rl.FilterBilinear)
	w.texW = gw
	w.texH = gh
	w.pixels = make([]color.RGBA, gw*gh)
	w.loaded = true
}

// Draw blends the water overlay into the destination rectangle.
func (w *WaterRenderer) Draw(dst rl.Rectangle) {
	if !w.loaded {
		return
	}
	src := rl.Rectangle{Width: float32(w.texW), Height: float32(w.texH)}
	if !w.useShaders {
		rl.DrawTexturePro(w.tex, src, dst, rl.Vector2{}, 0, rl.White)
		return
	}
	if !w.shaderReady {
		w.shader = rl.LoadShader("", "shaders/water.fs")
		w.opacityLoc = rl.GetShaderLocation(w.shader, "opacity")
		w.projLoc = rl.GetShaderLocation(w.shader, "projector")
		w.shaderReady = true
	}
	rl.SetShaderValue(w.shader, w.opacityLoc, []float32{w.opacity}, rl.ShaderUniformFloat)
	if w.haveProjector {
		rl.SetShaderValueMatrix(w.shader, w.projLoc, w.projector)
	}
	rl.BeginShaderMode(w.shader)
	rl.DrawTexturePro(w.tex, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndShaderMode()
}

// Unload frees GPU resources.
func (w *WaterRenderer) Unload() {
	if w.loaded {
		rl.UnloadTexture(w.tex)
		w.loaded = false
	}
	if w.shaderReady {
		rl.UnloadShader(w.shader)
		w.shaderReady = false
	}
}
