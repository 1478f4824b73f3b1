package renderer

import (
	"image/color"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/grainlab/sandtable/calib"
	"github.com/grainlab/sandtable/sim"
)

// SurfaceRenderer draws the sand topography: bathymetry elevations run
// through the color map, with optional contour lines. With shaders enabled
// the elevation field is uploaded raw and the color map plus contours are
// applied in a fragment shader; otherwise the composite is built on the CPU.
type SurfaceRenderer struct {
	cmap            *calib.ColorMap
	contourInterval float32
	useShaders      bool

	shader      rl.Shader
	lutTex      rl.Texture2D
	elevLoc     int32
	contourLoc  int32
	lutLoc      int32
	projLoc     int32
	shaderReady bool

	projector     rl.Matrix
	haveProjector bool

	tex        rl.Texture2D
	texW, texH int
	loaded     bool

	pixels     []color.RGBA
	gpuVersion uint64
	haveGPU    bool
}

// NewSurfaceRenderer builds a renderer over the given color map. A zero
// contour interval disables contour lines.
func NewSurfaceRenderer(cmap *calib.ColorMap, contourInterval float64, useShaders bool) *SurfaceRenderer {
	return &SurfaceRenderer{
		cmap:            cmap,
		contourInterval: float32(contourInterval),
		useShaders:      useShaders,
	}
}

// SetColorMap swaps the elevation palette. The next Update rebuilds the
// surface with the new colors.
func (s *SurfaceRenderer) SetColorMap(cmap *calib.ColorMap) {
	s.cmap = cmap
	s.haveGPU = false
	if s.shaderReady {
		rl.UnloadTexture(s.lutTex)
		s.lutTex = s.buildLUT()
	}
}

// Update re-uploads the surface when the bathymetry advanced past the
// resident version.
func (s *SurfaceRenderer) Update(bath *sim.Bathymetry) {
	if s.haveGPU && bath.Version() == s.gpuVersion {
		return
	}
	grid := bath.Current()
	if !s.loaded || grid.W != s.texW || grid.H != s.texH {
		s.allocate(grid.W, grid.H)
	}
	if s.useShaders {
		s.uploadElevation(grid)
	} else {
		s.composite(grid)
	}
	rl.UpdateTexture(s.tex, s.pixels)
	s.gpuVersion = bath.Version()
	s.haveGPU = true
}

func (s *SurfaceRenderer) allocate(w, h int) {
	if s.loaded {
		rl.UnloadTexture(s.tex)
	}
	img := rl.GenImageColor(w, h, rl.Black)
	s.tex = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	rl.SetTextureFilter(s.tex, rl.FilterBilinear)
	s.texW = w
	s.texH = h
	s.pixels = make([]color.RGBA, w*h)
	s.loaded = true
}

// uploadElevation packs elevation normalized over the map range into the
// R and G channels, 16 bits total, for the fragment shader to decode.
func (s *SurfaceRenderer) uploadElevation(grid *sim.Grid) {
	lo, hi := s.cmap.Range()
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for i, v := range grid.Data {
		t := (float64(v) - lo) / span
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		q := uint16(t * 65535)
		s.pixels[i] = color.RGBA{R: uint8(q >> 8), G: uint8(q & 0xff), B: 0, A: 255}
	}
}

// composite applies the color map and contour lines on the CPU.
func (s *SurfaceRenderer) composite(grid *sim.Grid) {
	for i, v := range grid.Data {
		c := s.cmap.Sample(float64(v))
		if s.contourInterval > 0 && s.nearContour(float64(v), grid, i) {
			c = [4]uint8{c[0] / 3, c[1] / 3, c[2] / 3, c[3]}
		}
		s.pixels[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
}

// nearContour reports whether a contour level passes between this cell and
// its east or south neighbor.
func (s *SurfaceRenderer) nearContour(v float64, grid *sim.Grid, i int) bool {
	step := float64(s.contourInterval)
	x := i % grid.W
	y := i / grid.W
	level := math.Floor(v / step)
	if x+1 < grid.W && math.Floor(float64(grid.Data[i+1])/step) != level {
		return true
	}
	if y+1 < grid.H && math.Floor(float64(grid.Data[i+grid.W])/step) != level {
		return true
	}
	return false
}

// buildLUT renders the color map into a 256x1 lookup texture.
func (s *SurfaceRenderer) buildLUT() rl.Texture2D {
	lo, hi := s.cmap.Range()
	img := rl.GenImageColor(256, 1, rl.Black)
	tex := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	lut := make([]color.RGBA, 256)
	for i := range lut {
		e := lo + (hi-lo)*float64(i)/255
		c := s.cmap.Sample(e)
		lut[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	rl.UpdateTexture(tex, lut)
	rl.SetTextureFilter(tex, rl.FilterBilinear)
	return tex
}

// SetProjector installs the calibrated projector transform, applied in the
// fragment shader. Only effective on the shader path.
func (s *SurfaceRenderer) SetProjector(m rl.Matrix) {
	s.projector = m
	s.haveProjector = true
}

func (s *SurfaceRenderer) initShader() {
	s.shader = rl.LoadShader("", "shaders/surface.fs")
	s.elevLoc = rl.GetShaderLocation(s.shader, "elevRange")
	s.contourLoc = rl.GetShaderLocation(s.shader, "contourInterval")
	s.lutLoc = rl.GetShaderLocation(s.shader, "colorMap")
	s.projLoc = rl.GetShaderLocation(s.shader, "projector")
	s.lutTex = s.buildLUT()
	s.shaderReady = true
}

// Draw blits the surface into the destination rectangle.
func (s *SurfaceRenderer) Draw(dst rl.Rectangle) {
	if !s.loaded {
		return
	}
	src := rl.Rectangle{Width: float32(s.texW), Height: float32(s.texH)}
	if !s.useShaders {
		rl.DrawTexturePro(s.tex, src, dst, rl.Vector2{}, 0, rl.White)
		return
	}
	if !s.shaderReady {
		s.initShader()
	}
	lo, hi := s.cmap.Range()
	rl.SetShaderValue(s.shader, s.elevLoc, []float32{float32(lo), float32(hi)}, rl.ShaderUniformVec2)
	rl.SetShaderValue(s.shader, s.contourLoc, []float32{s.contourInterval}, rl.ShaderUniformFloat)
	rl.SetShaderValueTexture(s.shader, s.lutLoc, s.lutTex)
	if s.haveProjector {
		rl.SetShaderValueMatrix(s.shader, s.projLoc, s.projector)
	}
	rl.BeginShaderMode(s.shader)
	rl.DrawTexturePro(s.tex, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndShaderMode()
}

// Unload frees GPU resources.
func (s *SurfaceRenderer) Unload() {
	if s.loaded {
		rl.UnloadTexture(s.tex)
		s.loaded = false
	}
	if s.shaderReady {
		rl.UnloadShader(s.shader)
		rl.UnloadTexture(s.lutTex)
		s.shaderReady = false
	}
}
