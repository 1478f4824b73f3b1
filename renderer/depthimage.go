package renderer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/grainlab/sandtable/depth"
)

// DepthImage holds the latest filtered depth frame and mirrors it into a
// GPU texture on demand. Uploads are version-gated: Bind only touches the
// GPU when a newer frame arrived since the last upload.
type DepthImage struct {
	tex    rl.Texture2D
	texW   int
	texH   int
	loaded bool

	frame      *depth.FilteredFrame
	version    uint64
	gpuVersion uint64
	haveFrame  bool

	zmin, zmax float32
	pixels     []color.RGBA
}

// NewDepthImage creates a renderer for frames normalized to the given
// depth band.
func NewDepthImage(zmin, zmax float32) *DepthImage {
	return &DepthImage{zmin: zmin, zmax: zmax}
}

// SetFrame replaces the current image. Frames older than the resident one
// are refused so a slow pipeline stage cannot roll the display back.
func (d *DepthImage) SetFrame(f *depth.FilteredFrame, version uint64) bool {
	if d.haveFrame && version <= d.version {
		return false
	}
	d.frame = f
	d.version = version
	d.haveFrame = true
	return true
}

// Version returns the version of the resident frame.
func (d *DepthImage) Version() uint64 { return d.version }

// Bind lazily uploads the current frame and returns its texture. The
// zero texture is returned while no frame has arrived.
func (d *DepthImage) Bind() rl.Texture2D {
	if !d.haveFrame {
		return d.tex
	}
	if !d.loaded || d.frame.Width != d.texW || d.frame.Height != d.texH {
		d.allocate(d.frame.Width, d.frame.Height)
	}
	if d.gpuVersion != d.version {
		d.upload()
		d.gpuVersion = d.version
	}
	return d.tex
}

func (d *DepthImage) allocate(w, h int) {
	if d.loaded {
		rl.UnloadTexture(d.tex)
	}
	img := rl.GenImageColor(w, h, rl.Black)
	d.tex = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	rl.SetTextureFilter(d.tex, rl.FilterBilinear)
	d.texW = w
	d.texH = h
	d.pixels = make([]color.RGBA, w*h)
	d.loaded = true
	d.gpuVersion = d.version - 1
}

// upload converts the frame to grayscale, normalizing depth over the
// configured band.
func (d *DepthImage) upload() {
	span := d.zmax - d.zmin
	if span <= 0 {
		span = 1
	}
	for i, v := range d.frame.Pix {
		t := (v - d.zmin) / span
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		g := uint8(t*254 + 0.5)
		d.pixels[i] = color.RGBA{R: g, G: g, B: g, A: 255}
	}
	rl.UpdateTexture(d.tex, d.pixels)
}

// Draw blits the depth image into the destination rectangle.
func (d *DepthImage) Draw(dst rl.Rectangle) {
	tex := d.Bind()
	if !d.loaded {
		return
	}
	src := rl.Rectangle{Width: float32(d.texW), Height: float32(d.texH)}
	rl.DrawTexturePro(tex, src, dst, rl.Vector2{}, 0, rl.White)
}

// Unload frees the GPU texture.
func (d *DepthImage) Unload() {
	if d.loaded {
		rl.UnloadTexture(d.tex)
		d.loaded = false
	}
}
