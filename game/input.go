package game

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/grainlab/sandtable/components"
)

// HandleInput processes one frame of keyboard and mouse input. Main
// thread only.
func (g *Game) HandleInput() {
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyTab) {
		g.showPanel = !g.showPanel
	}
	if rl.IsKeyPressed(rl.KeyD) {
		g.showDepth = !g.showDepth
	}
	if rl.IsKeyPressed(rl.KeyF12) {
		g.RequestSnapshot()
	}

	// Hold-to-rain over the whole domain.
	g.rain.SetGlobalRain(rl.IsKeyDown(rl.KeyR), float32(g.cfg.Rain.GlobalDeposit))

	if g.showPanel {
		// Clicks over the panel belong to the sliders.
		return
	}
	if rl.IsMouseButtonPressed(rl.MouseLeftButton) {
		cx, cy := g.mouseCell()
		g.SpawnManualEmitter(cx, cy, rl.IsKeyDown(rl.KeyLeftShift))
	}
	if rl.IsMouseButtonPressed(rl.MouseRightButton) {
		cx, cy := g.mouseCell()
		g.rain.Spawn(cx, cy, float32(g.cfg.Derived.GridW)/20,
			float32(-g.cfg.Rain.Strength), components.OriginManual, 2)
	}
}

// mouseCell maps the cursor to water-grid cell coordinates.
func (g *Game) mouseCell() (float32, float32) {
	pos := rl.GetMousePosition()
	cx := pos.X / float32(rl.GetScreenWidth()) * float32(g.cfg.Derived.GridW)
	cy := pos.Y / float32(rl.GetScreenHeight()) * float32(g.cfg.Derived.GridH)
	return cx, cy
}

// Draw renders the full frame: surface, water overlay, optional depth
// inset and the control panel.
func (g *Game) Draw() {
	screen := rl.Rectangle{
		Width:  float32(rl.GetScreenWidth()),
		Height: float32(rl.GetScreenHeight()),
	}

	g.surface.Update(g.table.Bathymetry())
	g.water.Update(g.table.Solver(), g.table.Bathymetry())

	g.surface.Draw(screen)
	g.water.Draw(screen)

	if g.showDepth {
		inset := rl.Rectangle{
			X:      screen.Width - screen.Width/4 - 10,
			Y:      10,
			Width:  screen.Width / 4,
			Height: screen.Height / 4,
		}
		g.depthView.Draw(inset)
	}
	if g.paused {
		rl.DrawText("PAUSED", 12, 12, 24, rl.Red)
	}
	if g.showPanel {
		g.drawPanel()
	}
}

// drawPanel renders the Tab-toggled runtime controls.
func (g *Game) drawPanel() {
	panelX := float32(20)
	panelY := float32(50)
	const sliderW = 260

	rl.DrawRectangle(int32(panelX)-10, int32(panelY)-10, sliderW+20, 200, rl.Fade(rl.Black, 0.5))
	rl.DrawText("Sandbox Controls", int32(panelX), int32(panelY), 20, rl.RayWhite)
	panelY += 35

	rl.DrawText("Water speed", int32(panelX), int32(panelY), 14, rl.LightGray)
	panelY += 18
	speed := gui.SliderBar(
		rl.Rectangle{X: panelX, Y: panelY, Width: sliderW, Height: 20},
		"0.1", "5.0",
		float32(g.table.Speed()), 0.1, 5.0,
	)
	if float64(speed) != g.table.Speed() {
		g.table.SetSpeed(float64(speed))
	}
	panelY += 30

	rl.DrawText("Attenuation", int32(panelX), int32(panelY), 14, rl.LightGray)
	panelY += 18
	att := gui.SliderBar(
		rl.Rectangle{X: panelX, Y: panelY, Width: sliderW, Height: 20},
		"0.0", "0.5",
		float32(g.cfg.Water.Attenuation), 0, 0.5,
	)
	if float64(att) != g.cfg.Water.Attenuation {
		g.cfg.Water.Attenuation = float64(att)
		g.table.SetAttenuation(float64(att))
	}
	panelY += 30

	rl.DrawText("Rain strength", int32(panelX), int32(panelY), 14, rl.LightGray)
	panelY += 18
	strength := gui.SliderBar(
		rl.Rectangle{X: panelX, Y: panelY, Width: sliderW, Height: 20},
		"0.0", "2.0",
		float32(g.cfg.Rain.Strength), 0, 2.0,
	)
	if float64(strength) != g.cfg.Rain.Strength {
		g.cfg.Rain.Strength = float64(strength)
	}
	panelY += 28
	rl.DrawText(fmt.Sprintf("emitters: %d", g.rain.Count()), int32(panelX), int32(panelY), 14, rl.LightGray)
}
