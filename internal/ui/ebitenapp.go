// Package ui hosts the windowed ebiten frontend: input, framebuffer blit,
// and the window lifecycle. ROM selection, battery persistence, and
// headless mode live in cmd/gbemu; App only drives one already
// loaded Machine.
package ui

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/dmgcore/gbcore/internal/emu"
)

// App implements ebiten.Game around a single loaded Machine.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image
}

// NewApp wraps an already-loaded Machine for windowed play.
func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	title := cfg.Title
	if t := m.Title(); t != "" {
		title = cfg.Title + " - " + t
	}
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return &App{cfg: cfg, m: m, tex: ebiten.NewImage(160, 144)}
}

// Run blocks until the window is closed or the machine latches a fatal error.
func (a *App) Run() error { return ebiten.RunGame(a) }

// Update reads keyboard state into joypad buttons and steps one frame.
func (a *App) Update() error {
	if err := a.m.Err(); err != nil {
		return fmt.Errorf("machine halted: %w", err)
	}
	a.m.SetButtons(emu.Buttons{
		Right:  ebiten.IsKeyPressed(ebiten.KeyRight),
		Left:   ebiten.IsKeyPressed(ebiten.KeyLeft),
		Up:     ebiten.IsKeyPressed(ebiten.KeyUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyDown),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
	})
	a.m.StepFrame()
	return nil
}

// Draw blits the machine's RGBA framebuffer into the window.
func (a *App) Draw(screen *ebiten.Image) {
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)
}

// Layout keeps the internal resolution fixed at the DMG's native size;
// ebiten scales it to fill whatever window size the player picks.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 160, 144
}
