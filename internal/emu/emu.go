// Package emu wires the CPU, Bus, and cartridge into the machine loop: one
// StepFrame call runs CPU instructions until the PPU reports a completed
// frame, then renders the shade framebuffer into RGBA using the title's
// compatibility palette.
package emu

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmgcore/gbcore/internal/bus"
	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/cpu"
	"github.com/dmgcore/gbcore/internal/joypad"
)

// dmgFrameDuration is the DMG's native frame period, ~59.7275 Hz
// (4194304 clocks/sec / 70224 clocks/frame).
const dmgFrameDuration = time.Second * 70224 / 4194304

// Buttons is the host frontend's per-frame input snapshot.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= joypad.Right
	}
	if b.Left {
		m |= joypad.Left
	}
	if b.Up {
		m |= joypad.Up
	}
	if b.Down {
		m |= joypad.Down
	}
	if b.A {
		m |= joypad.A
	}
	if b.B {
		m |= joypad.B
	}
	if b.Select {
		m |= joypad.Select
	}
	if b.Start {
		m |= joypad.Start
	}
	return m
}

// Machine owns a loaded cartridge's CPU/Bus pair and the host-facing
// framebuffer.
type Machine struct {
	cfg Config

	b   *bus.Bus
	c   *cpu.CPU
	hdr *cart.Header

	w, h    int
	fb      []byte    // RGBA, w*h*4
	palette [4][3]byte

	maxStepsPerFrame int // backstop against a runaway loop with LCD off
	trace            io.Writer
	lastFrame        time.Time
}

// New constructs an unloaded Machine; call LoadCartridge before StepFrame.
func New(cfg Config) *Machine {
	m := &Machine{
		cfg:              cfg,
		w:                160,
		h:                144,
		fb:               make([]byte, 160*144*4),
		palette:          cgbCompatSets[0],
		maxStepsPerFrame: 1 << 20,
	}
	if cfg.Trace {
		m.trace = os.Stderr
	}
	return m
}

// LoadCartridge parses the ROM header, constructs the bus/cartridge/CPU, and
// optionally maps a boot ROM at 0x0000 until its 0xFF50 write disables it.
// With no boot ROM, the CPU starts from the documented post-boot register
// state instead (ResetNoBoot).
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	hdr, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parse cartridge header: %w", err)
	}
	m.hdr = hdr
	m.b = bus.New(rom)
	m.c = cpu.New(m.b)
	if len(boot) > 0 {
		m.b.SetBootROM(boot)
	} else {
		m.c.ResetNoBoot()
	}
	if id, ok := autoCompatPaletteFromHeader(hdr); ok {
		m.palette = cgbCompatSets[id%len(cgbCompatSets)]
	}
	return nil
}

// LoadBatteryRAM restores persisted external RAM (a .sav payload) into a
// battery-backed cartridge, if the loaded cartridge supports it.
func (m *Machine) LoadBatteryRAM(data []byte) {
	if bb, ok := m.b.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
	}
}

// SaveBatteryRAM returns the cartridge's external RAM contents for
// persistence, or nil if the cartridge has none.
func (m *Machine) SaveBatteryRAM() []byte {
	if bb, ok := m.b.Cart().(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// SetButtons replaces the current pressed-button state for the next
// StepFrame's joypad reads.
func (m *Machine) SetButtons(b Buttons) {
	if m.b != nil {
		m.b.SetJoypadState(b.mask())
	}
}

// Err reports a fatal CPU condition (currently only an illegal opcode
// fetch), or nil if the machine is running normally.
func (m *Machine) Err() error {
	if m.c == nil {
		return nil
	}
	return m.c.Err
}

// StepFrame runs CPU instructions until the PPU completes one frame (or the
// CPU latches a fatal error, or the step backstop trips because the LCD is
// off and no VBlank will ever occur), then renders the framebuffer.
func (m *Machine) StepFrame() {
	if m.c == nil {
		return
	}
	for i := 0; i < m.maxStepsPerFrame; i++ {
		if m.c.Err != nil {
			return
		}
		if m.trace != nil {
			fmt.Fprintf(m.trace, "PC=%04X SP=%04X AF=%04X BC=%04X DE=%04X HL=%04X IME=%v\n",
				m.c.PC, m.c.SP, m.c.AF(), m.c.BC(), m.c.DE(), m.c.HL(), m.c.IME)
		}
		m.c.Step()
		if m.b.PPU().ConsumeFrameReady() {
			break
		}
	}
	m.render()
	if m.cfg.LimitFPS {
		if wait := dmgFrameDuration - time.Since(m.lastFrame); wait > 0 {
			time.Sleep(wait)
		}
		m.lastFrame = time.Now()
	}
}

func (m *Machine) render() {
	shades := m.b.PPU().Framebuffer()
	for i, shade := range shades {
		rgb := m.palette[shade&0x03]
		o := i * 4
		m.fb[o+0] = rgb[0]
		m.fb[o+1] = rgb[1]
		m.fb[o+2] = rgb[2]
		m.fb[o+3] = 0xFF
	}
}

// Framebuffer returns the current RGBA frame, row-major, 160x144.
func (m *Machine) Framebuffer() []byte { return m.fb }

// CPU/Bus expose the wired components for tools that need lower-level
// access (the blargg-style test runner, the boot-ROM CLI flag).
func (m *Machine) CPU() *cpu.CPU { return m.c }
func (m *Machine) Bus() *bus.Bus { return m.b }

// Title returns the cartridge's header title, or "" if unloaded.
func (m *Machine) Title() string {
	if m.hdr == nil {
		return ""
	}
	return m.hdr.Title
}
