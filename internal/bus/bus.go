// Package bus implements the CPU-visible 16-bit address space: cartridge
// ROM/RAM routing, WRAM/HRAM storage, VRAM/OAM access locking (delegated to
// the PPU), and IE/IF storage. DIV and DMA writes are forwarded straight to
// the timer and PPU; the bus holds no latch for either.
package bus

import (
	"io"
	"os"

	"github.com/dmgcore/gbcore/internal/cart"
	"github.com/dmgcore/gbcore/internal/joypad"
	"github.com/dmgcore/gbcore/internal/ppu"
	"github.com/dmgcore/gbcore/internal/timer"
)

// Bus wires CPU-visible address space to the cartridge, WRAM, HRAM, PPU,
// timer, and joypad.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // 0xC000-0xDFFF, echoed at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ppu *ppu.PPU
	tmr *timer.Timer
	joy *joypad.Joypad

	ie    byte // 0xFFFF
	ifReg byte // 0xFF0F, lower 5 bits used

	sb byte      // 0xFF01
	sc byte      // 0xFF02, bit7 start, bit0 clock source
	sw io.Writer // optional serial output sink

	// soundRegs holds FF10-FF3F verbatim. No APU is modeled (Non-goal), but
	// register state is kept so games that write-then-read wave RAM or
	// channel registers see their own values reflected back.
	soundRegs [0x30]byte

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs a Bus with a cartridge selected from the ROM header.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	b.tmr = timer.New(func() { b.ifReg |= 1 << 2 })
	b.joy = joypad.New(func() { b.ifReg |= 1 << 4 })
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

// PPU exposes the PPU for the machine loop's frame presentation.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Cart exposes the cartridge for optional battery-RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// ReadUnrestricted bypasses VRAM/OAM access locks; used by the PPU's own
// OAM DMA copy.
func (b *Bus) ReadUnrestricted(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF, addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.Read(addr)
	default:
		return b.Read(addr)
	}
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		return b.wram[mirror-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // prohibited region
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joy.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tmr.DIV()
	case addr == 0xFF05:
		return b.tmr.TIMA()
	case addr == 0xFF06:
		return b.tmr.TMA()
	case addr == 0xFF07:
		return b.tmr.TAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return 0xFF // DMA source register is write-only in practice
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.soundRegs[addr-0xFF10]
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror >= 0xC000 && mirror <= 0xDDFF {
			b.wram[mirror-0xC000] = value
		}
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// prohibited region: writes dropped
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joy.WriteSelect(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= 1 << 3
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.tmr.WriteDIV()
	case addr == 0xFF05:
		b.tmr.WriteTIMA(value)
	case addr == 0xFF06:
		b.tmr.WriteTMA(value)
	case addr == 0xFF07:
		b.tmr.WriteTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.ppu.StartDMA(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.soundRegs[addr-0xFF10] = value
	case addr == 0xFFFF:
		b.ie = value
	}
}

func (b *Bus) Read16(addr uint16) uint16 {
	return uint16(b.Read(addr)) | uint16(b.Read(addr+1))<<8
}

func (b *Bus) Write16(addr uint16, v uint16) {
	b.Write(addr, byte(v))
	b.Write(addr+1, byte(v>>8))
}

// GetIF/SetIF/GetIE give the CPU's interrupt dispatch direct access
// to the raw 5-bit pending/enable registers without going through the
// address-decoded Read/Write (which mask IF's upper bits to 1 on read).
func (b *Bus) GetIF() byte  { return b.ifReg & 0x1F }
func (b *Bus) SetIF(v byte) { b.ifReg = v & 0x1F }
func (b *Bus) GetIE() byte  { return b.ie }

// SetJoypadState replaces the full pressed-button bitmask (joypad.Right,
// joypad.A, etc. — set bits mean pressed).
func (b *Bus) SetJoypadState(mask byte) { b.joy.SetState(mask) }

// AnyButtonSelectedPressed reports whether the CPU's STOP-wake condition
// (a button press under the currently selected line) holds.
func (b *Bus) AnyButtonSelectedPressed() bool { return b.joy.AnySelectedPressed() }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM mapped at 0x0000-0x00FF until a non-zero
// write to 0xFF50 disables the overlay.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// Tick advances the timer and PPU (and any active OAM DMA) by the given
// number of T-states (dots).
func (b *Bus) Tick(dots int) {
	if dots <= 0 {
		return
	}
	b.tmr.Tick(dots)
	b.ppu.Tick(dots, b)
}
