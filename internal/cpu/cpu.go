// Package cpu implements the Sharp LR35902 instruction decoder and
// executor: the full unprefixed and CB-prefixed opcode tables, interrupt
// dispatch, and the HALT/STOP low-power states.
package cpu

import (
	"fmt"

	"github.com/dmgcore/gbcore/internal/alu"
	"github.com/dmgcore/gbcore/internal/bmi"
	"github.com/dmgcore/gbcore/internal/bus"
	"github.com/dmgcore/gbcore/internal/idu"
	"github.com/dmgcore/gbcore/internal/register"
)

// IllegalOpcodeError reports one of the eleven opcodes the SM83 never
// defines (D3 DB DD E3 E4 EB EC ED F4 FC FD). Real hardware locks up when it
// fetches one; this core treats it as a fatal, recorded condition instead of
// silently treating it as a NOP.
type IllegalOpcodeError struct {
	Opcode byte
	PC     uint16
}

func (e *IllegalOpcodeError) Error() string {
	return fmt.Sprintf("illegal opcode %02x at %04x", e.Opcode, e.PC)
}

// CPU executes the SM83 instruction set against a Bus.
type CPU struct {
	register.File

	halted  bool
	stopped bool
	// stoppedPrev is the joypad "any selected button pressed" level sampled
	// on the previous Step while stopped; STOP wakes on its rising edge.
	stoppedPrev bool

	// Err is set once an illegal opcode is fetched. Step stops executing
	// instructions (but keeps ticking peripherals) once this is non-nil.
	Err error

	bus *bus.Bus
}

// New creates a CPU with SP=0xFFFE and PC=0x0000, ready for a boot ROM or ResetNoBoot.
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, File: register.File{SP: 0xFFFE, PC: 0x0000}}
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// Halted reports whether the CPU is in the HALT low-power state.
func (c *CPU) Halted() bool { return c.halted }

// ResetNoBoot sets registers to the documented DMG post-boot state, for use
// when running without a boot ROM.
func (c *CPU) ResetNoBoot() {
	c.File.Reset()
	c.halted = false
	c.stopped = false
	c.Err = nil
}

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | (hi << 8)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := uint16(c.read8(addr))
	hi := uint16(c.read8(addr + 1))
	return lo | (hi << 8)
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v&0x00FF))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

func (c *CPU) applyAdd(r alu.Result8) { c.A = r.Val; c.SetFlags(r.Z, r.N, r.H, r.C) }

// isIllegalOpcode reports the eleven unused SM83 opcodes.
func isIllegalOpcode(op byte) bool {
	switch op {
	case 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		return true
	}
	return false
}

// Step executes one instruction (or services a pending interrupt, or
// advances HALT/STOP) and returns the number of T-states consumed. The bus
// (and through it, the PPU/timer) is ticked by that many T-states before
// Step returns.
func (c *CPU) Step() (cycles int) {
	defer func() {
		if c.bus != nil && cycles > 0 {
			c.bus.Tick(cycles)
		}
	}()

	if c.Err != nil {
		return 4
	}

	if c.stopped {
		cur := c.bus.AnyButtonSelectedPressed()
		if cur && !c.stoppedPrev {
			c.stopped = false
		} else {
			c.stoppedPrev = cur
			return 4
		}
	}

	if c.halted {
		if c.IME {
			if cyc := c.serviceInterrupt(); cyc != 0 {
				return cyc
			}
			return 4 // still halted, nothing pending yet
		}
		ifReg := c.bus.GetIF()
		ie := c.bus.GetIE()
		if (ifReg & ie & 0x1F) != 0 {
			c.halted = false
		} else {
			return 4
		}
	}

	if c.IME {
		if cyc := c.serviceInterrupt(); cyc != 0 {
			return cyc
		}
	}

	opPC := c.PC
	op := c.fetch8()
	if isIllegalOpcode(op) {
		c.Err = &IllegalOpcodeError{Opcode: op, PC: opPC}
		return 4
	}
	return c.execute(op)
}

// serviceInterrupt dispatches the highest-priority pending, enabled
// interrupt. Returns 0 if none is pending.
func (c *CPU) serviceInterrupt() int {
	ie := c.bus.GetIE()
	ifReg := c.bus.GetIF()
	pending := ie & ifReg & 0x1F
	if pending == 0 {
		return 0
	}
	var bit uint
	for bit = 0; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			break
		}
	}
	c.bus.SetIF(ifReg &^ (1 << bit))
	c.halted = false
	c.IME = false
	c.push16(c.PC)
	c.PC = 0x40 + uint16(bit)*8
	return 20
}

func (c *CPU) getReg(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.HL())
	default:
		return c.A
	}
}

func (c *CPU) setReg(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.HL(), v)
	default:
		c.A = v
	}
}

// execute decodes and runs a single unprefixed opcode. Split out of Step so
// illegal-opcode and interrupt/HALT/STOP bookkeeping stays out of the
// dispatch table.
func (c *CPU) execute(op byte) (cycles int) {
	switch op {
	case 0x00: // NOP
		return 4
	case 0x10: // STOP
		c.fetch8() // the mandatory (and ignored) second byte
		c.bus.Write(0xFF04, 0) // STOP resets DIV
		c.stopped = true
		c.stoppedPrev = c.bus.AnyButtonSelectedPressed()
		return 4

	// LD r,d8
	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x3E:
		c.setReg((op>>3)&7, c.fetch8())
		return 8

	// LD r,r' / LD (HL),r / LD r,(HL) / HALT
	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47,
		0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F,
		0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57,
		0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F,
		0x60, 0x61, 0x62, 0x63, 0x64, 0x65, 0x66, 0x67,
		0x68, 0x69, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F,
		0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		d := (op >> 3) & 7
		s := op & 7
		c.setReg(d, c.getReg(s))
		if d == 6 || s == 6 {
			return 8
		}
		return 4
	case 0x76: // HALT
		c.halted = true
		return 4

	// 16-bit loads
	case 0x01:
		c.SetBC(c.fetch16())
		return 12
	case 0x11:
		c.SetDE(c.fetch16())
		return 12
	case 0x21:
		c.SetHL(c.fetch16())
		return 12
	case 0x31:
		c.SP = c.fetch16()
		return 12
	case 0x08: // LD (a16),SP
		addr := c.fetch16()
		c.write16(addr, c.SP)
		return 20

	case 0x36: // LD (HL),d8
		c.write8(c.HL(), c.fetch8())
		return 12

	case 0x02:
		c.write8(c.BC(), c.A)
		return 8
	case 0x12:
		c.write8(c.DE(), c.A)
		return 8
	case 0x0A:
		c.A = c.read8(c.BC())
		return 8
	case 0x1A:
		c.A = c.read8(c.DE())
		return 8

	case 0x22: // LD (HL+),A
		hl := c.HL()
		c.write8(hl, c.A)
		c.SetHL(hl + 1)
		return 8
	case 0x2A: // LD A,(HL+)
		hl := c.HL()
		c.A = c.read8(hl)
		c.SetHL(hl + 1)
		return 8
	case 0x32: // LD (HL-),A
		hl := c.HL()
		c.write8(hl, c.A)
		c.SetHL(hl - 1)
		return 8
	case 0x3A: // LD A,(HL-)
		hl := c.HL()
		c.A = c.read8(hl)
		c.SetHL(hl - 1)
		return 8

	case 0xE0: // LDH (FF00+n),A
		n := uint16(c.fetch8())
		c.write8(0xFF00+n, c.A)
		return 12
	case 0xF0: // LDH A,(FF00+n)
		n := uint16(c.fetch8())
		c.A = c.read8(0xFF00 + n)
		return 12
	case 0xE2: // LD (FF00+C),A
		c.write8(0xFF00+uint16(c.C), c.A)
		return 8
	case 0xF2: // LD A,(FF00+C)
		c.A = c.read8(0xFF00 + uint16(c.C))
		return 8

	case 0x07: // RLCA
		r := bmi.Rlc(c.A)
		c.A = r.Val
		c.SetFlags(false, false, false, r.C)
		return 4
	case 0x0F: // RRCA
		r := bmi.Rrc(c.A)
		c.A = r.Val
		c.SetFlags(false, false, false, r.C)
		return 4
	case 0x17: // RLA
		r := bmi.Rl(c.A, c.FlagC())
		c.A = r.Val
		c.SetFlags(false, false, false, r.C)
		return 4
	case 0x1F: // RRA
		r := bmi.Rr(c.A, c.FlagC())
		c.A = r.Val
		c.SetFlags(false, false, false, r.C)
		return 4
	case 0x27: // DAA
		r := alu.DAA(c.A, c.FlagN(), c.FlagH(), c.FlagC())
		c.A = r.Val
		c.SetFlags(r.Z, r.N, false, r.C)
		return 4
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = (c.F & (register.FlagZ | register.FlagC)) | register.FlagN | register.FlagH
		return 4
	case 0x37: // SCF
		c.F = (c.F & register.FlagZ) | register.FlagC
		return 4
	case 0x3F: // CCF
		c.SetFlags(c.FlagZ(), false, false, !c.FlagC())
		return 4

	// INC r / DEC r / INC (HL) / DEC (HL)
	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C:
		idx := (op >> 3) & 7
		r := idu.Inc8(c.getReg(idx))
		c.setReg(idx, r.Val)
		c.SetFlags(r.Z, r.N, r.H, c.FlagC())
		if idx == 6 {
			return 12
		}
		return 4
	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D:
		idx := (op >> 3) & 7
		r := idu.Dec8(c.getReg(idx))
		c.setReg(idx, r.Val)
		c.SetFlags(r.Z, r.N, r.H, c.FlagC())
		if idx == 6 {
			return 12
		}
		return 4

	// ADD/ADC/SUB/SBC/AND/XOR/OR/CP A,r and A,(HL)
	case 0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87:
		c.applyAdd(alu.Add8(c.A, c.getReg(op&7)))
		return cyclesFor(op)
	case 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F:
		c.applyAdd(alu.Adc8(c.A, c.getReg(op&7), c.FlagC()))
		return cyclesFor(op)
	case 0x90, 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97:
		c.applyAdd(alu.Sub8(c.A, c.getReg(op&7)))
		return cyclesFor(op)
	case 0x98, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F:
		c.applyAdd(alu.Sbc8(c.A, c.getReg(op&7), c.FlagC()))
		return cyclesFor(op)
	case 0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7:
		c.applyAdd(alu.And8(c.A, c.getReg(op&7)))
		return cyclesFor(op)
	case 0xA8, 0xA9, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF:
		c.applyAdd(alu.Xor8(c.A, c.getReg(op&7)))
		return cyclesFor(op)
	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		c.applyAdd(alu.Or8(c.A, c.getReg(op&7)))
		return cyclesFor(op)
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		r := alu.Cp8(c.A, c.getReg(op&7))
		c.SetFlags(r.Z, r.N, r.H, r.C)
		return cyclesFor(op)

	// ALU immediate
	case 0xC6:
		c.applyAdd(alu.Add8(c.A, c.fetch8()))
		return 8
	case 0xCE:
		c.applyAdd(alu.Adc8(c.A, c.fetch8(), c.FlagC()))
		return 8
	case 0xD6:
		c.applyAdd(alu.Sub8(c.A, c.fetch8()))
		return 8
	case 0xDE:
		c.applyAdd(alu.Sbc8(c.A, c.fetch8(), c.FlagC()))
		return 8
	case 0xE6:
		c.applyAdd(alu.And8(c.A, c.fetch8()))
		return 8
	case 0xEE:
		c.applyAdd(alu.Xor8(c.A, c.fetch8()))
		return 8
	case 0xF6:
		c.applyAdd(alu.Or8(c.A, c.fetch8()))
		return 8
	case 0xFE:
		r := alu.Cp8(c.A, c.fetch8())
		c.SetFlags(r.Z, r.N, r.H, r.C)
		return 8

	case 0xEA: // LD (a16),A
		c.write8(c.fetch16(), c.A)
		return 16
	case 0xFA: // LD A,(a16)
		c.A = c.read8(c.fetch16())
		return 16

	case 0xC3: // JP a16
		c.PC = c.fetch16()
		return 16
	case 0xE9: // JP (HL)
		c.PC = c.HL()
		return 4
	case 0x18: // JR r8
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
		return 12
	case 0x20, 0x28, 0x30, 0x38: // JR cc,r8
		off := int8(c.fetch8())
		if c.condition(op) {
			c.PC = uint16(int32(c.PC) + int32(off))
			return 12
		}
		return 8

	case 0xCD: // CALL a16
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
		return 24
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,a16
		addr := c.fetch16()
		if c.condition(op) {
			c.push16(c.PC)
			c.PC = addr
			return 24
		}
		return 12
	case 0xC9: // RET
		c.PC = c.pop16()
		return 16
	case 0xD9: // RETI
		c.PC = c.pop16()
		c.IME = true
		return 16
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if c.condition(op) {
			c.PC = c.pop16()
			return 20
		}
		return 8
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,a16
		addr := c.fetch16()
		if c.condition(op) {
			c.PC = addr
			return 16
		}
		return 12

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST t
		c.push16(c.PC)
		c.PC = uint16(op & 0x38)
		return 16

	case 0x03:
		c.SetBC(c.BC() + 1)
		return 8
	case 0x13:
		c.SetDE(c.DE() + 1)
		return 8
	case 0x23:
		c.SetHL(c.HL() + 1)
		return 8
	case 0x33:
		c.SP++
		return 8
	case 0x0B:
		c.SetBC(c.BC() - 1)
		return 8
	case 0x1B:
		c.SetDE(c.DE() - 1)
		return 8
	case 0x2B:
		c.SetHL(c.HL() - 1)
		return 8
	case 0x3B:
		c.SP--
		return 8

	case 0x09, 0x19, 0x29, 0x39: // ADD HL,rr
		var rr uint16
		switch op {
		case 0x09:
			rr = c.BC()
		case 0x19:
			rr = c.DE()
		case 0x29:
			rr = c.HL()
		case 0x39:
			rr = c.SP
		}
		r := alu.AddHL(c.HL(), rr)
		c.SetHL(r.Val)
		c.SetFlags(c.FlagZ(), r.N, r.H, r.C)
		return 8

	case 0xF8: // LD HL,SP+r8
		off := int8(c.fetch8())
		val, h, cy := alu.AddSPSigned(c.SP, off)
		c.SetHL(val)
		c.SetFlags(false, false, h, cy)
		return 12
	case 0xF9: // LD SP,HL
		c.SP = c.HL()
		return 8
	case 0xE8: // ADD SP,r8
		off := int8(c.fetch8())
		val, h, cy := alu.AddSPSigned(c.SP, off)
		c.SP = val
		c.SetFlags(false, false, h, cy)
		return 16

	case 0xF3: // DI
		c.IME = false
		return 4
	case 0xFB: // EI — takes effect immediately (see design notes on the
		// one-instruction-delay open question).
		c.IME = true
		return 4

	case 0xCB:
		return c.executeCB()

	case 0xF5:
		c.push16(c.AF())
		return 16
	case 0xC5:
		c.push16(c.BC())
		return 16
	case 0xD5:
		c.push16(c.DE())
		return 16
	case 0xE5:
		c.push16(c.HL())
		return 16
	case 0xF1:
		c.SetAF(c.pop16())
		return 12
	case 0xC1:
		c.SetBC(c.pop16())
		return 12
	case 0xD1:
		c.SetDE(c.pop16())
		return 12
	case 0xE1:
		c.SetHL(c.pop16())
		return 12

	default:
		// Every byte value is covered by a case above or is in the illegal
		// set filtered out before execute is called; this path is
		// unreachable for a fully decoded opcode space.
		return 4
	}
}

// cyclesFor returns 8 for the (HL)-operand ALU ops (register index 6) and 4
// for all register operands, matching the opcode's low 3 bits.
func cyclesFor(op byte) int {
	if op&7 == 6 {
		return 8
	}
	return 4
}

func (c *CPU) condition(op byte) bool {
	switch op & 0x18 {
	case 0x00:
		return !c.FlagZ()
	case 0x08:
		return c.FlagZ()
	case 0x10:
		return !c.FlagC()
	default:
		return c.FlagC()
	}
}

func (c *CPU) executeCB() int {
	cb := c.fetch8()
	reg := cb & 7
	group := (cb >> 6) & 3
	y := uint((cb >> 3) & 7)

	cycles := 8
	if reg == 6 {
		cycles = 16
	}

	v := c.getReg(reg)
	switch group {
	case 0: // rotate/shift/swap, selected by y
		var r bmi.Result
		switch y {
		case 0:
			r = bmi.Rlc(v)
		case 1:
			r = bmi.Rrc(v)
		case 2:
			r = bmi.Rl(v, c.FlagC())
		case 3:
			r = bmi.Rr(v, c.FlagC())
		case 4:
			r = bmi.Sla(v)
		case 5:
			r = bmi.Sra(v)
		case 6:
			r = bmi.Swap(v)
		case 7:
			r = bmi.Srl(v)
		}
		c.setReg(reg, r.Val)
		c.SetFlags(r.Z, r.N, r.H, r.C)
	case 1: // BIT y,r — C unaffected, doesn't write back
		z := bmi.Bit(v, y)
		c.SetFlags(z, false, true, c.FlagC())
		if reg == 6 {
			return 12
		}
		return 8
	case 2: // RES y,r
		c.setReg(reg, bmi.Res(v, y))
	case 3: // SET y,r
		c.setReg(reg, bmi.Set(v, y))
	}
	return cycles
}
