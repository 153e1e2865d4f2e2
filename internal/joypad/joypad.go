// Package joypad implements the JOYP select matrix and its falling-edge
// interrupt, decoupled from the bus via a callback rather than a stored
// bus reference.
package joypad

// InterruptRequester raises IF bit 4 (Joypad).
type InterruptRequester func()

// Button bitmasks for SetState. A set bit means the button is held.
const (
	Right = 1 << 0
	Left  = 1 << 1
	Up    = 1 << 2
	Down  = 1 << 3
	A     = 1 << 4
	B     = 1 << 5
	Select = 1 << 6
	Start  = 1 << 7
)

// Joypad holds the current select lines and pressed-button state.
type Joypad struct {
	selectBits byte // bits 5-4 of JOYP as last written
	pressed    byte // Button* bitmask, set = pressed
	prevLower4 byte // previously composed active-low nibble, for edge detection
	req        InterruptRequester
}

func New(req InterruptRequester) *Joypad { return &Joypad{req: req} }

// Read composes JOYP (0xFF00): bits 7-6 read as 1, bits 5-4 are the select
// lines, bits 3-0 are the active-low state of whichever line(s) are
// selected (AND of both if both are selected).
func (j *Joypad) Read() byte {
	return 0xC0 | (j.selectBits & 0x30) | j.lowerNibble()
}

// WriteSelect updates the select lines (only bits 5-4 are writable) and
// re-evaluates the interrupt edge, since changing selection can itself
// expose a 1->0 transition on the composed nibble.
func (j *Joypad) WriteSelect(value byte) {
	j.selectBits = value & 0x30
	j.refreshEdge()
}

// SetState replaces the full pressed-button bitmask and re-evaluates the
// interrupt edge.
func (j *Joypad) SetState(mask byte) {
	j.pressed = mask
	j.refreshEdge()
}

func (j *Joypad) lowerNibble() byte {
	n := byte(0x0F)
	if j.selectBits&0x10 == 0 { // P14 low selects the d-pad
		if j.pressed&Right != 0 {
			n &^= 0x01
		}
		if j.pressed&Left != 0 {
			n &^= 0x02
		}
		if j.pressed&Up != 0 {
			n &^= 0x04
		}
		if j.pressed&Down != 0 {
			n &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 { // P15 low selects the action buttons
		if j.pressed&A != 0 {
			n &^= 0x01
		}
		if j.pressed&B != 0 {
			n &^= 0x02
		}
		if j.pressed&Select != 0 {
			n &^= 0x04
		}
		if j.pressed&Start != 0 {
			n &^= 0x08
		}
	}
	return n
}

func (j *Joypad) refreshEdge() {
	n := j.lowerNibble()
	falling := j.prevLower4 &^ n
	if falling != 0 && j.req != nil {
		j.req()
	}
	j.prevLower4 = n
}

// AnySelectedPressed reports whether the currently selected line(s) have
// any button held, used by the CPU's STOP-wake path.
func (j *Joypad) AnySelectedPressed() bool { return j.lowerNibble() != 0x0F }
