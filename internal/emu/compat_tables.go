package emu

import (
	"strings"

	"github.com/dmgcore/gbcore/internal/cart"
)

// cgbCompatSetNames and cgbCompatSets give headless/windowed DMG output a
// bit of the real hardware's per-title compatibility palette selection
// (the DMG-mode boot ROM on CGB/AGB hardware colorizes known titles using a
// small built-in table keyed off the header). Indices match the IDs used by
// compatTitleExact/compatTitleContains below. Shade 0 is the lightest.
var cgbCompatSetNames = []string{"Green", "Sepia", "Blue", "Red", "Pastel", "Gray"}

var cgbCompatSets = [][4][3]byte{
	{{0x9B, 0xBC, 0x0F}, {0x8B, 0xAC, 0x0F}, {0x30, 0x62, 0x30}, {0x0F, 0x38, 0x0F}}, // Green
	{{0xF7, 0xE7, 0xC6}, {0xD8, 0xA8, 0x70}, {0x8B, 0x5A, 0x2B}, {0x40, 0x2A, 0x14}}, // Sepia
	{{0xE0, 0xF0, 0xFF}, {0x90, 0xC0, 0xF0}, {0x40, 0x70, 0xB0}, {0x10, 0x20, 0x50}}, // Blue
	{{0xFF, 0xE0, 0xE0}, {0xF0, 0x90, 0x90}, {0xB0, 0x40, 0x40}, {0x50, 0x10, 0x10}}, // Red
	{{0xFD, 0xF0, 0xF8}, {0xE8, 0xB8, 0xD8}, {0xA8, 0x70, 0x98}, {0x50, 0x30, 0x48}}, // Pastel
	{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}}, // Gray
}

// compatTitleExact maps exact, normalized titles to a preferred palette ID.
// Note: IDs index into cgbCompatSetNames/cgbCompatSets in this file.
var compatTitleExact = map[string]int{
	"TETRIS":              2, // Blue
	"TETRIS DX":           2,
	"SUPER MARIO LAND":    3, // Red
	"SUPER MARIO LAND 2":  3,
	"DR. MARIO":           4, // Pastel
	"DONKEY KONG":         1, // Sepia
	"THE LEGEND OF ZELDA": 0, // Green
	"ZELDA":               0,
	"METROID II":          3, // Red accent
	"KIRBY'S DREAM LAND":  4, // Pastel/soft
	"MEGA MAN":            2, // Blue
	"MEGAMAN":             2,
	"WARIO LAND":          1, // Sepia
	"POKEMON YELLOW":      4, // Pastel
	"POKEMON RED":         4,
	"POKEMON BLUE":        4,
	"POCKET MONSTERS":     4,
}

type containsRule struct {
	substr string
	id     int
}

// compatTitleContains applies broader substring heuristics for families.
var compatTitleContains = []containsRule{
	{"TETRIS", 2},
	{"MARIO", 3},
	{"ZELDA", 0},
	{"KIRBY", 4},
	{"DONKEY KONG", 1},
	{"METROID", 3},
	{"MEGA MAN", 2},
	{"MEGAMAN", 2},
	{"WARIO", 1},
	{"POKEMON", 4},
	{"POCKET MONSTERS", 4},
}

// autoCompatPaletteFromHeader tries to pick a good default palette using a small title table
// and then a stable fallback based on licensee/checksum. Returns (id, true) on success.
func autoCompatPaletteFromHeader(h *cart.Header) (int, bool) {
	if h == nil {
		return 0, false
	}
	title := strings.TrimSpace(strings.TrimRight(h.Title, "\x00"))
	t := strings.ToUpper(title)
	if id, ok := compatTitleExact[t]; ok {
		return id, true
	}
	for _, r := range compatTitleContains {
		if strings.Contains(t, r.substr) {
			return r.id, true
		}
	}
	// Fallback: for Nintendo-published titles, vary palette by header checksum; others use default.
	nintendo := false
	if h.OldLicensee == 0x33 {
		nintendo = (strings.ToUpper(h.NewLicensee) == "01")
	} else {
		nintendo = (h.OldLicensee == 0x01)
	}
	if nintendo {
		// Use header checksum to pick a stable palette across sessions.
		// Keep it within available set count (len(cgbCompatSetNames)).
		// We mod by 6 to align with our curated set length.
		return int(h.HeaderChecksum) % 6, true
	}
	return 0, true
}
