package ppu

// Sprite is a decoded OAM entry ready for per-scanline selection and
// compositing. OAMIndex is the entry's position in OAM (0..39) and is the
// sole tie-breaker for both slot selection and draw priority.
type Sprite struct {
	X, Y     byte
	Tile     byte
	Attr     byte
	OAMIndex int
}

const (
	spriteAttrPriority  = 1 << 7 // 0: above BG, 1: behind BG colors 1-3
	spriteAttrFlipY     = 1 << 6
	spriteAttrFlipX     = 1 << 5
	spriteAttrPaletteOB = 1 << 4 // 0: OBP0, 1: OBP1
)

// selectSpritesForLine scans all 40 OAM entries in index order and returns
// up to 10 whose vertical span covers ly. Lower OAM index wins a slot when
// more than 10 are eligible.
func selectSpritesForLine(oam [0xA0]byte, ly byte, tall bool) []Sprite {
	height := byte(8)
	if tall {
		height = 16
	}
	var picked []Sprite
	for i := 0; i < 40 && len(picked) < 10; i++ {
		base := i * 4
		y := oam[base+0]
		x := oam[base+1]
		tile := oam[base+2]
		attr := oam[base+3]
		top := int(y) - 16
		if int(ly) < top || int(ly) >= top+int(height) {
			continue
		}
		picked = append(picked, Sprite{X: x, Y: y, Tile: tile, Attr: attr, OAMIndex: i})
	}
	return picked
}

// SpritePixel is one composited sprite output column: the 2-bit color id
// (0 means no sprite contributes here) and which OBJ palette to apply.
type SpritePixel struct {
	ColorID byte
	UseOBP1 bool
}

// ComposeSpriteLine overlays sprites onto a rendered background/window line.
// bgci holds background color indices (used for the "behind BG" priority
// bit and transparency checks); tall selects 8x16 sprites. Ties between
// overlapping opaque sprite pixels are broken by OAM index, lower wins,
// matching the selection tie-break above.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	cols, _ := composeSpriteLine(mem, sprites, ly, bgci, tall)
	return cols
}

// composeSpriteLinePixels is the full-fidelity variant used by the real
// rasterizer, which also needs to know which OBJ palette each column uses.
func composeSpriteLinePixels(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]SpritePixel {
	_, px := composeSpriteLine(mem, sprites, ly, bgci, tall)
	return px
}

func composeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) ([160]byte, [160]SpritePixel) {
	var out [160]byte
	var pixels [160]SpritePixel
	var winnerIndex [160]int
	for i := range winnerIndex {
		winnerIndex[i] = -1
	}
	height := byte(8)
	if tall {
		height = 16
	}
	for _, s := range sprites {
		row := ly - (s.Y - 16)
		if s.Attr&spriteAttrFlipY != 0 {
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			tile &^= 0x01
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		base := 0x8000 + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		for px := 0; px < 8; px++ {
			sx := int(s.X) - 8 + px
			if sx < 0 || sx >= 160 {
				continue
			}
			col := px
			if s.Attr&spriteAttrFlipX != 0 {
				col = 7 - px
			}
			bit := 7 - byte(col)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			if s.Attr&spriteAttrPriority != 0 && bgci[sx] != 0 {
				continue
			}
			cur := winnerIndex[sx]
			if cur != -1 && cur <= s.OAMIndex {
				continue
			}
			winnerIndex[sx] = s.OAMIndex
			out[sx] = ci
			pixels[sx] = SpritePixel{ColorID: ci, UseOBP1: s.Attr&spriteAttrPaletteOB != 0}
		}
	}
	return out, pixels
}
