package ppu

// renderScanline fills one row of the framebuffer for the current LY: BG/
// window first, then sprites composited on top, then palette application.
func (p *PPU) renderScanline() {
	ly := p.ly
	var bgci [160]byte

	if p.lcdc&0x01 != 0 {
		bgMapBase := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			bgMapBase = 0x9C00
		}
		tileData8000 := p.lcdc&0x10 != 0
		bgci = RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, p.scx, p.scy, ly)

		windowActive := p.lcdc&0x20 != 0 && ly >= p.wy && int(p.wx) <= 166
		if windowActive {
			wxStart := int(p.wx) - 7
			winLine := ly - p.wy
			winMapBase := uint16(0x9800)
			if p.lcdc&0x40 != 0 {
				winMapBase = 0x9C00
			}
			win := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, winLine)
			start := wxStart
			if start < 0 {
				start = 0
			}
			for x := start; x < 160; x++ {
				bgci[x] = win[x]
			}
		}
	}

	row := bgci
	if p.lcdc&0x02 != 0 {
		tall := p.lcdc&0x04 != 0
		sprites := selectSpritesForLine(p.oam, ly, tall)
		pixels := composeSpriteLinePixels(p, sprites, ly, bgci, tall)
		for x := 0; x < 160; x++ {
			if pixels[x].ColorID == 0 {
				continue
			}
			row[x] = pixels[x].ColorID | spritePaletteTag(pixels[x].UseOBP1)
		}
	}

	base := int(ly) * 160
	for x := 0; x < 160; x++ {
		v := row[x]
		isSprite := v&spritePaletteMask != 0
		ci := v &^ spritePaletteMask
		var palette byte
		switch {
		case isSprite && v&spritePaletteTag(true) != 0:
			palette = p.obp1
		case isSprite:
			palette = p.obp0
		default:
			palette = p.bgp
		}
		p.fb[base+x] = (palette >> (ci * 2)) & 0x03
	}
}

// Sprite color ids and BG color ids are both 0..3; a high tag bit keeps
// track, within this one-row scratch buffer, of which pixels came from a
// sprite and which OBJ palette they use, without a second parallel array.
const (
	spritePaletteMask = 0x80 | 0x40
)

func spritePaletteTag(useOBP1 bool) byte {
	if useOBP1 {
		return 0x80
	}
	return 0x40
}
