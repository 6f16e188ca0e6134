package ppu

import "sort"

// Sprite is a pre-adjusted OAM entry ready for scanline composition: X and Y
// are already converted to on-screen coordinates (raw OAM X-8, Y-16).
type Sprite struct {
	X, Y      int
	Tile      byte
	Attr      byte
	OAMIndex  int
	Height    int // 8 or 16; zero is treated as 8 by ComposeSpriteLine
}

// selectSpritesForLine scans all 40 OAM entries and returns, in OAM order,
// up to 10 sprites that cover scanline ly (spec.md §4.4's "OAM search"
// limit).
func selectSpritesForLine(oam *[0xA0]byte, ly byte, tall bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		rawY := oam[base]
		rawX := oam[base+1]
		tile := oam[base+2]
		attr := oam[base+3]
		if tall {
			tile &^= 0x01
		}
		topY := int(rawY) - 16
		if int(ly) < topY || int(ly) >= topY+height {
			continue
		}
		out = append(out, Sprite{
			X: int(rawX) - 8, Y: topY, Tile: tile, Attr: attr,
			OAMIndex: i, Height: height,
		})
	}
	return out
}

// ComposeSpriteLine renders the sprite layer for scanline ly and returns a
// 160-wide row of color indices (0 means no visible sprite pixel at that
// column, whether because none covers it, the pixel is transparent, or it
// lost to BG priority). bgci is the already-composed BG+window row, needed
// to resolve each sprite's OBJ-to-BG priority bit.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, cgbMode bool) [160]byte {
	var out [160]byte

	ordered := make([]Sprite, len(sprites))
	copy(ordered, sprites)
	if !cgbMode {
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].X < ordered[j].X })
	}

	for _, s := range ordered {
		height := s.Height
		if height == 0 {
			height = 8
		}
		row := int(ly) - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&0x40 != 0 { // Y flip
			row = height - 1 - row
		}
		tileNum := uint16(s.Tile)
		if height == 16 {
			tileNum += uint16(row / 8)
			row %= 8
		}
		base := 0x8000 + tileNum*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		for col := 0; col < 8; col++ {
			sx := s.X + col
			if sx < 0 || sx >= 160 {
				continue
			}
			if out[sx] != 0 {
				continue
			}
			bit := byte(7 - col)
			if s.Attr&0x20 != 0 { // X flip
				bit = byte(col)
			}
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			if s.Attr&0x80 != 0 && bgci[sx] != 0 {
				continue
			}
			out[sx] = ci
		}
	}
	return out
}
