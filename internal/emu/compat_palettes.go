package emu

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"

// rgb555 packs 5-bit-per-channel red/green/blue into the little-endian word
// the CGB's palette RAM stores (bits 0-4 red, 5-9 green, 10-14 blue).
func rgb555(r, g, b byte) uint16 {
	return uint16(r&0x1F) | uint16(g&0x1F)<<5 | uint16(b&0x1F)<<10
}

// cgbCompatSetNames/cgbCompatSets are the curated DMG-on-CGB color sets a
// real CGB boot ROM selects between for non-CGB cartridges, approximating
// its built-in palette table. Indexed by compatTitleExact/compatTitleContains
// and the header-checksum fallback in compat_tables.go.
var cgbCompatSetNames = []string{"Green", "Sepia", "Blue", "Red", "Pastel", "Gray"}

var cgbCompatSets = []ppu.CompatPalette{
	{ // Green: classic DMG-like palette, rendered through the CGB color path
		BG:   [4]uint16{rgb555(24, 31, 10), rgb555(14, 24, 9), rgb555(7, 15, 8), rgb555(1, 6, 3)},
		OBJ0: [4]uint16{rgb555(31, 31, 31), rgb555(22, 22, 16), rgb555(13, 13, 9), rgb555(2, 2, 2)},
		OBJ1: [4]uint16{rgb555(31, 31, 31), rgb555(24, 18, 9), rgb555(15, 10, 5), rgb555(3, 2, 1)},
	},
	{ // Sepia
		BG:   [4]uint16{rgb555(31, 28, 20), rgb555(24, 20, 13), rgb555(15, 11, 6), rgb555(6, 4, 2)},
		OBJ0: [4]uint16{rgb555(31, 29, 22), rgb555(22, 18, 11), rgb555(12, 9, 5), rgb555(3, 2, 1)},
		OBJ1: [4]uint16{rgb555(31, 29, 22), rgb555(22, 18, 11), rgb555(12, 9, 5), rgb555(3, 2, 1)},
	},
	{ // Blue
		BG:   [4]uint16{rgb555(22, 28, 31), rgb555(11, 20, 28), rgb555(4, 10, 18), rgb555(1, 2, 6)},
		OBJ0: [4]uint16{rgb555(31, 31, 31), rgb555(20, 20, 24), rgb555(10, 10, 15), rgb555(2, 2, 4)},
		OBJ1: [4]uint16{rgb555(31, 31, 24), rgb555(24, 20, 10), rgb555(15, 10, 4), rgb555(4, 2, 1)},
	},
	{ // Red
		BG:   [4]uint16{rgb555(31, 25, 22), rgb555(28, 12, 10), rgb555(18, 5, 4), rgb555(8, 1, 1)},
		OBJ0: [4]uint16{rgb555(31, 31, 31), rgb555(24, 24, 20), rgb555(14, 14, 10), rgb555(3, 3, 2)},
		OBJ1: [4]uint16{rgb555(31, 29, 20), rgb555(24, 18, 8), rgb555(14, 9, 4), rgb555(3, 2, 1)},
	},
	{ // Pastel
		BG:   [4]uint16{rgb555(31, 27, 31), rgb555(24, 22, 31), rgb555(16, 14, 24), rgb555(6, 5, 10)},
		OBJ0: [4]uint16{rgb555(31, 31, 31), rgb555(24, 27, 18), rgb555(14, 18, 10), rgb555(3, 4, 2)},
		OBJ1: [4]uint16{rgb555(31, 24, 27), rgb555(26, 14, 18), rgb555(16, 6, 9), rgb555(4, 1, 2)},
	},
	{ // Gray: neutral grayscale
		BG:   [4]uint16{rgb555(31, 31, 31), rgb555(21, 21, 21), rgb555(10, 10, 10), rgb555(0, 0, 0)},
		OBJ0: [4]uint16{rgb555(31, 31, 31), rgb555(21, 21, 21), rgb555(10, 10, 10), rgb555(0, 0, 0)},
		OBJ1: [4]uint16{rgb555(31, 31, 31), rgb555(21, 21, 21), rgb555(10, 10, 10), rgb555(0, 0, 0)},
	},
}
