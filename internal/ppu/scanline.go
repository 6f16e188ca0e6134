package ppu

// BankVRAMReader gives CGB scanline helpers independent access to both VRAM
// banks: bank 0 holds tile indices/pattern data, bank 1 holds the CGB tile
// attribute byte at the same map address.
type BankVRAMReader interface {
	VRAMReader
	ReadBank(bank int, addr uint16) byte
}

// RenderBGScanlineCGB renders 160 BG pixels along with each pixel's CGB
// palette index and BG-to-OBJ priority flag. mapBase addresses the tile
// index map (bank 0); attrBase addresses the parallel attribute map (bank
// 1) — on real hardware these are always the same map address, kept as
// separate parameters so the attribute lookup never accidentally aliases
// the tile-index lookup.
func RenderBGScanlineCGB(mem BankVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineYBase := byte(bgY & 7)
	mapY := (bgY >> 3) & 31

	for x := 0; x < 160; x++ {
		bgX := uint16(x) + uint16(scx)
		tileX := (bgX >> 3) & 31
		fineX := byte(bgX & 7)
		entry := mapY*32 + tileX

		tileNum := mem.ReadBank(0, mapBase+entry)
		attr := mem.ReadBank(1, attrBase+entry)

		bank := 0
		if attr&0x08 != 0 {
			bank = 1
		}
		fineY := fineYBase
		if attr&0x40 != 0 {
			fineY = 7 - fineY
		}

		var base uint16
		if tileData8000 {
			base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
		} else {
			base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
		}
		lo := mem.ReadBank(bank, base)
		hi := mem.ReadBank(bank, base+1)

		bit := 7 - fineX
		if attr&0x20 != 0 {
			bit = fineX
		}
		ci[x] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		pal[x] = attr & 0x07
		pri[x] = attr&0x80 != 0
	}
	return
}

// RenderWindowScanlineCGB is RenderBGScanlineCGB's window-layer counterpart:
// winLine is the window's own internal line counter (spec.md §4.4), and
// pixels left of wxStart are zero so callers can blend against the BG row.
func RenderWindowScanlineCGB(mem BankVRAMReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	if wxStart >= 160 {
		return
	}
	start := wxStart
	if start < 0 {
		start = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineYBase := winLine & 7

	for x := start; x < 160; x++ {
		winX := uint16(x - wxStart)
		tileX := (winX >> 3) & 31
		fineX := byte(winX & 7)
		entry := mapY*32 + tileX

		tileNum := mem.ReadBank(0, mapBase+entry)
		attr := mem.ReadBank(1, attrBase+entry)

		bank := 0
		if attr&0x08 != 0 {
			bank = 1
		}
		fineY := fineYBase
		if attr&0x40 != 0 {
			fineY = 7 - fineY
		}

		var base uint16
		if tileData8000 {
			base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
		} else {
			base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
		}
		lo := mem.ReadBank(bank, base)
		hi := mem.ReadBank(bank, base+1)

		bit := 7 - fineX
		if attr&0x20 != 0 {
			bit = fineX
		}
		ci[x] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		pal[x] = attr & 0x07
		pri[x] = attr&0x80 != 0
	}
	return
}

// RenderBGScanlineUsingFetcher renders 160 BG pixels for the given LY using the isolated fetcher.
// Inputs:
// - mem: VRAM reader
// - mapBase: 0x9800 or 0x9C00
// - tileData8000: true -> 0x8000 addressing; false -> 0x8800 signed addressing
// - scx, scy: scroll registers
// - ly: current scanline (0..143)
// Output: 160 color indices (0..3)
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	// Compute BG coordinates.
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31 // 0..31 rows

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	// Map index address for the first tile column.
	tileIndexAddr := mapBase + mapY*32 + tileX

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	// Discard scx fractional pixels.
	for i := 0; i < fineX; i++ {
		_, _ = q.Pop()
	}

	// Produce 160 pixels, fetching new tiles as the FIFO empties.
	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			// Advance to next tile in map row (wrap at 32 tiles).
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderWindowScanlineUsingFetcher renders the window layer for a scanline using the fetcher.
// It fills pixels starting at wxStart (WX-7) using winLine as the vertical line within the window.
// Pixels before wxStart are left as 0 (BG color index 0) so callers can blend.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, wxStart int, winLine byte) [160]byte {
	var out [160]byte
	if wxStart >= 160 {
		return out
	}
	if wxStart < 0 {
		wxStart = 0
	}
	// Compute window tile row and fineY
	mapY := (uint16(winLine) >> 3) & 31
	fineY := winLine & 7
	tileX := uint16(0)
	tileIndexAddr := mapBase + mapY*32 + tileX
	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	for x := wxStart; x < 160; x++ {
		if q.Len() == 0 {
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
