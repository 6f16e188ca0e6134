package ppu

// Read gives the internal scanline renderer raw access to VRAM bank 0,
// bypassing the CPU-facing mode-3 lockout (the PPU is always allowed to
// read its own memory while composing a line).
func (p *PPU) Read(addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[0][addr-0x8000]
}

// ReadBank reads VRAM bank 0 or 1 directly, used by the CGB-aware scanline
// helpers to fetch tile data/attributes independent of the CPU's VBK
// selection.
func (p *PPU) ReadBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[bank&0x01][addr-0x8000]
}
