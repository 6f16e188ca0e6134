package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
type InterruptRequester func(bit int)

// CapturedLine snapshots the registers that affect rendering at the moment
// line ly enters mode 3 (pixel transfer), so a line drawn mid-frame reflects
// the scroll/window/palette values hardware would have latched rather than
// whatever they happen to be when the frame is later read out.
type CapturedLine struct {
	LY                        byte
	LCDC, SCY, SCX, WY, WX    byte
	BGP, OBP0, OBP1           byte
	WinLine                   int
	WinVisible                bool
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, CGB palette RAM and banking,
// and a two-buffer 160x144 composed framebuffer.
type PPU struct {
	vram [2][0x2000]byte // bank0 always; bank1 is CGB-only tile/attribute data
	vbk  byte             // FF4F bit0 selects the bank CPU reads/writes
	oam  [0xA0]byte

	lcdc, stat, scy, scx, ly, lyc byte
	bgp, obp0, obp1, wy, wx       byte

	bgPalRAM, objPalRAM [64]byte // CGB: 8 palettes x 4 colors x 2 bytes (RGB555)
	bcps, ocps          byte     // FF68/FF6A: bit7 auto-increment, bits0-5 index

	cgbMode bool

	dot            int
	winLineCounter int
	winYCond       bool // latched true for the rest of the frame once lcd_y == wy
	lines          [144]CapturedLine

	statLine     bool // level of the OR'd STAT interrupt sources, for edge latching
	hblankEntered bool // latched on the mode2/3->0 transition; consumed by the bus's HDMA step

	compat *CompatPalette // non-nil colorizes DMG rendering instead of grayscale

	req InterruptRequester

	front, back [144][160]uint32
	frameReady  bool
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// SetCGBMode switches on CGB-specific behavior (tile attributes, palette RAM,
// VRAM bank 1). It is set from the cartridge header's CGB flag at load
// and again by the emu reset paths (ResetPostBoot/ResetCGBPostBoot).
func (p *PPU) SetCGBMode(v bool) { p.cgbMode = v }

// SetCompatPalette installs (or, with nil, clears) a fixed color override
// applied in place of the DMG grayscale shades. Used when a DMG-only
// cartridge runs under CGB compatibility coloring.
func (p *PPU) SetCompatPalette(pal *CompatPalette) { p.compat = pal }

func (p *PPU) vramBank() int { return int(p.vbk & 0x01) }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.stat&0x03 == 3 {
			return 0xFF
		}
		return p.vram[p.vramBank()][addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF4F:
		return 0xFE | (p.vbk & 0x01)
	case addr == 0xFF68:
		return 0x80 | p.bcps
	case addr == 0xFF69:
		return p.bgPalRAM[p.bcps&0x3F]
	case addr == 0xFF6A:
		return 0x80 | p.ocps
	case addr == 0xFF6B:
		return p.objPalRAM[p.ocps&0x3F]
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO registers.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.stat&0x03 == 3 {
			return
		}
		p.vram[p.vramBank()][addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if p.lcdc&0x80 == 0 && prev&0x80 != 0 {
			p.ly, p.dot = 0, 0
			p.setMode(0)
			p.updateLYC()
		} else if p.lcdc&0x80 != 0 && prev&0x80 == 0 {
			p.ly, p.dot = 0, 0
			p.winLineCounter = 0
			p.winYCond = false
			p.enterOAMSearchForLine()
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
		p.recomputeStatLine()
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly, p.dot = 0, 0
		p.winYCond = false
		p.updateLYC()
		if p.lcdc&0x80 != 0 {
			p.enterOAMSearchForLine()
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
		// A new WY value no longer matches the already-latched condition
		// for the rest of this frame (original_source/emulator-core/src/
		// ppu.rs:900-903, write_window_y clears window_y_condition_triggered).
		p.winYCond = false
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF4F:
		p.vbk = value & 0x01
	case addr == 0xFF68:
		p.bcps = value & 0xBF
	case addr == 0xFF69:
		p.bgPalRAM[p.bcps&0x3F] = value
		if p.bcps&0x80 != 0 {
			p.bcps = 0x80 | ((p.bcps + 1) & 0x3F)
		}
	case addr == 0xFF6A:
		p.ocps = value & 0xBF
	case addr == 0xFF6B:
		p.objPalRAM[p.ocps&0x3F] = value
		if p.ocps&0x80 != 0 {
			p.ocps = 0x80 | ((p.ocps + 1) & 0x3F)
		}
	}
}

// Tick advances PPU state by the given number of dots (T-cycles).
func (p *PPU) Tick(dots int) {
	for i := 0; i < dots; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickOne() {
	if p.lcdc&0x80 == 0 {
		return
	}
	p.dot++

	if p.ly < 144 {
		switch {
		case p.dot == 80:
			// Registers are latched and the scanline composed as pixel
			// transfer begins, matching when real hardware samples
			// SCX/SCY/WX/WY/palettes for the line.
			p.renderLine()
			p.setMode(3)
		case p.dot == 80+172:
			p.setMode(0)
		}
	}

	if p.dot >= 456 {
		p.dot = 0
		p.ly++
		if p.ly == 144 {
			p.setMode(1)
			p.winYCond = false
			p.swapBuffers()
			if p.req != nil {
				p.req(0)
			}
		} else if p.ly > 153 {
			p.ly = 0
			p.winLineCounter = 0
			p.enterOAMSearchForLine()
		} else if p.ly < 144 {
			p.enterOAMSearchForLine()
		}
		p.updateLYC()
	}
}

// setMode updates the STAT mode bits and re-evaluates the latched STAT line.
func (p *PPU) setMode(mode byte) {
	if mode == 0 && p.stat&0x03 != 0 {
		p.hblankEntered = true
	}
	p.stat = p.stat&^0x03 | mode&0x03
	p.recomputeStatLine()
}

// enterOAMSearchForLine transitions into mode 2 for the upcoming line and
// latches the window-y condition if it newly matches this scanline. Once
// set, the latch holds for the rest of the frame regardless of later WY
// writes that move it away from ly, matching
// original_source/emulator-core/src/ppu.rs:226
// (window_y_condition_triggered |= lcd_y == window_y).
func (p *PPU) enterOAMSearchForLine() {
	p.winYCond = p.winYCond || p.ly == p.wy
	p.setMode(2)
}

// ConsumeHBlankEntry reports whether the PPU just entered H-blank since the
// last call, clearing the latch. The bus uses this to drive one H-blank
// HDMA block transfer per line (spec.md §4.2).
func (p *PPU) ConsumeHBlankEntry() bool {
	v := p.hblankEntered
	p.hblankEntered = false
	return v
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
	p.recomputeStatLine()
}

// recomputeStatLine implements the real hardware's "STAT interrupt line":
// an OR of four gated conditions. The CPU only sees an interrupt request on
// the line's 0->1 transition, not on every dot while it's held high
// (spec.md §4.4 — level-triggered with rising-edge latching).
func (p *PPU) recomputeStatLine() {
	mode := p.stat & 0x03
	line := false
	if p.stat&(1<<3) != 0 && mode == 0 {
		line = true
	}
	if p.stat&(1<<4) != 0 && mode == 1 {
		line = true
	}
	if p.stat&(1<<5) != 0 && mode == 2 {
		line = true
	}
	if p.stat&(1<<6) != 0 && p.stat&(1<<2) != 0 {
		line = true
	}
	if line && !p.statLine {
		if p.req != nil {
			p.req(1)
		}
	}
	p.statLine = line
}

// renderLine composes the current scanline (BG, window, sprites) into the
// back buffer and captures the registers that were live at pixel-transfer
// time.
func (p *PPU) renderLine() {
	ly := p.ly
	winVisible := p.lcdc&0x20 != 0 && p.wx <= 166 && p.winYCond && p.wy <= 143
	cl := CapturedLine{
		LY: ly, LCDC: p.lcdc, SCY: p.scy, SCX: p.scx, WY: p.wy, WX: p.wx,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WinLine: p.winLineCounter, WinVisible: winVisible,
	}
	if int(ly) < len(p.lines) {
		p.lines[ly] = cl
	}

	var ci, palIdx [160]byte
	var pri [160]bool

	if p.lcdc&0x01 != 0 || p.cgbMode {
		mapBase := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := p.lcdc&0x10 != 0
		if p.cgbMode {
			ci, palIdx, pri = RenderBGScanlineCGB(p, mapBase, mapBase, tileData8000, p.scx, p.scy, ly)
		} else {
			ci = RenderBGScanlineUsingFetcher(p, mapBase, tileData8000, p.scx, p.scy, ly)
		}
	}

	if winVisible {
		winMapBase := uint16(0x9800)
		if p.lcdc&0x40 != 0 {
			winMapBase = 0x9C00
		}
		tileData8000 := p.lcdc&0x10 != 0
		wxStart := int(p.wx) - 7
		var wci, wpal [160]byte
		var wpri [160]bool
		if p.cgbMode {
			full, fpal, fpri := RenderWindowScanlineCGB(p, winMapBase, winMapBase, tileData8000, wxStart, byte(p.winLineCounter))
			wci, wpal, wpri = full, fpal, fpri
		} else {
			wci = RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, byte(p.winLineCounter))
		}
		start := wxStart
		if start < 0 {
			start = 0
		}
		for x := start; x < 160; x++ {
			ci[x] = wci[x]
			palIdx[x] = wpal[x]
			pri[x] = wpri[x]
		}
		p.winLineCounter++
	}

	var sprites []Sprite
	if p.lcdc&0x02 != 0 {
		sprites = selectSpritesForLine(&p.oam, ly, p.lcdc&0x04 != 0)
	}
	spriteCI := ComposeSpriteLine(p, sprites, ly, ci, p.cgbMode)

	for x := 0; x < 160; x++ {
		var color uint32
		switch {
		case p.cgbMode:
			color = p.cgbBGColor(palIdx[x], ci[x])
		case p.compat != nil:
			color = rgb555WordToRGBA(p.compat.BG[applyDMGPalette(p.bgp, ci[x])])
		default:
			color = dmgColor(applyDMGPalette(p.bgp, ci[x]))
		}
		if spriteCI[x] != 0 {
			sp := findSpriteAt(sprites, x)
			if sp != nil {
				hiddenByBG := sp.Attr&0x80 != 0 && ci[x] != 0
				hiddenByBGAttr := p.cgbMode && pri[x] && p.lcdc&0x01 != 0
				if !hiddenByBG && !hiddenByBGAttr {
					dmgPal := p.obp0
					if sp.Attr&0x10 != 0 {
						dmgPal = p.obp1
					}
					switch {
					case p.cgbMode:
						color = p.cgbOBJColor(sp.Attr&0x07, spriteCI[x])
					case p.compat != nil:
						compatPal := p.compat.OBJ0
						if sp.Attr&0x10 != 0 {
							compatPal = p.compat.OBJ1
						}
						color = rgb555WordToRGBA(compatPal[applyDMGPalette(dmgPal, spriteCI[x])])
					default:
						color = dmgColor(applyDMGPalette(dmgPal, spriteCI[x]))
					}
				}
			}
		}
		p.back[ly][x] = color
	}
}

func findSpriteAt(sprites []Sprite, x int) *Sprite {
	for i := range sprites {
		s := &sprites[i]
		if x >= s.X && x < s.X+8 {
			return s
		}
	}
	return nil
}

func (p *PPU) swapBuffers() {
	p.front = p.back
	p.frameReady = true
}

// FrameBuffer returns the most recently completed frame as packed 0xRRGGBBAA.
func (p *PPU) FrameBuffer() [144][160]uint32 { return p.front }

// FrameReady reports and clears the "a new frame was just completed" flag.
func (p *PPU) FrameReady() bool {
	v := p.frameReady
	p.frameReady = false
	return v
}

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// LineRegs returns the registers captured when line ly last entered pixel
// transfer; used by tests and by the window-line counter's consumers.
func (p *PPU) LineRegs(ly int) CapturedLine {
	if ly < 0 || ly >= len(p.lines) {
		return CapturedLine{}
	}
	return p.lines[ly]
}

type ppuState struct {
	VRAM           [2][0x2000]byte
	VBK            byte
	OAM            [0xA0]byte
	LCDC, STAT     byte
	SCY, SCX       byte
	LY, LYC        byte
	BGP, OBP0, OBP1 byte
	WY, WX         byte
	BGPalRAM, OBJPalRAM [64]byte
	BCPS, OCPS     byte
	CGBMode        bool
	Dot            int
	WinLineCounter int
	WinYCond       bool
	StatLine       bool
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	s := ppuState{
		VRAM: p.vram, VBK: p.vbk, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		BGPalRAM: p.bgPalRAM, OBJPalRAM: p.objPalRAM, BCPS: p.bcps, OCPS: p.ocps,
		CGBMode: p.cgbMode, Dot: p.dot, WinLineCounter: p.winLineCounter, WinYCond: p.winYCond, StatLine: p.statLine,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.vbk, p.oam = s.VRAM, s.VBK, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.bgPalRAM, p.objPalRAM, p.bcps, p.ocps = s.BGPalRAM, s.OBJPalRAM, s.BCPS, s.OCPS
	p.cgbMode, p.dot, p.winLineCounter, p.statLine = s.CGBMode, s.Dot, s.WinLineCounter, s.StatLine
	p.winYCond = s.WinYCond
}
