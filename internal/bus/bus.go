package bus

import (
	"bytes"
	"encoding/gob"
	"log"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/serial"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/timer"
)

// wramBankSize is 4KiB; the switchable bank is selected through SVBK
// (0xFF70), banks 1-7 with 0 selecting 1. The Bus applies SVBK in every mode.
const wramBankSize = 0x1000

// Bus wires CPU-visible address space to the cartridge, WRAM, HRAM, and the
// subcomponents (PPU, APU, timer, joypad, serial). It owns interrupt-flag
// aggregation: each subcomponent reports edge-triggered requests and Bus
// ORs them into IF.
type Bus struct {
	cart cart.Cartridge

	// Work RAM: bank 0 fixed at 0xC000-0xCFFF, bank svbk (1-7; 0 acts as 1) at
	// 0xD000-0xDFFF, honoured regardless of DMG/CGB mode. Echo 0xE000-0xFDFF mirrors
	// 0xC000-0xDDFF.
	wram [8][wramBankSize]byte
	svbk byte // FF70, bits 0-2; 0 reads back as written but behaves as 1

	hram [0x7F]byte // 0xFF80-0xFFFE

	ppu    *ppu.PPU
	apu    *apu.APU
	timer  *timer.Timer
	joypad *joypad.Joypad
	serial *serial.Serial

	ie    byte // IE at 0xFFFF
	ifReg byte // IF at 0xFF0F, lower 5 bits used

	// KEY1 (CGB double-speed switch, 0xFF4D): bit0 armed by CPU write,
	// bit7 reflects current speed. Actually toggled when the CPU executes
	// STOP with bit0 set; Bus only stores/exposes the register here.
	key1        byte
	doubleSpeed bool

	dma byte // FF46 OAM DMA source register
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	// HDMA (CGB general-purpose / H-blank VRAM DMA, 0xFF51-0xFF55)
	hdmaSrc, hdmaDst uint16
	hdmaLen          int  // bytes left to copy (a multiple of 0x10); -1 or 0 when idle
	hdmaHBlankMode   bool

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs a Bus around a parsed cartridge.
func New(c cart.Cartridge) *Bus {
	b := &Bus{
		cart:   c,
		timer:  timer.New(),
		joypad: joypad.New(),
		serial: serial.New(),
		apu:    apu.New(44100),
	}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

func (b *Bus) PPU() *ppu.PPU           { return b.ppu }
func (b *Bus) APU() *apu.APU           { return b.apu }
func (b *Bus) Cart() cart.Cartridge    { return b.cart }
func (b *Bus) DoubleSpeed() bool       { return b.doubleSpeed }

func (b *Bus) wramBank() int {
	n := int(b.svbk & 0x07)
	if n == 0 {
		n = 1
	}
	return n
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wram[b.wramBank()][addr-0xD000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			return b.wram[0][mirror-0xC000]
		}
		return b.wram[b.wramBank()][mirror-0xD000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // unmapped
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.serial.ReadData()
	case addr == 0xFF02:
		return b.serial.ReadControl()
	case addr == 0xFF04:
		return b.timer.ReadDIV()
	case addr == 0xFF05:
		return b.timer.ReadTIMA()
	case addr == 0xFF06:
		return b.timer.ReadTMA()
	case addr == 0xFF07:
		return b.timer.ReadTAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF4D:
		speedBit := byte(0)
		if b.doubleSpeed {
			speedBit = 0x80
		}
		return speedBit | 0x7E | (b.key1 & 0x01)
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF // HDMA source/dest registers are write-only
	case addr == 0xFF55:
		if b.hdmaLen < 0 {
			return 0xFF
		}
		return byte(b.hdmaLen/0x10 - 1)
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFF70:
		return 0xF8 | (b.svbk & 0x07)
	case addr == 0xFFFF:
		return b.ie
	}
	return 0xFF
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wram[b.wramBank()][addr-0xD000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror <= 0xCFFF {
			b.wram[0][mirror-0xC000] = value
		} else {
			b.wram[b.wramBank()][mirror-0xD000] = value
		}
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unmapped, writes ignored
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.serial.WriteData(value)
	case addr == 0xFF02:
		b.serial.WriteControl(value)
		if b.serial.PendingInterrupt() {
			b.ifReg |= 1 << 3
		}
	case addr == 0xFF04:
		b.timer.WriteDIV()
		if b.debugTimer {
			log.Printf("[TMR] DIV write -> reset tima=%02X tma=%02X tac=%02X", b.timer.ReadTIMA(), b.timer.ReadTMA(), b.timer.ReadTAC())
		}
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B, addr == 0xFF4F,
		addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.dmaActive = true
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
	case addr == 0xFF4D:
		b.key1 = value & 0x01
	case addr == 0xFF51:
		b.hdmaSrc = b.hdmaSrc&0x00FF | uint16(value)<<8
	case addr == 0xFF52:
		b.hdmaSrc = b.hdmaSrc&0xFF00 | uint16(value&0xF0)
	case addr == 0xFF53:
		b.hdmaDst = b.hdmaDst&0x00FF | uint16(value&0x1F)<<8
	case addr == 0xFF54:
		b.hdmaDst = b.hdmaDst&0xFF00 | uint16(value&0xF0)
	case addr == 0xFF55:
		b.startHDMA(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFF70:
		b.svbk = value & 0x07
	case addr == 0xFFFF:
		b.ie = value
	}
}

// startHDMA begins a general-purpose transfer (completed immediately) or
// arms an H-blank transfer (drained block-by-block from StepMCycle).
// See spec.md §4.2: HDMA5 bit7 selects the mode, bits 0-6 encode length.
func (b *Bus) startHDMA(value byte) {
	length := (int(value&0x7F) + 1) * 0x10
	if b.hdmaHBlankMode && b.hdmaLen >= 0 && value&0x80 == 0 {
		b.hdmaLen = -1 // writing with bit7=0 while active stops an HBlank transfer
		return
	}
	b.hdmaHBlankMode = value&0x80 != 0
	b.hdmaLen = length
	if !b.hdmaHBlankMode {
		b.copyHDMABlock(length)
		b.hdmaLen = -1
	}
}

func (b *Bus) copyHDMABlock(n int) {
	for i := 0; i < n; i++ {
		dst := 0x8000 + b.hdmaDst
		b.ppu.CPUWrite(dst, b.Read(b.hdmaSrc))
		b.hdmaSrc++
		b.hdmaDst = (b.hdmaDst + 1) & 0x1FFF
	}
}

// StepHBlankDMA is invoked once per H-blank by the PPU-driving loop and
// drains a single 0x10-byte block if an H-blank HDMA transfer is armed.
func (b *Bus) StepHBlankDMA() {
	if !b.hdmaHBlankMode || b.hdmaLen <= 0 {
		return
	}
	b.copyHDMABlock(0x10)
	b.hdmaLen -= 0x10
	if b.hdmaLen <= 0 {
		b.hdmaLen = -1
		b.hdmaHBlankMode = false
	}
}

// Joypad button bitmasks, kept for the ebiten host's input layer.
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

var joypButtons = [8]joypad.Button{
	joypad.Right, joypad.Left, joypad.Up, joypad.Down,
	joypad.A, joypad.B, joypad.Select, joypad.Start,
}

// SetJoypadState sets which buttons are currently pressed, using the Joyp*
// bitmask constants (set bits mean pressed).
func (b *Bus) SetJoypadState(mask byte) {
	for i, btn := range joypButtons {
		b.joypad.SetButtonPressed(btn, mask&(1<<uint(i)) != 0)
	}
}

// JoypadAnyPressed reports whether any button is currently held, the only
// condition that wakes the CPU from STOP.
func (b *Bus) JoypadAnyPressed() bool { return b.joypad.AnyPressed() }

// SetSerialSink installs a callback invoked with each byte written through
// the serial port (used by conformance-test harnesses that capture blargg's
// serial-port text output).
func (b *Bus) SetSerialSink(sink func(byte)) { b.serial.SetSink(sink) }

// SetBootROM loads a boot ROM to be mapped at 0x0000-0x00FF until disabled
// via a non-zero write to 0xFF50.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// ArmSpeedSwitch reports whether KEY1 bit0 is set (the CPU's STOP handler
// consumes this to decide whether STOP performs a double-speed toggle) and
// clears it, flipping DoubleSpeed.
func (b *Bus) ArmSpeedSwitch() bool {
	if b.key1&0x01 == 0 {
		return false
	}
	b.key1 = 0
	b.doubleSpeed = !b.doubleSpeed
	return true
}

// PendingInterrupts returns the current IE & IF mask the CPU should act on.
func (b *Bus) PendingInterrupts() byte { return b.ie & b.ifReg & 0x1F }

// ClearInterrupt clears a single dispatched interrupt's IF bit.
func (b *Bus) ClearInterrupt(bit int) { b.ifReg &^= 1 << uint(bit) }

// Tick advances the bus by the given number of CPU T-states, in whole
// M-cycles (the CPU only ever consumes cycles 4 at a time). It's the entry
// point instruction dispatch uses between fetch/execute phases; StepMCycle
// is the finer-grained primitive it's built from.
func (b *Bus) Tick(tStates int) {
	for i := 0; i < tStates/4; i++ {
		b.StepMCycle()
	}
}

// StepMCycle advances every subcomponent by one M-cycle (4 T-cycles). The
// timer and cartridge RTC always see all 4 T-cycles regardless of speed;
// only the PPU and APU skip every other T-cycle in CGB double speed
// (spec.md §5), matching original_source/emulator-core/src/bus.rs's
// step_m_cycle: cartridge.step()/timer.step() run unconditionally every
// iteration, only apu.step()/ppu.step() are gated by double_speed_tick.
func (b *Bus) StepMCycle() {
	for i := 0; i < 4; i++ {
		doubleSpeedTick := b.doubleSpeed && i%2 == 1

		b.timer.Tick()
		if b.timer.PendingInterrupt() {
			b.ifReg |= 1 << 2
		}
		if !doubleSpeedTick {
			b.ppu.Tick(1)
			if b.ppu.ConsumeHBlankEntry() {
				b.StepHBlankDMA()
			}
			b.apu.Tick(1)
		}
		b.cart.Tick()
		if b.joypad.PendingInterrupt() {
			b.ifReg |= 1 << 4
		}
		if b.serial.PendingInterrupt() {
			b.ifReg |= 1 << 3
		}
		if b.dmaActive {
			if b.dmaIndex < 0xA0 {
				v := b.Read(b.dmaSrc + uint16(b.dmaIndex))
				b.ppu.CPUWrite(0xFE00+uint16(b.dmaIndex), v)
				b.dmaIndex++
			}
			if b.dmaIndex >= 0xA0 {
				b.dmaActive = false
			}
		}
	}
}

// --- Save/Load state ---

type busState struct {
	WRAM      [8][wramBankSize]byte
	SVBK      byte
	HRAM      [0x7F]byte
	IE, IF    byte
	Key1      byte
	DoubleSpd bool
	DMA       byte
	DMAActive bool
	DMASrc    uint16
	DMAIdx    int
	HDMASrc   uint16
	HDMADst   uint16
	HDMALen   int
	HDMAHBl   bool
	BootEn    bool

	Timer  timer.State
	Joypad joypad.State
	Serial serial.State
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, SVBK: b.svbk, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		Key1: b.key1, DoubleSpd: b.doubleSpeed,
		DMA: b.dma, DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		HDMASrc: b.hdmaSrc, HDMADst: b.hdmaDst, HDMALen: b.hdmaLen, HDMAHBl: b.hdmaHBlankMode,
		BootEn: b.bootEnabled,
		Timer:  b.timer.SaveState(),
		Joypad: b.joypad.SaveState(),
		Serial: b.serial.SaveState(),
	}
	_ = enc.Encode(s)

	if b.ppu != nil {
		_ = enc.Encode(b.ppu.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	_ = enc.Encode(b.apu.SaveState())
	_ = enc.Encode(b.cart.SaveData())
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.svbk, b.hram = s.WRAM, s.SVBK, s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.key1, b.doubleSpeed = s.Key1, s.DoubleSpd
	b.dma, b.dmaActive, b.dmaSrc, b.dmaIndex = s.DMA, s.DMAActive, s.DMASrc, s.DMAIdx
	b.hdmaSrc, b.hdmaDst, b.hdmaLen, b.hdmaHBlankMode = s.HDMASrc, s.HDMADst, s.HDMALen, s.HDMAHBl
	b.bootEnabled = s.BootEn
	b.timer.LoadState(s.Timer)
	b.joypad.LoadState(s.Joypad)
	b.serial.LoadState(s.Serial)

	var ps []byte
	if err := dec.Decode(&ps); err == nil && b.ppu != nil {
		b.ppu.LoadState(ps)
	}
	var as []byte
	if err := dec.Decode(&as); err == nil {
		b.apu.LoadState(as)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		_ = b.cart.LoadSaveData(cs)
	}
}
