// Package emu aggregates the CPU, Bus, and cartridge into the single
// System/Machine the host collaborators (internal/ui, cmd/gbemu,
// cmd/cpurunner) drive: load a ROM, step frames, feed input, pull audio,
// and persist save data and save states.
package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
)

// ErrSaveDataMismatch re-exports cart.ErrSaveDataMismatch, which the
// cartridge's LoadSaveData returns when a blob doesn't match its size or
// version. Machine.WriteSaveData and LoadBattery report that case as false.
var ErrSaveDataMismatch = cart.ErrSaveDataMismatch

// ErrNoCartridge is returned by operations that require a loaded cartridge
// (stepping, save data, save states) before one has been loaded.
var ErrNoCartridge = errors.New("emu: no cartridge loaded")

// sampleRate is the APU's fixed output rate; internal/ui's ebiten audio
// context is configured to match (see internal/ui/ebitenapp.go).
const sampleRate = 48000

// tCyclesPerFrame is the LCD's full 154-line scan, in T-cycles (spec.md §8).
const tCyclesPerFrame = 70224

// Buttons is the host-facing snapshot of all eight physical inputs, mirrored
// onto the joypad each frame via SetButtons (or individually via
// SetButtonPressed).
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine is the System aggregate of spec.md §3's ownership model: it owns
// the CPU, which owns the Bus, which owns cartridge/PPU/APU/timer/joypad/
// serial as exclusive sub-objects.
type Machine struct {
	cfg Config

	cpu *cpu.CPU
	bus *bus.Bus

	romPath string
	rom     []byte
	boot    []byte
	header  *cart.Header

	cgbCapable bool // header CGB flag bit7 set (0x80 or 0xC0)
	cgbOnly    bool // header CGB flag == 0xC0
	cgbActive  bool // PPU currently running with CGB tile-attribute semantics

	prefCGBColors bool // host preference, persists across ROM loads: colorize DMG-only carts
	colorizing    bool // this session's DMG-only cart is currently compat-colorized
	compatPaletteID int

	serialWriter io.Writer

	buttons    Buttons // last full snapshot set via SetButtons/SetButtonPressed
	fb         []byte  // packed RGBA 160x144*4, refreshed by StepFrame
}

func New(cfg Config) *Machine {
	return &Machine{cfg: cfg, fb: make([]byte, 160*144*4)}
}

// LoadCartridge parses rom's header, wires a fresh Bus/CPU around it, and
// resets to DMG (or CGB, if the header demands it) post-boot state unless a
// boot ROM image is supplied, in which case execution starts from 0x0000.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	c, err := cart.New(rom)
	if err != nil {
		return err
	}
	m.rom = rom
	m.boot = boot
	m.header = h
	m.cgbCapable = h.CGBFlag&0x80 != 0
	m.cgbOnly = h.CGBFlag == 0xC0
	m.colorizing = false

	m.bus = bus.New(c)
	if len(boot) >= 0x100 {
		m.bus.SetBootROM(boot)
	}
	if m.serialWriter != nil {
		m.bus.SetSerialSink(func(b byte) { _, _ = m.serialWriter.Write([]byte{b}) })
	}
	m.cpu = cpu.New(m.bus)
	m.cgbActive = m.cgbCapable
	m.bus.PPU().SetCGBMode(m.cgbActive)

	if len(boot) >= 0x100 {
		m.cpu.SetPC(0x0000)
	} else {
		m.resetPostBootInternal()
	}
	return nil
}

// LoadROMFromFile reads and loads rom at path (plus the previously
// configured boot ROM, if any), recording the path for title/compat-palette/
// save-data bookkeeping.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SetBootROM stores a boot ROM image to be mapped at reset until the
// in-ROM bootstrap disables it via FF50. Takes effect on the next load or
// reset call.
func (m *Machine) SetBootROM(data []byte) { m.boot = data }

// resetPostBootInternal applies typical DMG/CGB post-boot register and I/O
// defaults without running the boot ROM (mirrors what a real boot ROM would
// have left behind), matching cmd/cpurunner's no-bootrom initialization.
func (m *Machine) resetPostBootInternal() {
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	b := m.bus
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC on, BG+sprites
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// ResetPostBoot restarts the currently loaded cartridge in plain DMG mode
// (no CGB colorization), as if freshly inserted into a DMG console.
func (m *Machine) ResetPostBoot() {
	if m.rom == nil {
		return
	}
	_ = m.LoadCartridge(m.rom, nil)
	m.cgbActive = false
	m.colorizing = false
	m.bus.PPU().SetCGBMode(false)
	m.bus.PPU().SetCompatPalette(nil)
}

// ResetCGBPostBoot restarts the currently loaded cartridge with CGB
// compatibility colorization. For CGB-capable carts this simply runs in
// native CGB mode; for DMG-only carts, useCGB additionally installs the
// compat color palette over the grayscale shades.
func (m *Machine) ResetCGBPostBoot(useCGB bool) {
	if m.rom == nil {
		return
	}
	_ = m.LoadCartridge(m.rom, nil)
	m.prefCGBColors = useCGB
	if m.cgbCapable {
		m.cgbActive = true
		m.bus.PPU().SetCGBMode(true)
		return
	}
	m.cgbActive = false
	m.bus.PPU().SetCGBMode(false)
	if useCGB {
		m.autoApplyCompatPalette()
	} else {
		m.colorizing = false
		m.bus.PPU().SetCompatPalette(nil)
	}
}

// ResetWithBoot restarts execution from the boot ROM's entry point (0x0000),
// replaying header logo/checksum validation and initial register setup.
func (m *Machine) ResetWithBoot() {
	if m.rom == nil {
		return
	}
	_ = m.LoadCartridge(m.rom, m.boot)
}

// FetchDecodeExecute executes exactly one decoded CPU instruction (or one
// interrupt dispatch, or one HALT/STOP step) and returns the T-cycles
// consumed (spec.md §6).
func (m *Machine) FetchDecodeExecute() byte {
	if m.cpu == nil {
		return 0
	}
	return byte(m.cpu.Step())
}

// stepFrame runs FetchDecodeExecute until the PPU reports a completed frame.
func (m *Machine) stepFrame() {
	if m.cpu == nil {
		return
	}
	for !m.bus.PPU().FrameReady() {
		if cyc := m.cpu.Step(); cyc == 0 {
			break
		}
	}
}

// StepFrame advances the machine by one displayed frame and refreshes the
// RGBA framebuffer returned by Framebuffer.
func (m *Machine) StepFrame() {
	m.stepFrame()
	m.packFramebuffer()
}

// StepFrameNoRender advances the machine by one frame without paying the
// RGBA packing cost, for headless conformance runs that only inspect serial
// output or CRC the raw PPU buffer occasionally.
func (m *Machine) StepFrameNoRender() {
	m.stepFrame()
}

func (m *Machine) packFramebuffer() {
	fb := m.bus.PPU().FrameBuffer()
	i := 0
	for y := 0; y < 144; y++ {
		for x := 0; x < 160; x++ {
			px := fb[y][x]
			m.fb[i+0] = byte(px >> 24)
			m.fb[i+1] = byte(px >> 16)
			m.fb[i+2] = byte(px >> 8)
			m.fb[i+3] = byte(px)
			i += 4
		}
	}
}

// Framebuffer returns the most recently rendered frame, packed RGBA
// 160x144x4 bytes, row-major.
func (m *Machine) Framebuffer() []byte { return m.fb }

// PPUFrontBuffer returns the PPU's own packed-uint32 front buffer (spec.md
// §6's ppu_front_buffer, minus the RGB555-vs-RGBA packing detail: internal
// storage is already expanded to 8-bit channels since the host never needs
// the narrower format).
func (m *Machine) PPUFrontBuffer() [144][160]uint32 {
	if m.bus == nil {
		return [144][160]uint32{}
	}
	return m.bus.PPU().FrameBuffer()
}

// APUSample pulls one stereo sample pair, in [-1,1] floats (spec.md §6).
func (m *Machine) APUSample() [2]float32 {
	if m.bus == nil {
		return [2]float32{}
	}
	return m.bus.APU().Sample()
}

// APUBufferedStereo reports how many buffered stereo frames are waiting to
// be pulled, used by internal/ui's audio stream to size its reads.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUPullStereo drains up to max interleaved [l0,r0,l1,r1,...] int16 samples.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.bus == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUCapBufferedStereo discards buffered audio beyond ceiling frames, used
// when the UI wants to clamp output latency after a stall.
func (m *Machine) APUCapBufferedStereo(ceiling int) {
	if m.bus == nil {
		return
	}
	for m.bus.APU().StereoAvailable() > ceiling {
		if len(m.bus.APU().PullStereo(1)) == 0 {
			return
		}
	}
}

// APUClearAudioLatency drains all buffered audio, used when (re)starting
// playback to avoid replaying stale samples.
func (m *Machine) APUClearAudioLatency() {
	if m.bus == nil {
		return
	}
	for m.bus.APU().StereoAvailable() > 0 {
		if len(m.bus.APU().PullStereo(4096)) == 0 {
			return
		}
	}
}

func buttonsMask(b Buttons) byte {
	var mask byte
	set := func(pressed bool, bit byte) {
		if pressed {
			mask |= bit
		}
	}
	set(b.Right, bus.JoypRight)
	set(b.Left, bus.JoypLeft)
	set(b.Up, bus.JoypUp)
	set(b.Down, bus.JoypDown)
	set(b.A, bus.JoypA)
	set(b.B, bus.JoypB)
	set(b.Select, bus.JoypSelectBtn)
	set(b.Start, bus.JoypStart)
	return mask
}

// SetButtons mirrors a full button snapshot onto the joypad in one call.
func (m *Machine) SetButtons(b Buttons) {
	m.buttons = b
	if m.bus == nil {
		return
	}
	m.bus.SetJoypadState(buttonsMask(b))
}

// Button names SetButtonPressed accepts (spec.md §6's {A,B,Start,Select,
// Up,Down,Left,Right} enum).
const (
	ButtonA      = "A"
	ButtonB      = "B"
	ButtonStart  = "Start"
	ButtonSelect = "Select"
	ButtonUp     = "Up"
	ButtonDown   = "Down"
	ButtonLeft   = "Left"
	ButtonRight  = "Right"
)

// SetButtonPressed updates a single button's state, leaving the rest of the
// joypad snapshot untouched (spec.md §6).
func (m *Machine) SetButtonPressed(button string, pressed bool) {
	switch button {
	case ButtonA:
		m.buttons.A = pressed
	case ButtonB:
		m.buttons.B = pressed
	case ButtonStart:
		m.buttons.Start = pressed
	case ButtonSelect:
		m.buttons.Select = pressed
	case ButtonUp:
		m.buttons.Up = pressed
	case ButtonDown:
		m.buttons.Down = pressed
	case ButtonLeft:
		m.buttons.Left = pressed
	case ButtonRight:
		m.buttons.Right = pressed
	default:
		return
	}
	if m.bus != nil {
		m.bus.SetJoypadState(buttonsMask(m.buttons))
	}
}

// SetSerialWriter installs an io.Writer that receives every byte the
// cartridge writes through the serial port, in addition to the bus's
// internal accumulation (used by conformance-test harnesses that watch for
// "Passed"/"Failed" substrings).
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.serialWriter = w
	if m.bus != nil {
		m.bus.SetSerialSink(func(b byte) { _, _ = w.Write([]byte{b}) })
	}
}

// LCDPPUEnabled reports whether LCDC bit7 (LCD/PPU enable) is currently set.
func (m *Machine) LCDPPUEnabled() bool {
	if m.bus == nil {
		return false
	}
	return m.bus.PPU().LCDC()&0x80 != 0
}

// SetUseFetcherBG stores the fetcher/FIFO background flag in the config.
// Rendering does not read it: internal/ppu draws DMG backgrounds through the
// fetcher and CGB backgrounds through RenderBGScanlineCGB either way.
func (m *Machine) SetUseFetcherBG(v bool) { m.cfg.UseFetcherBG = v }

// ROMPath returns the filesystem path LoadROMFromFile last loaded, or ""
// when the cartridge was loaded directly via LoadCartridge/bytes.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header's decoded title, or "" if no
// cartridge is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// --- Save data (cartridge external RAM + RTC) ---

// ReadSaveData serializes cartridge external RAM/RTC into a versioned blob
// (spec.md §6).
func (m *Machine) ReadSaveData() []byte {
	if m.bus == nil {
		return nil
	}
	return m.bus.Cart().SaveData()
}

// WriteSaveData restores a blob produced by ReadSaveData, returning false
// (without side effects) on a size/version mismatch (spec.md §6, §7).
func (m *Machine) WriteSaveData(data []byte) bool {
	if m.bus == nil {
		return false
	}
	return m.bus.Cart().LoadSaveData(data) == nil
}

// SaveBattery is an alias for ReadSaveData kept for the existing host naming
// (cmd/gbemu, internal/ui persist it to a ROM-adjacent .sav file).
func (m *Machine) SaveBattery() ([]byte, bool) {
	data := m.ReadSaveData()
	return data, data != nil
}

// LoadBattery is an alias for WriteSaveData.
func (m *Machine) LoadBattery(data []byte) bool { return m.WriteSaveData(data) }

// --- Save states (full machine snapshot) ---

type machineState struct {
	CPU []byte
	Bus []byte
}

// SaveState serializes the full machine (CPU registers, bus, and every
// subcomponent) into a single blob.
func (m *Machine) SaveState() ([]byte, error) {
	if m.cpu == nil || m.bus == nil {
		return nil, ErrNoCartridge
	}
	var buf bytes.Buffer
	s := machineState{CPU: m.cpu.SaveState(), Bus: m.bus.SaveState()}
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadState restores a blob produced by SaveState.
func (m *Machine) LoadState(data []byte) error {
	if m.cpu == nil || m.bus == nil {
		return ErrNoCartridge
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	return nil
}

// SaveStateToFile writes SaveState's blob to path.
func (m *Machine) SaveStateToFile(path string) error {
	data, err := m.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadStateFromFile reads and applies a blob written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}

// --- CGB compatibility colorization for DMG-only cartridges ---

// WantCGBColors reports the host's persistent preference for CGB-style
// colorization, independent of whether it's currently active for the
// cartridge loaded right now.
func (m *Machine) WantCGBColors() bool { return m.prefCGBColors }

// SetUseCGBBG records the host's CGB-colorization preference; callers
// follow it with ResetCGBPostBoot/ResetPostBoot to actually apply it.
func (m *Machine) SetUseCGBBG(v bool) { m.prefCGBColors = v }

// UseCGBBG reports whether the PPU is actually rendering with CGB
// background semantics, or compat colorization, right now.
func (m *Machine) UseCGBBG() bool { return m.cgbActive || m.colorizing }

// IsCGBCompat reports whether the loaded cartridge is DMG-only and is
// currently being colorized through the compat palette (as opposed to
// running natively in CGB mode, or in plain DMG grayscale).
func (m *Machine) IsCGBCompat() bool {
	return m.header != nil && !m.cgbCapable && m.colorizing
}

func (m *Machine) applyCompatPalette() {
	if m.bus == nil {
		return
	}
	set := cgbCompatSets[m.compatPaletteID%len(cgbCompatSets)]
	m.bus.PPU().SetCompatPalette(&set)
}

// SetCompatPalette selects one of the curated DMG-on-CGB color sets by
// index (wrapping), applying it immediately.
func (m *Machine) SetCompatPalette(id int) {
	n := len(cgbCompatSets)
	m.compatPaletteID = ((id % n) + n) % n
	m.applyCompatPalette()
}

// CycleCompatPalette advances the compat palette selection by delta
// (positive or negative), applying it immediately.
func (m *Machine) CycleCompatPalette(delta int) {
	m.SetCompatPalette(m.compatPaletteID + delta)
}

// CurrentCompatPalette returns the currently selected compat palette index.
func (m *Machine) CurrentCompatPalette() int { return m.compatPaletteID }

// CompatPaletteName returns the curated name for compat palette index id.
func (m *Machine) CompatPaletteName(id int) string {
	n := len(cgbCompatSetNames)
	return cgbCompatSetNames[((id%n)+n)%n]
}

// autoApplyCompatPalette picks a starting palette for a freshly loaded
// DMG-only cartridge using the title/licensee heuristic table. It runs on
// every ResetCGBPostBoot(true) of such a cartridge.
func (m *Machine) autoApplyCompatPalette() {
	m.colorizing = true
	id, _ := autoCompatPaletteFromHeader(m.header)
	m.SetCompatPalette(id)
}
