package cart

// latchState is the 3-state machine on the 0x6000-0x7FFF latch register:
// a write of 0 arms it, a following write of 1 copies the live RTC counters
// into the latched shadow registers the CPU actually reads.
type latchState int

const (
	latchIdle latchState = iota
	latchArmed
	latchDone
)

// rtcState is the MBC3 real-time-clock register file (spec.md §4.6): five
// live counters plus the latched snapshot exposed to reads.
type rtcState struct {
	Seconds, Minutes, Hours byte
	DayLow                  byte
	DayHigh                 byte // bit0: day high bit, bit6: halt, bit7: carry

	LatchSeconds, LatchMinutes, LatchHours byte
	LatchDayLow, LatchDayHigh              byte

	SubSecondTicks int // T-cycles accumulated toward the next second
	Latch          latchState
}

// tCyclesPerSecond assumes a fixed 4.194304MHz master clock regardless of
// CGB double-speed mode; the RTC runs off the hardware oscillator, not the
// CPU's effective speed.
const tCyclesPerSecond = 4194304

func (r *rtcState) tick() {
	if r.DayHigh&0x40 != 0 { // halted
		return
	}
	r.SubSecondTicks++
	if r.SubSecondTicks < tCyclesPerSecond {
		return
	}
	r.SubSecondTicks = 0
	r.Seconds++
	if r.Seconds < 60 {
		return
	}
	r.Seconds = 0
	r.Minutes++
	if r.Minutes < 60 {
		return
	}
	r.Minutes = 0
	r.Hours++
	if r.Hours < 24 {
		return
	}
	r.Hours = 0
	day := uint16(r.DayLow) | uint16(r.DayHigh&0x01)<<8
	day++
	if day > 0x1FF {
		day = 0
		r.DayHigh |= 0x80 // carry
	}
	r.DayLow = byte(day)
	r.DayHigh = r.DayHigh&0xFE | byte(day>>8)
}

// latch advances the write-0-then-write-1 latch state machine, copying the
// live counters into the latched registers on the 0->1 edge.
func (r *rtcState) latch(value byte) {
	switch {
	case value == 0x00:
		r.Latch = latchArmed
	case value == 0x01 && r.Latch == latchArmed:
		r.LatchSeconds = r.Seconds
		r.LatchMinutes = r.Minutes
		r.LatchHours = r.Hours
		r.LatchDayLow = r.DayLow
		r.LatchDayHigh = r.DayHigh
		r.Latch = latchDone
	default:
		r.Latch = latchIdle
	}
}

// mbc3 implements the 7-bit ROM bank / 4-bit RAM-or-RTC selector scheme,
// with an optional real-time clock (cart types 0x0F-0x13).
type mbc3 struct {
	rom []byte
	ram []byte
	rtc *rtcState

	romBank    byte // 7 bits, 0 treated as 1
	ramRTCSel  byte // 0x00-0x03: RAM bank; 0x08-0x0C: RTC register
	ramEnabled bool
}

func newMBC3(rom []byte, h *Header) *mbc3 {
	m := &mbc3{rom: rom, romBank: 1}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	if h.CartType >= 0x0F && h.CartType <= 0x10 {
		m.rtc = &rtcState{}
	}
	return m
}

func (m *mbc3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return bankedROMRead(m.rom, 0, addr)
	case addr < 0x8000:
		return bankedROMRead(m.rom, int(m.romBank), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtc != nil && m.ramRTCSel >= 0x08 && m.ramRTCSel <= 0x0C {
			switch m.ramRTCSel {
			case 0x08:
				return m.rtc.LatchSeconds
			case 0x09:
				return m.rtc.LatchMinutes
			case 0x0A:
				return m.rtc.LatchHours
			case 0x0B:
				return m.rtc.LatchDayLow
			case 0x0C:
				return m.rtc.LatchDayHigh
			}
		}
		if idx, ok := bankedRAM(m.ram, int(m.ramRTCSel), 0x2000, addr-0xA000); ok {
			return m.ram[idx]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *mbc3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.ramRTCSel = value
	case addr < 0x8000:
		if m.rtc != nil {
			m.rtc.latch(value)
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtc != nil && m.ramRTCSel >= 0x08 && m.ramRTCSel <= 0x0C {
			switch m.ramRTCSel {
			case 0x08:
				m.rtc.Seconds = value % 60
			case 0x09:
				m.rtc.Minutes = value % 60
			case 0x0A:
				m.rtc.Hours = value % 24
			case 0x0B:
				m.rtc.DayLow = value
			case 0x0C:
				m.rtc.DayHigh = value & 0xC1
			}
			return
		}
		if idx, ok := bankedRAM(m.ram, int(m.ramRTCSel), 0x2000, addr-0xA000); ok {
			m.ram[idx] = value
		}
	}
}

func (m *mbc3) Tick() {
	if m.rtc != nil {
		m.rtc.tick()
	}
}

func (m *mbc3) Variant() Variant { return MBC3 }

func (m *mbc3) SaveData() []byte { return encodeSave(MBC3, m.ram, m.rtc) }

func (m *mbc3) LoadSaveData(data []byte) error {
	b, err := decodeSave(data, MBC3, len(m.ram))
	if err != nil {
		return err
	}
	copy(m.ram, b.RAM)
	if m.rtc != nil && b.RTC != nil {
		*m.rtc = *b.RTC
	}
	return nil
}
