package cart

// mbc5 implements the split 9-bit ROM bank / 4-bit RAM bank scheme. Unlike
// MBC1/MBC3, bank 0 is a legal selection for the switchable window (spec.md
// §4.6) — no "0 maps to 1" correction applies.
type mbc5 struct {
	rom []byte
	ram []byte

	romBank    uint16 // 9 bits
	ramBank    byte   // 4 bits
	ramEnabled bool
}

func newMBC5(rom []byte, h *Header) *mbc5 {
	m := &mbc5{rom: rom, romBank: 1}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	return m
}

func (m *mbc5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return bankedROMRead(m.rom, 0, addr)
	case addr < 0x8000:
		return bankedROMRead(m.rom, int(m.romBank), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if idx, ok := bankedRAM(m.ram, int(m.ramBank), 0x2000, addr-0xA000); ok {
			return m.ram[idx]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *mbc5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x3000:
		m.romBank = m.romBank&0x100 | uint16(value)
	case addr < 0x4000:
		if value&0x01 != 0 {
			m.romBank = m.romBank&0x0FF | 0x100
		} else {
			m.romBank &^= 0x100
		}
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if idx, ok := bankedRAM(m.ram, int(m.ramBank), 0x2000, addr-0xA000); ok {
			m.ram[idx] = value
		}
	}
}

func (m *mbc5) Tick()            {}
func (m *mbc5) Variant() Variant { return MBC5 }

func (m *mbc5) SaveData() []byte { return encodeSave(MBC5, m.ram, nil) }

func (m *mbc5) LoadSaveData(data []byte) error {
	b, err := decodeSave(data, MBC5, len(m.ram))
	if err != nil {
		return err
	}
	copy(m.ram, b.RAM)
	return nil
}
