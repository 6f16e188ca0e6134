package cart

// mbc1 implements the 5-bit BANK1 / 2-bit BANK2 banking scheme with its
// simple/advanced mode switch (spec.md §4.6).
type mbc1 struct {
	rom []byte
	ram []byte

	bank1      byte // 5 bits, writes of 0 become 1
	bank2      byte // 2 bits
	mode       byte // 0: simple, 1: advanced
	ramEnabled bool
}

func newMBC1(rom []byte, h *Header) *mbc1 {
	m := &mbc1{rom: rom, bank1: 1}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	return m
}

// romBankLow is the bank mapped at 0x0000-0x3FFF: bank 0 in simple mode,
// or (BANK2<<5) in advanced mode.
func (m *mbc1) romBankLow() int {
	if m.mode == 0 {
		return 0
	}
	return int(m.bank2) << 5
}

// romBankHigh is the bank mapped at 0x4000-0x7FFF in both modes.
func (m *mbc1) romBankHigh() int {
	return int(m.bank2)<<5 | int(m.bank1)
}

func (m *mbc1) ramBank() int {
	if m.mode == 0 {
		return 0
	}
	return int(m.bank2)
}

func (m *mbc1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return bankedROMRead(m.rom, m.romBankLow(), addr)
	case addr < 0x8000:
		return bankedROMRead(m.rom, m.romBankHigh(), addr-0x4000)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if idx, ok := bankedRAM(m.ram, m.ramBank(), 0x2000, addr-0xA000); ok {
			return m.ram[idx]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *mbc1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x1F
		if v == 0 {
			v = 1
		}
		m.bank1 = v
	case addr < 0x6000:
		m.bank2 = value & 0x03
	case addr < 0x8000:
		m.mode = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if idx, ok := bankedRAM(m.ram, m.ramBank(), 0x2000, addr-0xA000); ok {
			m.ram[idx] = value
		}
	}
}

func (m *mbc1) Tick()            {}
func (m *mbc1) Variant() Variant { return MBC1 }

func (m *mbc1) SaveData() []byte { return encodeSave(MBC1, m.ram, nil) }

func (m *mbc1) LoadSaveData(data []byte) error {
	b, err := decodeSave(data, MBC1, len(m.ram))
	if err != nil {
		return err
	}
	copy(m.ram, b.RAM)
	return nil
}
