// Package cart decodes a cartridge header and exposes the ROM/external-RAM
// address space through whichever memory-bank controller (MBC) the header
// selects.
package cart

import "errors"

// ErrHeaderInvalid is returned by New when the ROM image is too small, the
// header checksum does not match, or the cartridge-type byte names an MBC
// this emulator does not implement.
var ErrHeaderInvalid = errors.New("cart: invalid header")

// ErrGlobalChecksum is a non-fatal warning: the header's global checksum
// (0x14E-0x14F) did not match the ROM contents. Real hardware never verifies
// it either; callers may log it and continue.
var ErrGlobalChecksum = errors.New("cart: global checksum mismatch")

// ErrSaveDataMismatch is returned by LoadSaveData when the supplied blob's
// version or RAM size does not match this cartridge; the caller must
// discard the blob rather than apply a partial load.
var ErrSaveDataMismatch = errors.New("cart: save data mismatch")

// Variant names the memory-bank-controller family of a cartridge.
type Variant int

const (
	NoMBC Variant = iota
	MBC1
	MBC3
	MBC5
)

// Cartridge is the interface the Bus uses for the ROM (0x0000-0x7FFF) and
// external-RAM (0xA000-0xBFFF) address windows.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)

	// Tick advances any cartridge-internal real-time clock by one T-cycle.
	// A no-op for variants without an RTC.
	Tick()

	// Variant reports which MBC family this cartridge implements.
	Variant() Variant

	// SaveData serializes external RAM (and RTC shadow registers, if any)
	// into a versioned, self-describing blob.
	SaveData() []byte

	// LoadSaveData restores a blob produced by SaveData. It returns
	// ErrSaveDataMismatch and leaves the cartridge untouched when the
	// blob's version or size does not match this cartridge.
	LoadSaveData(data []byte) error
}

// New parses rom's header and constructs the matching MBC implementation.
func New(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	switch {
	case h.CartType == 0x00:
		return newNoMBC(rom, h), nil
	case h.CartType >= 0x01 && h.CartType <= 0x03:
		return newMBC1(rom, h), nil
	case h.CartType >= 0x0F && h.CartType <= 0x13:
		return newMBC3(rom, h), nil
	case h.CartType >= 0x19 && h.CartType <= 0x1E:
		return newMBC5(rom, h), nil
	default:
		return nil, ErrHeaderInvalid
	}
}

// bankedROMRead reads a byte from rom at the given 16KiB bank, wrapping the
// bank index modulo the number of banks the image actually has (§7: "out-of-
// range MBC banks are wrapped modulo the installed bank count").
func bankedROMRead(rom []byte, bank int, offset uint16) byte {
	nbanks := len(rom) / 0x4000
	if nbanks == 0 {
		return 0xFF
	}
	bank %= nbanks
	idx := bank*0x4000 + int(offset)
	if idx < 0 || idx >= len(rom) {
		return 0xFF
	}
	return rom[idx]
}

func bankedRAM(ram []byte, bank int, bankSize int, offset uint16) (int, bool) {
	if len(ram) == 0 || bankSize == 0 {
		return 0, false
	}
	nbanks := len(ram) / bankSize
	if nbanks == 0 {
		return 0, false
	}
	bank %= nbanks
	idx := bank*bankSize + int(offset)
	if idx < 0 || idx >= len(ram) {
		return 0, false
	}
	return idx, true
}
