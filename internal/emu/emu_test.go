package emu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestROM returns a minimal 32KiB no-MBC ROM with a valid header
// checksum, so cart.New accepts it.
func buildTestROM() []byte {
	rom := make([]byte, 0x8000)
	rom[0x0147] = 0x00 // ROM-only
	rom[0x0148] = 0x00 // 32KiB
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	rom[0x014D] = sum
	return rom
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m := New(Config{})
	require.NoError(t, m.LoadCartridge(buildTestROM(), nil))
	return m
}

func TestMachine_LoadCartridgePostBootDefaults(t *testing.T) {
	m := newTestMachine(t)
	assert.True(t, m.LCDPPUEnabled(), "LCDC bit7 must be set by the post-boot defaults")
	assert.False(t, m.UseCGBBG(), "a DMG-only ROM must not start colorized")
}

func TestMachine_SetButtonPressedUpdatesOneButtonAtATime(t *testing.T) {
	m := newTestMachine(t)

	m.SetButtonPressed(ButtonA, true)
	assert.True(t, m.buttons.A)
	assert.False(t, m.buttons.B, "pressing A must not touch B")

	m.SetButtonPressed(ButtonUp, true)
	assert.True(t, m.buttons.A, "pressing Up must not clear the earlier A press")
	assert.True(t, m.buttons.Up)

	m.SetButtonPressed(ButtonA, false)
	assert.False(t, m.buttons.A)
	assert.True(t, m.buttons.Up, "releasing A must not touch Up")
}

func TestMachine_SetButtonsOverwritesFullSnapshot(t *testing.T) {
	m := newTestMachine(t)
	m.SetButtonPressed(ButtonStart, true)
	m.SetButtons(Buttons{B: true})
	assert.True(t, m.buttons.B)
	assert.False(t, m.buttons.Start, "SetButtons replaces the whole snapshot")
}

func TestMachine_SaveStateRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	for i := 0; i < 200; i++ {
		m.FetchDecodeExecute()
	}
	wantPC := m.cpu.PC

	blob, err := m.SaveState()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	for i := 0; i < 50; i++ {
		m.FetchDecodeExecute()
	}
	require.NotEqual(t, wantPC, m.cpu.PC, "test setup must actually advance PC before restoring")

	require.NoError(t, m.LoadState(blob))
	assert.Equal(t, wantPC, m.cpu.PC, "LoadState must restore the saved PC")
}

func TestMachine_SaveStateWithoutCartridge(t *testing.T) {
	m := New(Config{})
	_, err := m.SaveState()
	assert.ErrorIs(t, err, ErrNoCartridge)
}

func TestMachine_CompatPaletteCyclingWraps(t *testing.T) {
	m := newTestMachine(t)
	m.SetCompatPalette(0)
	assert.Equal(t, 0, m.CurrentCompatPalette())

	m.CycleCompatPalette(-1)
	assert.Equal(t, len(cgbCompatSets)-1, m.CurrentCompatPalette(), "cycling below 0 must wrap to the last palette")

	m.CycleCompatPalette(1)
	assert.Equal(t, 0, m.CurrentCompatPalette())
}

func TestMachine_ResetCGBPostBootActivatesCompatColorsForDMGOnlyCart(t *testing.T) {
	m := newTestMachine(t)
	require.False(t, m.cgbCapable, "test ROM's CGB flag byte is 0x00")

	m.ResetCGBPostBoot(true)
	assert.True(t, m.WantCGBColors())
	assert.True(t, m.UseCGBBG())
	assert.True(t, m.IsCGBCompat())

	m.ResetCGBPostBoot(false)
	assert.False(t, m.WantCGBColors())
	assert.False(t, m.UseCGBBG())
	assert.False(t, m.IsCGBCompat())
}

func TestMachine_ReadWriteSaveData(t *testing.T) {
	m := newTestMachine(t)
	data := m.ReadSaveData()
	// A RAM-less ROM-only cartridge still returns a well-formed (possibly
	// empty) blob rather than nil/garbage.
	assert.True(t, m.WriteSaveData(data))
}
