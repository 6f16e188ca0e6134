package apu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDACDisableTurnsChannelOffImmediately(t *testing.T) {
	a := New(48000)

	a.CPUWrite(0xFF12, 0xF0) // CH1 envelope: DAC on
	a.CPUWrite(0xFF14, 0x80) // trigger
	require.True(t, a.ch1.enabled)

	a.CPUWrite(0xFF12, 0x00) // DAC off
	assert.False(t, a.ch1.enabled, "clearing the DAC bits must disable CH1 immediately")

	a.CPUWrite(0xFF1A, 0x80) // CH3 DAC on
	a.CPUWrite(0xFF1E, 0x80) // trigger
	require.True(t, a.ch3.enabled)

	a.CPUWrite(0xFF1A, 0x00)
	assert.False(t, a.ch3.enabled, "clearing NR30's DAC bit must disable CH3 immediately")
}

func TestTriggerWithDACOffStaysDisabled(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0x00) // DAC off
	a.CPUWrite(0xFF14, 0x80) // trigger
	assert.False(t, a.ch1.enabled, "a trigger cannot enable a channel whose DAC is off")
}

func TestPowerOffClearsRegistersButNotWaveRAM(t *testing.T) {
	a := New(48000)
	pattern := []byte{0x12, 0x34, 0x56, 0x78}
	for i, v := range pattern {
		a.CPUWrite(0xFF30+uint16(i), v)
	}
	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF26, 0x00) // power off

	for i, v := range pattern {
		assert.Equal(t, v, a.CPURead(0xFF30+uint16(i)), "wave RAM must survive power-off")
	}
	assert.Equal(t, byte(0), a.nr50, "NR50 must clear on power-off")
	assert.Equal(t, byte(0), a.nr51, "NR51 must clear on power-off")
	assert.Equal(t, byte(0x70), a.CPURead(0xFF26), "NR52 reads back power-off with unused bits set")
}

func TestNR52ChannelBitsReflectEnabledState(t *testing.T) {
	a := New(48000)
	assert.Equal(t, byte(0), a.CPURead(0xFF26)&0x0F)

	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	assert.Equal(t, byte(1), a.CPURead(0xFF26)&0x01, "CH1 status bit should set once triggered")
}

func TestFrameSequencerClocksLengthAt256Hz(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF11, 0x3F) // length = 1
	a.CPUWrite(0xFF14, 0xC0) // length enable, trigger
	require.True(t, a.ch1.enabled)

	a.Tick(cpuHz / 256)
	assert.False(t, a.ch1.enabled, "length counter reaching zero must disable the channel")
}

func TestSweepUpdatesFrequencyTowardOverflow(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF10, 0b0001_0001) // period=1, increase, shift=1
	a.CPUWrite(0xFF12, 0xF0)        // DAC on, so the trigger enables the channel
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x81) // trigger, freq = 0x100
	before := a.ch1.freq

	a.Tick(3 * (cpuHz / 128))
	assert.NotEqual(t, before, a.ch1.freq, "sweep should have updated CH1's frequency by now")
}

func TestSweepNegateClearAfterUseDisablesChannel(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF10, 0b0001_1001) // period=1, negate, shift=1
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x80)
	a.Tick(cpuHz / 128) // let the sweep unit run at least once with negate set

	a.CPUWrite(0xFF10, 0b0001_0001) // clear negate without retriggering
	assert.False(t, a.ch1.enabled, "clearing negate after it was used since trigger disables the channel")
}

func TestSampleDrainsStereoRingBuffer(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x87)

	a.Tick(cpuHz / 100)
	require.True(t, a.StereoAvailable() > 0)

	var sawNonZero bool
	for i := 0; i < a.StereoAvailable(); i++ {
		s := a.Sample()
		if s[0] != 0 || s[1] != 0 {
			sawNonZero = true
		}
	}
	assert.True(t, sawNonZero, "an active channel should produce non-silent stereo samples")
}
