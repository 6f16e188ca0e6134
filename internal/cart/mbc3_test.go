package cart

import "testing"

func TestMBC3_RTC_LatchAndRead(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := newMBC3(rom, &Header{CartType: 0x0F, RAMSizeBytes: 0x2000})

	m.Write(0x0000, 0x0A) // RAM enable
	m.rtc.Seconds, m.rtc.Minutes, m.rtc.Hours = 5, 6, 7
	m.rtc.DayLow, m.rtc.DayHigh = 0x01, 0x01

	m.Write(0x6000, 0x00) // arm latch
	m.Write(0x6000, 0x01) // latch 0->1 edge

	m.Write(0x4000, 0x08) // select RTC seconds
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec got %d want 5", got)
	}

	// Live counter changes must not affect the already-latched snapshot.
	m.rtc.Seconds = 30
	if got := m.Read(0xA000); got != 5 {
		t.Fatalf("latched sec changed unexpectedly: got %d", got)
	}

	m.Write(0x4000, 0x0B)
	if got := m.Read(0xA000); got != 0x01 {
		t.Fatalf("latched day low got %02X want 01", got)
	}
	m.Write(0x4000, 0x0C)
	if got := m.Read(0xA000); got&0x01 == 0 {
		t.Fatalf("latched day high bit not set")
	}
}

func TestMBC3_RTC_TicksAdvanceSeconds(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := newMBC3(rom, &Header{CartType: 0x0F, RAMSizeBytes: 0x2000})

	for i := 0; i < tCyclesPerSecond; i++ {
		m.Tick()
	}
	if m.rtc.Seconds != 1 {
		t.Fatalf("rtc seconds after one second of ticks got %d want 1", m.rtc.Seconds)
	}
}

func TestMBC3_RTC_HaltStopsAdvancing(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := newMBC3(rom, &Header{CartType: 0x0F, RAMSizeBytes: 0x2000})
	m.rtc.DayHigh = 0x40 // halt bit

	for i := 0; i < tCyclesPerSecond*2; i++ {
		m.Tick()
	}
	if m.rtc.Seconds != 0 {
		t.Fatalf("rtc seconds advanced while halted: got %d", m.rtc.Seconds)
	}
}

func TestMBC3_RTC_Persist(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := newMBC3(rom, &Header{CartType: 0x0F, RAMSizeBytes: 0x2000})
	m.rtc.Seconds, m.rtc.Minutes, m.rtc.Hours, m.rtc.DayLow = 50, 59, 23, 0xFF

	data := m.SaveData()

	n := newMBC3(rom, &Header{CartType: 0x0F, RAMSizeBytes: 0x2000})
	if err := n.LoadSaveData(data); err != nil {
		t.Fatalf("LoadSaveData error: %v", err)
	}
	if n.rtc.Seconds != 50 || n.rtc.Minutes != 59 || n.rtc.Hours != 23 || n.rtc.DayLow != 0xFF {
		t.Fatalf("rtc persist mismatch: got %02d:%02d:%02d day=%d",
			n.rtc.Hours, n.rtc.Minutes, n.rtc.Seconds, n.rtc.DayLow)
	}
}

func TestMBC3_ROMBankZeroMapsToOne(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := newMBC3(rom, &Header{CartType: 0x11, RAMSizeBytes: 0})
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}
