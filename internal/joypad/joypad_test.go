package joypad

import "testing"

func TestJoypad_DPadReadback(t *testing.T) {
	j := New()
	j.Write(0x20) // select d-pad (P14 low), buttons deselected
	j.SetButtonPressed(Right, true)
	got := j.Read()
	if got&0x01 != 0 {
		t.Fatalf("Right should read active-low (0) once pressed, got %#02x", got)
	}
	if got&0x02 == 0 {
		t.Fatalf("Left should read 1 (not pressed), got %#02x", got)
	}
}

func TestJoypad_PressRaisesInterrupt(t *testing.T) {
	j := New()
	j.Write(0x20)
	if j.PendingInterrupt() {
		t.Fatalf("no interrupt expected before any press")
	}
	j.SetButtonPressed(Down, true)
	if !j.PendingInterrupt() {
		t.Fatalf("expected interrupt on press edge")
	}
	if j.PendingInterrupt() {
		t.Fatalf("interrupt flag should clear after being read once")
	}
}
