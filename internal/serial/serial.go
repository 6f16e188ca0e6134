// Package serial implements the link-port data/control registers. Link-cable
// peer emulation is out of scope (spec non-goal); transfers complete
// immediately and the byte is appended to an internal accumulator that test
// ROMs (blargg, mooneye) use as their pass/fail report sink.
package serial

// Serial accumulates every byte written during a transfer into Log, and
// optionally mirrors it to an external io.Writer supplied by the host.
type Serial struct {
	data    byte // SB, 0xFF01
	control byte // SC, 0xFF02 (bits 7 and 0 only)

	Log []byte // every byte transferred, in order

	interrupt bool
	sink      func(byte)
}

func New() *Serial { return &Serial{} }

// SetSink installs a callback invoked with each transferred byte, in
// addition to the internal Log accumulation. Pass nil to remove it.
func (s *Serial) SetSink(sink func(byte)) { s.sink = sink }

func (s *Serial) ReadData() byte { return s.data }
func (s *Serial) WriteData(v byte) { s.data = v }

func (s *Serial) ReadControl() byte { return 0x7E | (s.control & 0x81) }

// WriteControl starts a transfer when the start bit is set. The core has no
// external clock source, so internal-clock transfers (bit0=1) complete
// immediately; external-clock transfers are accepted the same way since
// there is no link partner to wait on.
func (s *Serial) WriteControl(v byte) {
	s.control = v & 0x81
	if s.control&0x80 != 0 {
		s.Log = append(s.Log, s.data)
		if s.sink != nil {
			s.sink(s.data)
		}
		s.interrupt = true
		s.control &^= 0x80
	}
}

// PendingInterrupt reports and clears a latched serial-transfer-complete interrupt.
func (s *Serial) PendingInterrupt() bool {
	if s.interrupt {
		s.interrupt = false
		return true
	}
	return false
}

type State struct {
	Data, Control byte
	Log           []byte
	Interrupt     bool
}

func (s *Serial) SaveState() State {
	logCopy := make([]byte, len(s.Log))
	copy(logCopy, s.Log)
	return State{s.data, s.control, logCopy, s.interrupt}
}

func (s *Serial) LoadState(st State) {
	s.data, s.control, s.interrupt = st.Data, st.Control, st.Interrupt
	s.Log = append([]byte(nil), st.Log...)
}
