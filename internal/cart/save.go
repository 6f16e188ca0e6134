package cart

import (
	"bytes"
	"encoding/gob"
)

// saveVersion is bumped whenever the encoded blob's shape changes.
const saveVersion = 1

// saveBlob is the on-disk (or in-memory-snapshot) representation shared by
// all variants. RTC is nil for cartridges without a real-time clock.
type saveBlob struct {
	Version int
	Variant Variant
	RAM     []byte
	RTC     *rtcState
}

func encodeSave(variant Variant, ram []byte, rtc *rtcState) []byte {
	var buf bytes.Buffer
	ramCopy := make([]byte, len(ram))
	copy(ramCopy, ram)
	_ = gob.NewEncoder(&buf).Encode(saveBlob{
		Version: saveVersion,
		Variant: variant,
		RAM:     ramCopy,
		RTC:     rtc,
	})
	return buf.Bytes()
}

// decodeSave validates the blob against the expected variant and RAM size
// before handing back its contents.
func decodeSave(data []byte, variant Variant, ramSize int) (*saveBlob, error) {
	var b saveBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, ErrSaveDataMismatch
	}
	if b.Version != saveVersion || b.Variant != variant || len(b.RAM) != ramSize {
		return nil, ErrSaveDataMismatch
	}
	return &b, nil
}
