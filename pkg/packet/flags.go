package packet

import "fmt"

// PublishFlags is the decoded flag nibble of a PUBLISH fixed header.
// MQTT 3.1.1 Section 3.3.1
type PublishFlags struct {
	Dup    bool
	QoS    QoS
	Retain bool
}

// DecodePublishFlags extracts DUP (bit 3), QoS (bits 2-1) and RETAIN (bit 0).
// It never fails; a QoS of QoSInvalid must be rejected by the caller.
func DecodePublishFlags(nibble byte) PublishFlags {
	return PublishFlags{
		Dup:    nibble&PublishFlagDup != 0,
		QoS:    DecodeQoS(nibble >> 1),
		Retain: nibble&PublishFlagRetain != 0,
	}
}

// Encode packs the flags back into a nibble.
func (f PublishFlags) Encode() byte {
	b := byte(f.QoS&0x03) << 1
	if f.Dup {
		b |= PublishFlagDup
	}
	if f.Retain {
		b |= PublishFlagRetain
	}
	return b
}

// String returns the flags in mosquitto log notation.
func (f PublishFlags) String() string {
	return fmt.Sprintf("d%d, q%d, r%d", b2i(f.Dup), f.QoS, b2i(f.Retain))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ValidateFlags checks the flag nibble of a fixed header against the packet
// type. PUBLISH flags are returned unchanged, every other type must match its
// reserved pattern or an *InvalidFlagsError is returned. TypeReserved fails
// with ErrReservedType before any comparison. Only the low 4 bits of nibble
// are used; the high nibble is ignored, so a full first byte may be passed.
// MQTT 3.1.1 Section 2.2.2
func ValidateFlags(t Type, nibble byte) (byte, error) {
	nibble &= 0x0F
	switch t {
	case TypeReserved:
		return 0, ErrReservedType
	case TypePublish:
		return nibble, nil
	}
	expected, _ := t.ReservedFlags()
	if nibble != expected {
		return 0, &InvalidFlagsError{Type: t, Expected: expected, Found: nibble}
	}
	return nibble, nil
}
