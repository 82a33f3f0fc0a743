package packet

import "fmt"

// FixedHeader is the validated fixed header of an MQTT control packet.
//
//	byte 0:     bits 7-4 packet type, bits 3-0 flags
//	bytes 1..4: remaining length, base-128, least significant group first
type FixedHeader struct {
	Type  Type
	Flags byte // raw low nibble of byte 0

	// Publish is set iff Type is TypePublish.
	Publish *PublishFlags

	RemainingLength RemainingLength
}

// ParseFixedHeader decodes the fixed header at the start of buf.
// Each step is a gate: the type must not be reserved, the flags must be valid
// for the type, PUBLISH QoS must not be 3, and the remaining length must be a
// well formed minimal encoding. A remaining length of 0 is accepted for every
// type. Bytes past the header are ignored.
func ParseFixedHeader(buf []byte) (FixedHeader, error) {
	if len(buf) < 1 {
		return FixedHeader{}, ErrTruncatedInput
	}

	packetType := DecodeType(buf[0])
	if packetType == TypeReserved {
		return FixedHeader{}, ErrReservedType
	}

	flags, err := ValidateFlags(packetType, buf[0]&0x0F)
	if err != nil {
		return FixedHeader{}, err
	}

	var pf *PublishFlags
	if packetType == TypePublish {
		f := DecodePublishFlags(flags)
		if f.QoS == QoSInvalid {
			return FixedHeader{}, &InvalidQoSError{Found: byte(f.QoS)}
		}
		pf = &f
	}

	rl, err := DecodeRemainingLength(buf[1:])
	if err != nil {
		return FixedHeader{}, err
	}

	return FixedHeader{
		Type:            packetType,
		Flags:           flags,
		Publish:         pf,
		RemainingLength: rl,
	}, nil
}

// NewFixedHeader builds a header for an outbound packet, applying the same
// rules ParseFixedHeader enforces on inbound ones.
func NewFixedHeader(t Type, flags byte, remainingLength uint32) (FixedHeader, error) {
	var buf [MaxHeaderSize]byte
	buf[0] = byte(t)<<4 | flags&0x0F
	rl, err := EncodeRemainingLength(remainingLength)
	if err != nil {
		return FixedHeader{}, err
	}
	copy(buf[1:], rl.raw[:rl.n])
	return ParseFixedHeader(buf[:1+rl.n])
}

// Size returns the encoded size of the fixed header in bytes.
func (h FixedHeader) Size() int {
	return 1 + h.RemainingLength.Len()
}

// PacketSize returns the size of the whole control packet: fixed header plus
// remaining length.
func (h FixedHeader) PacketSize() int {
	return h.Size() + int(h.RemainingLength.Value)
}

// Encode encodes the fixed header into buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h FixedHeader) Encode(buf []byte) int {
	n := h.Size()
	if n < 2 || len(buf) < n {
		return 0
	}
	buf[0] = byte(h.Type)<<4 | h.Flags&0x0F
	copy(buf[1:], h.RemainingLength.raw[:h.RemainingLength.n])
	return n
}

// String returns a brief representation of the header. Suitable for logging.
func (h FixedHeader) String() string {
	if h.Publish != nil {
		return fmt.Sprintf("%s (%s, rl%d)", h.Type, h.Publish, h.RemainingLength.Value)
	}
	return fmt.Sprintf("%s (f%04b, rl%d)", h.Type, h.Flags, h.RemainingLength.Value)
}
