package packet

// RemainingLength is a decoded or encoded Remaining Length field: the number
// of bytes following the fixed header, together with its wire encoding.
// MQTT 5.0 Section 1.5.5, MQTT 3.1.1 Section 2.2.3
type RemainingLength struct {
	Value uint32
	raw   [4]byte
	n     uint8
}

// Len returns the number of bytes used by the encoding (1 to 4).
func (rl RemainingLength) Len() int {
	return int(rl.n)
}

// Bytes returns a copy of the wire encoding.
func (rl RemainingLength) Bytes() []byte {
	b := make([]byte, rl.n)
	copy(b, rl.raw[:rl.n])
	return b
}

// DecodeRemainingLength decodes a variable byte integer from the start of buf.
// Bytes after the encoding are ignored; use Len to find where it ended.
//
// It fails with ErrTruncatedInput if buf ends while a continuation bit is
// pending, ErrMalformedRemainingLength if the 4th byte has its continuation
// bit set, and ErrNonMinimalEncoding if the value could have been encoded in
// fewer bytes.
func DecodeRemainingLength(buf []byte) (RemainingLength, error) {
	var rl RemainingLength
	var multiplier uint32 = 1

	for i := 0; i < 4; i++ {
		if i >= len(buf) {
			return RemainingLength{}, ErrTruncatedInput
		}
		encodedByte := buf[i]
		rl.raw[i] = encodedByte
		rl.Value += uint32(encodedByte&0x7F) * multiplier

		if encodedByte&0x80 == 0 {
			// A trailing zero digit adds nothing, so a shorter encoding exists.
			if i > 0 && encodedByte == 0 {
				return RemainingLength{}, ErrNonMinimalEncoding
			}
			rl.n = uint8(i + 1)
			return rl, nil
		}
		multiplier *= 128
	}

	return RemainingLength{}, ErrMalformedRemainingLength
}

// EncodeRemainingLength returns the minimal encoding of value.
// It fails with ErrValueTooLarge above MaxRemainingLength.
func EncodeRemainingLength(value uint32) (RemainingLength, error) {
	if value > MaxRemainingLength {
		return RemainingLength{}, ErrValueTooLarge
	}

	rl := RemainingLength{Value: value}
	for {
		encodedByte := byte(value % 128)
		value /= 128
		if value > 0 {
			encodedByte |= 0x80
		}
		rl.raw[rl.n] = encodedByte
		rl.n++
		if value == 0 {
			return rl, nil
		}
	}
}

// RemainingLengthSize returns the number of bytes needed to encode value.
// Values above MaxRemainingLength report 4; EncodeRemainingLength rejects them.
func RemainingLengthSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}
