package packet

import (
	"errors"
	"fmt"
)

// Sentinel errors for fixed header parsing and encoding.
var (
	// ErrTruncatedInput indicates fewer bytes were supplied than the field requires.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrReservedType indicates the forbidden packet type 0 was used.
	ErrReservedType = errors.New("reserved packet type used")

	// ErrInvalidFlags indicates invalid fixed header flags for the packet type.
	ErrInvalidFlags = errors.New("invalid packet flags")

	// ErrInvalidQoS indicates the PUBLISH QoS bits were 11.
	ErrInvalidQoS = errors.New("invalid QoS level")

	// ErrMalformedRemainingLength indicates the continuation bit was set on the 4th length byte.
	ErrMalformedRemainingLength = errors.New("malformed remaining length")

	// ErrNonMinimalEncoding indicates the remaining length used more bytes than its value needs.
	ErrNonMinimalEncoding = errors.New("non-minimal remaining length encoding")

	// ErrValueTooLarge indicates a value above MaxRemainingLength was given to the encoder.
	ErrValueTooLarge = errors.New("remaining length value too large")

	// ErrPacketTooLarge indicates a frame exceeds the reader's configured maximum.
	ErrPacketTooLarge = errors.New("packet too large")
)

// InvalidFlagsError reports a non-PUBLISH flag nibble that differs from the
// mandated pattern. It matches ErrInvalidFlags with errors.Is.
type InvalidFlagsError struct {
	Type     Type
	Expected byte
	Found    byte
}

func (e *InvalidFlagsError) Error() string {
	return fmt.Sprintf("%v: %s expects %04b, found %04b", ErrInvalidFlags, e.Type, e.Expected, e.Found)
}

// Is reports whether target is ErrInvalidFlags.
func (e *InvalidFlagsError) Is(target error) bool {
	return target == ErrInvalidFlags
}

// InvalidQoSError reports PUBLISH QoS bits of 11. It matches ErrInvalidQoS
// with errors.Is.
type InvalidQoSError struct {
	Found byte
}

func (e *InvalidQoSError) Error() string {
	return fmt.Sprintf("%v: %02b", ErrInvalidQoS, e.Found)
}

// Is reports whether target is ErrInvalidQoS.
func (e *InvalidQoSError) Is(target error) bool {
	return target == ErrInvalidQoS
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrTruncatedInput, "truncated_input"},
	{ErrReservedType, "reserved_type"},
	{ErrInvalidFlags, "invalid_flags"},
	{ErrInvalidQoS, "invalid_qos"},
	{ErrMalformedRemainingLength, "malformed_remaining_length"},
	{ErrNonMinimalEncoding, "non_minimal_encoding"},
	{ErrValueTooLarge, "value_too_large"},
	{ErrPacketTooLarge, "packet_too_large"},
}

// ErrorKind returns a stable snake_case name for err, suitable as a log field
// or metric label. Errors outside this package yield "unknown", nil yields "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}
