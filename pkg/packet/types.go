// Package packet decodes and encodes the MQTT fixed header: the packet type,
// the flag nibble and the Remaining Length variable byte integer.
// All functions are pure and safe for concurrent use.
package packet

// Type represents an MQTT control packet type.
type Type byte

// MQTT Control Packet types as defined in MQTT 3.1.1 Section 2.2.1 and MQTT 5.0 Section 2.1.2
const (
	TypeReserved    Type = 0  // Forbidden
	TypeConnect     Type = 1  // Client request to connect to Server
	TypeConnack     Type = 2  // Connect acknowledgment
	TypePublish     Type = 3  // Publish message
	TypePuback      Type = 4  // Publish acknowledgment (QoS 1)
	TypePubrec      Type = 5  // Publish received (QoS 2 part 1)
	TypePubrel      Type = 6  // Publish release (QoS 2 part 2)
	TypePubcomp     Type = 7  // Publish complete (QoS 2 part 3)
	TypeSubscribe   Type = 8  // Subscribe request
	TypeSuback      Type = 9  // Subscribe acknowledgment
	TypeUnsubscribe Type = 10 // Unsubscribe request
	TypeUnsuback    Type = 11 // Unsubscribe acknowledgment
	TypePingreq     Type = 12 // PING request
	TypePingresp    Type = 13 // PING response
	TypeDisconnect  Type = 14 // Disconnect notification
	TypeAuth        Type = 15 // Authentication exchange (MQTT 5.0 only)
)

var typeNames = [16]string{
	"RESERVED", "CONNECT", "CONNACK", "PUBLISH", "PUBACK", "PUBREC", "PUBREL", "PUBCOMP",
	"SUBSCRIBE", "SUBACK", "UNSUBSCRIBE", "UNSUBACK", "PINGREQ", "PINGRESP", "DISCONNECT", "AUTH",
}

// DecodeType returns the packet type held in the high nibble of the first
// fixed header byte. Every nibble maps to a Type, so it cannot fail.
func DecodeType(first byte) Type {
	return Type(first >> 4)
}

// String returns the string representation of the packet type.
func (t Type) String() string {
	return typeNames[t&0x0F]
}

// Valid returns true if the packet type may appear on the wire.
func (t Type) Valid() bool {
	return t >= TypeConnect && t <= TypeAuth
}

// reservedFlag is one entry of the flag table. fixed is false for the types
// whose nibble is not a constant (PUBLISH) or not allowed at all (reserved).
type reservedFlag struct {
	flags byte
	fixed bool
}

// reservedFlags holds the mandated flag nibble per type, MQTT 3.1.1 Table 2.2.
var reservedFlags = [16]reservedFlag{
	TypeReserved:    {},
	TypeConnect:     {0x00, true},
	TypeConnack:     {0x00, true},
	TypePublish:     {},
	TypePuback:      {0x00, true},
	TypePubrec:      {0x00, true},
	TypePubrel:      {PubrelFlags, true},
	TypePubcomp:     {0x00, true},
	TypeSubscribe:   {SubscribeFlags, true},
	TypeSuback:      {0x00, true},
	TypeUnsubscribe: {UnsubscribeFlags, true},
	TypeUnsuback:    {0x00, true},
	TypePingreq:     {0x00, true},
	TypePingresp:    {0x00, true},
	TypeDisconnect:  {0x00, true},
	TypeAuth:        {0x00, true},
}

// ReservedFlags returns the flag nibble the protocol mandates for t.
// ok is false for TypePublish, whose flags carry DUP/QoS/RETAIN, and for
// TypeReserved, which has no valid flags.
func (t Type) ReservedFlags() (flags byte, ok bool) {
	e := reservedFlags[t&0x0F]
	return e.flags, e.fixed
}

// QoS represents MQTT Quality of Service level.
type QoS byte

const (
	QoS0       QoS = 0 // At most once delivery
	QoS1       QoS = 1 // At least once delivery
	QoS2       QoS = 2 // Exactly once delivery
	QoSInvalid QoS = 3 // Bit pattern 11, a protocol violation
)

// DecodeQoS maps the two QoS bits (already shifted down) to a QoS level.
// Pattern 11 yields QoSInvalid rather than an error.
func DecodeQoS(bits byte) QoS {
	return QoS(bits & 0x03)
}

// Valid returns true if the QoS level is valid.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// String returns the string representation of the QoS level.
func (q QoS) String() string {
	switch q {
	case QoS0:
		return "QoS0"
	case QoS1:
		return "QoS1"
	case QoS2:
		return "QoS2"
	default:
		return "invalid"
	}
}

// Fixed header flag bits for specific packet types.
const (
	// PUBLISH flags (bits 3-0 of first byte)
	PublishFlagRetain = 1 << 0 // Bit 0: RETAIN flag
	PublishFlagQoS1   = 1 << 1 // Bit 1: QoS LSB
	PublishFlagQoS2   = 1 << 2 // Bit 2: QoS MSB
	PublishFlagDup    = 1 << 3 // Bit 3: DUP flag

	// Reserved flags that MUST be set for certain packet types
	PubrelFlags      = 0x02 // PUBREL MUST have flags 0010
	SubscribeFlags   = 0x02 // SUBSCRIBE MUST have flags 0010
	UnsubscribeFlags = 0x02 // UNSUBSCRIBE MUST have flags 0010
)

// MaxRemainingLength is the maximum remaining length value (256MB - 1).
const MaxRemainingLength = 268435455

// MaxHeaderSize is the largest possible fixed header: one type/flags byte and
// four remaining length bytes.
const MaxHeaderSize = 5
