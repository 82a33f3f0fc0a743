package inspect

import (
	"errors"
	"time"

	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// Record describes one inspected frame. It is what hooks log, count and
// persist, so fields carry short msgpack names.
type Record struct {
	CaptureID string    `msgpack:"c"`
	Seq       uint64    `msgpack:"s"`
	Time      time.Time `msgpack:"t"`

	Type    packet.Type `msgpack:"y"`
	Flags   byte        `msgpack:"f"`
	Publish bool        `msgpack:"p,omitempty"`
	Dup     bool        `msgpack:"d,omitempty"`
	QoS     packet.QoS  `msgpack:"q,omitempty"`
	Retain  bool        `msgpack:"r,omitempty"`

	RemainingLength uint32 `msgpack:"l"`
	HeaderSize      int    `msgpack:"h"`

	// Raw holds the fixed header bytes, or up to packet.MaxHeaderSize
	// leading bytes of a rejected frame.
	Raw []byte `msgpack:"x,omitempty"`

	Err     string `msgpack:"e,omitempty"`
	ErrKind string `msgpack:"k,omitempty"`
}

// Rejected reports whether the record describes a rejected frame.
func (r *Record) Rejected() bool {
	return r.Err != ""
}

// Header rebuilds the decoded header of an accepted record.
func (r *Record) Header() (packet.FixedHeader, error) {
	if r.Rejected() {
		return packet.FixedHeader{}, errors.New(r.Err)
	}
	return packet.ParseFixedHeader(r.Raw)
}

func (r *Record) setHeader(h packet.FixedHeader) {
	r.Type = h.Type
	r.Flags = h.Flags
	r.RemainingLength = h.RemainingLength.Value
	r.HeaderSize = h.Size()
	if h.Publish != nil {
		r.Publish = true
		r.Dup = h.Publish.Dup
		r.QoS = h.Publish.QoS
		r.Retain = h.Publish.Retain
	}
}

func (r *Record) setRaw(frame []byte, n int) {
	if n > len(frame) {
		n = len(frame)
	}
	r.Raw = append([]byte(nil), frame[:n]...)
}

func (r *Record) setErr(err error) {
	r.Err = err.Error()
	r.ErrKind = ErrorKind(err)
}

// ErrorKind extends packet.ErrorKind with the inspector's policy errors.
func ErrorKind(err error) string {
	if errors.Is(err, ErrEmptyRemainingLength) {
		return "empty_remaining_length"
	}
	return packet.ErrorKind(err)
}
