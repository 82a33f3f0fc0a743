package packet

import (
	"errors"
	"fmt"
	"io"
)

// errUnexpectedEOF is returned when the stream ends inside a header or body.
var errUnexpectedEOF = fmt.Errorf("%w: %w", ErrTruncatedInput, io.ErrUnexpectedEOF)

// Frame is one complete control packet read from a stream.
type Frame struct {
	Header FixedHeader
	Raw    []byte // fixed header followed by the remaining bytes
}

// Body returns the variable header and payload.
func (f Frame) Body() []byte {
	return f.Raw[f.Header.Size():]
}

// Reader reads MQTT fixed headers and frames from an io.Reader.
// It is not safe for concurrent use.
type Reader struct {
	r            io.Reader
	buf          []byte
	pos          int
	end          int
	maxRemaining uint32
}

// NewReader creates a new frame reader. Frames whose remaining length exceeds
// maxRemaining fail with ErrPacketTooLarge; 0 means MaxRemainingLength.
func NewReader(r io.Reader, maxRemaining uint32) *Reader {
	if maxRemaining == 0 || maxRemaining > MaxRemainingLength {
		maxRemaining = MaxRemainingLength
	}
	return &Reader{
		r:            r,
		buf:          make([]byte, 1024),
		maxRemaining: maxRemaining,
	}
}

// fill reads more data into the buffer.
func (r *Reader) fill() error {
	// Shift remaining data to the beginning
	if r.pos > 0 {
		copy(r.buf, r.buf[r.pos:r.end])
		r.end -= r.pos
		r.pos = 0
	}

	// Grow buffer if needed
	if r.end == len(r.buf) {
		newBuf := make([]byte, len(r.buf)*2)
		copy(newBuf, r.buf)
		r.buf = newBuf
	}

	n, err := r.r.Read(r.buf[r.end:])
	if n > 0 {
		r.end += n
		return nil
	}
	return err
}

// available returns the number of unread bytes in the buffer.
func (r *Reader) available() int {
	return r.end - r.pos
}

// Buffered returns the bytes read from the source but not yet consumed. After
// a failed ReadHeader or ReadFrame it starts with the offending header. The
// slice is only valid until the next read.
func (r *Reader) Buffered() []byte {
	return r.buf[r.pos:r.end]
}

// peekHeader parses the next fixed header without consuming it, reading from
// the source until the header is complete or fails for another reason than
// missing bytes.
func (r *Reader) peekHeader() (FixedHeader, error) {
	for {
		h, err := ParseFixedHeader(r.buf[r.pos:r.end])
		if err == nil {
			if h.RemainingLength.Value > r.maxRemaining {
				return FixedHeader{}, ErrPacketTooLarge
			}
			return h, nil
		}
		if !errors.Is(err, ErrTruncatedInput) {
			return FixedHeader{}, err
		}
		if err = r.fill(); err != nil {
			if err == io.EOF {
				if r.available() == 0 {
					return FixedHeader{}, io.EOF
				}
				return FixedHeader{}, errUnexpectedEOF
			}
			return FixedHeader{}, err
		}
	}
}

// ReadHeader reads and consumes the next fixed header. The caller must
// consume the body with Discard (or its own bookkeeping) before reading the
// next header. io.EOF is returned only when the stream ends on a packet
// boundary.
func (r *Reader) ReadHeader() (FixedHeader, error) {
	h, err := r.peekHeader()
	if err != nil {
		return FixedHeader{}, err
	}
	r.pos += h.Size()
	return h, nil
}

// Discard skips n bytes of the stream.
func (r *Reader) Discard(n int) error {
	for n > 0 {
		if r.available() == 0 {
			if err := r.fill(); err != nil {
				if err == io.EOF {
					return errUnexpectedEOF
				}
				return err
			}
		}
		k := min(n, r.available())
		r.pos += k
		n -= k
	}
	return nil
}

// ReadFrame reads the next complete control packet. The returned Raw slice is
// a copy and stays valid after further reads.
func (r *Reader) ReadFrame() (Frame, error) {
	h, err := r.peekHeader()
	if err != nil {
		return Frame{}, err
	}

	total := h.PacketSize()
	for r.available() < total {
		if err := r.fill(); err != nil {
			if err == io.EOF {
				return Frame{}, errUnexpectedEOF
			}
			return Frame{}, err
		}
	}

	raw := make([]byte, total)
	copy(raw, r.buf[r.pos:r.pos+total])
	r.pos += total
	return Frame{Header: h, Raw: raw}, nil
}
