// Package inspect runs the fixed header decoder over frames and streams and
// reports every result to pluggable hooks.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// ErrEmptyRemainingLength is returned when Options.RejectEmpty lists the
// packet type and its remaining length is 0.
var ErrEmptyRemainingLength = errors.New("empty remaining length")

// Options configures an Inspector.
type Options struct {
	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// CaptureID tags every record. If empty, a random UUID is used.
	CaptureID string

	// MaxRemainingLength rejects larger frames (0 = protocol maximum).
	MaxRemainingLength uint32

	// RejectEmpty lists packet types that must carry a body. The decoder
	// accepts a zero remaining length for every type.
	RejectEmpty map[packet.Type]bool

	// Now returns the record timestamp. If nil, uses time.Now.
	Now func() time.Time
}

// Inspector decodes fixed headers and dispatches records to hooks.
// Inspect is safe for concurrent use.
type Inspector struct {
	opts  Options
	hooks *Hooks
	seq   atomic.Uint64
	log   *slog.Logger
}

// New creates a new Inspector.
func New(opts *Options) *Inspector {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.CaptureID == "" {
		o.CaptureID = uuid.NewString()
	}
	if o.MaxRemainingLength == 0 || o.MaxRemainingLength > packet.MaxRemainingLength {
		o.MaxRemainingLength = packet.MaxRemainingLength
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Inspector{
		opts:  o,
		hooks: NewHooks(),
		log:   o.Logger,
	}
}

// CaptureID returns the ID stamped on every record.
func (i *Inspector) CaptureID() string {
	return i.opts.CaptureID
}

// AddHook initializes and registers a hook.
func (i *Inspector) AddHook(hook Hook, config any) error {
	opts := &HookOptions{Log: i.log, CaptureID: i.opts.CaptureID}
	if err := hook.Init(opts, config); err != nil {
		return fmt.Errorf("hook %s: %w", hook.ID(), err)
	}
	i.hooks.Register(hook)
	i.log.Debug("hook registered", "hook", hook.ID())
	return nil
}

// Inspect decodes the fixed header at the start of frame and reports the
// result to the hooks. The decoder error, if any, is returned unchanged.
func (i *Inspector) Inspect(ctx context.Context, frame []byte) (packet.FixedHeader, error) {
	h, err := packet.ParseFixedHeader(frame)
	if err == nil {
		err = i.check(h)
	}
	if err != nil {
		i.reject(ctx, frame, err)
		return packet.FixedHeader{}, err
	}

	rec := i.newRecord()
	rec.setHeader(h)
	rec.setRaw(frame, h.Size())
	i.hooks.OnHeader(ctx, rec)
	return h, nil
}

// Run reads frames from r until EOF, the first rejected frame, or context
// cancellation. A malformed stream cannot be resynchronized, so the first
// rejection ends the run and is returned. If r is an io.Closer it is closed
// when ctx is canceled, so a blocked read returns ctx.Err().
func (i *Inspector) Run(ctx context.Context, r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	rd := packet.NewReader(r, i.opts.MaxRemainingLength)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := rd.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			i.reject(ctx, rd.Buffered(), err)
			return err
		}

		if _, err := i.Inspect(ctx, f.Raw); err != nil {
			return err
		}
	}
}

// Stop stops all hooks.
func (i *Inspector) Stop() error {
	return i.hooks.Stop()
}

// reject reports err for the header at the start of frame.
func (i *Inspector) reject(ctx context.Context, frame []byte, err error) {
	rec := i.newRecord()
	rec.setRaw(frame, packet.MaxHeaderSize)
	if len(frame) > 0 {
		rec.Type = packet.DecodeType(frame[0])
		rec.Flags = frame[0] & 0x0F
	}
	rec.setErr(err)
	i.hooks.OnReject(ctx, rec, err)
}

func (i *Inspector) check(h packet.FixedHeader) error {
	if h.RemainingLength.Value > i.opts.MaxRemainingLength {
		return packet.ErrPacketTooLarge
	}
	if h.RemainingLength.Value == 0 && i.opts.RejectEmpty[h.Type] {
		return fmt.Errorf("%w: %s", ErrEmptyRemainingLength, h.Type)
	}
	return nil
}

func (i *Inspector) newRecord() *Record {
	return &Record{
		CaptureID: i.opts.CaptureID,
		Seq:       i.seq.Add(1),
		Time:      i.opts.Now(),
	}
}
