package inspect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/fixhdr/pkg/packet"
)

type recorder struct {
	HookBase
	id string

	mu       sync.Mutex
	accepted []*Record
	rejected []*Record
	errs     []error
	stopped  bool
	stopErr  error
	initErr  error
	config   any
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Init(opts *HookOptions, config any) error {
	if r.initErr != nil {
		return r.initErr
	}
	r.config = config
	return r.HookBase.Init(opts, config)
}

func (r *recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return r.stopErr
}

func (r *recorder) OnHeader(_ context.Context, rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, rec)
}

func (r *recorder) OnReject(_ context.Context, rec *Record, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, rec)
	r.errs = append(r.errs, err)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestInspector(t *testing.T, opts *Options) (*Inspector, *recorder) {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.CaptureID = "cap-1"
	opts.Now = func() time.Time { return fixedNow }
	in := New(opts)
	rec := &recorder{id: "recorder"}
	require.NoError(t, in.AddHook(rec, "cfg"))
	return in, rec
}

func TestNewDefaults(t *testing.T) {
	in := New(nil)
	assert.NotEmpty(t, in.CaptureID())
	assert.NotEqual(t, in.CaptureID(), New(nil).CaptureID())
	assert.Equal(t, uint32(packet.MaxRemainingLength), in.opts.MaxRemainingLength)
	assert.NotNil(t, in.log)
}

func TestAddHook(t *testing.T) {
	in, rec := newTestInspector(t, nil)
	assert.Equal(t, "cfg", rec.config)
	assert.Equal(t, "cap-1", rec.CaptureID)
	assert.NotNil(t, rec.Log)
	assert.Equal(t, 1, in.hooks.Len())

	bad := &recorder{id: "bad", initErr: errors.New("nope")}
	err := in.AddHook(bad, nil)
	assert.ErrorContains(t, err, "hook bad: nope")
	assert.Equal(t, 1, in.hooks.Len())
}

func TestInspectAccepted(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	frame := []byte{0x3D, 0x80, 0x01, 0xAA, 0xBB}
	h, err := in.Inspect(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, packet.TypePublish, h.Type)

	require.Len(t, rec.accepted, 1)
	r := rec.accepted[0]
	assert.Equal(t, "cap-1", r.CaptureID)
	assert.Equal(t, uint64(1), r.Seq)
	assert.Equal(t, fixedNow, r.Time)
	assert.Equal(t, packet.TypePublish, r.Type)
	assert.Equal(t, byte(0x0D), r.Flags)
	assert.True(t, r.Publish)
	assert.True(t, r.Dup)
	assert.Equal(t, packet.QoS2, r.QoS)
	assert.True(t, r.Retain)
	assert.Equal(t, uint32(128), r.RemainingLength)
	assert.Equal(t, 3, r.HeaderSize)
	assert.Equal(t, []byte{0x3D, 0x80, 0x01}, r.Raw)
	assert.False(t, r.Rejected())

	again, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, h, again)
}

func TestInspectRejected(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		err   error
		kind  string
		typ   packet.Type
		raw   []byte
	}{
		{"empty", nil, packet.ErrTruncatedInput, "truncated_input", packet.TypeReserved, nil},
		{"reserved", []byte{0x00, 0x00}, packet.ErrReservedType, "reserved_type", packet.TypeReserved, []byte{0x00, 0x00}},
		{"pubrel flags", []byte{0x60, 0x02}, packet.ErrInvalidFlags, "invalid_flags", packet.TypePubrel, []byte{0x60, 0x02}},
		{"qos", []byte{0x36, 0x00}, packet.ErrInvalidQoS, "invalid_qos", packet.TypePublish, []byte{0x36, 0x00}},
		{"overlong", []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x02}, packet.ErrMalformedRemainingLength, "malformed_remaining_length", packet.TypePublish, []byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"non-minimal", []byte{0x30, 0x80, 0x00}, packet.ErrNonMinimalEncoding, "non_minimal_encoding", packet.TypePublish, []byte{0x30, 0x80, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, rec := newTestInspector(t, nil)

			_, err := in.Inspect(context.Background(), tt.frame)
			require.ErrorIs(t, err, tt.err)

			assert.Empty(t, rec.accepted)
			require.Len(t, rec.rejected, 1)
			r := rec.rejected[0]
			assert.True(t, r.Rejected())
			assert.Equal(t, tt.kind, r.ErrKind)
			assert.Equal(t, err.Error(), r.Err)
			assert.Equal(t, tt.typ, r.Type)
			if tt.raw == nil {
				assert.Empty(t, r.Raw)
			} else {
				assert.Equal(t, tt.raw, r.Raw)
			}
			assert.Equal(t, err, rec.errs[0])

			_, herr := r.Header()
			assert.EqualError(t, herr, r.Err)
		})
	}
}

func TestInspectRejectEmpty(t *testing.T) {
	in, rec := newTestInspector(t, &Options{
		RejectEmpty: map[packet.Type]bool{packet.TypePublish: true},
	})

	_, err := in.Inspect(context.Background(), []byte{0x30, 0x00})
	require.ErrorIs(t, err, ErrEmptyRemainingLength)
	assert.ErrorContains(t, err, "PUBLISH")
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "empty_remaining_length", rec.rejected[0].ErrKind)

	// Other types keep the decoder's behavior.
	_, err = in.Inspect(context.Background(), []byte{0xC0, 0x00})
	require.NoError(t, err)
	require.Len(t, rec.accepted, 1)
}

func TestInspectMaxRemainingLength(t *testing.T) {
	in, rec := newTestInspector(t, &Options{MaxRemainingLength: 10})

	_, err := in.Inspect(context.Background(), []byte{0x30, 0x0B})
	require.ErrorIs(t, err, packet.ErrPacketTooLarge)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "packet_too_large", rec.rejected[0].ErrKind)

	_, err = in.Inspect(context.Background(), []byte{0x30, 0x0A})
	require.NoError(t, err)
}

func TestInspectSequence(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = in.Inspect(context.Background(), []byte{0xC0, 0x00})
		}()
	}
	wg.Wait()

	require.Len(t, rec.accepted, 50)
	seen := make(map[uint64]bool)
	for _, r := range rec.accepted {
		seen[r.Seq] = true
	}
	assert.Len(t, seen, 50)
	assert.True(t, seen[1])
	assert.True(t, seen[50])
}

func TestRun(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	stream := []byte{
		0x10, 0x02, 0x00, 0x04, // CONNECT
		0x82, 0x01, 0x00, // SUBSCRIBE
		0x3B, 0x01, 0xFF, // PUBLISH d1 q1 r1
		0xE0, 0x00, // DISCONNECT
	}
	require.NoError(t, in.Run(context.Background(), bytes.NewReader(stream)))

	require.Len(t, rec.accepted, 4)
	assert.Empty(t, rec.rejected)
	assert.Equal(t, packet.TypeConnect, rec.accepted[0].Type)
	assert.Equal(t, packet.TypeSubscribe, rec.accepted[1].Type)
	assert.Equal(t, packet.TypePublish, rec.accepted[2].Type)
	assert.Equal(t, packet.TypeDisconnect, rec.accepted[3].Type)
	assert.Equal(t, []byte{0x3B, 0x01}, rec.accepted[2].Raw)
}

func TestRunStopsOnReject(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	stream := []byte{0xC0, 0x00, 0xA0, 0x00, 0xD0, 0x00}
	err := in.Run(context.Background(), bytes.NewReader(stream))
	require.ErrorIs(t, err, packet.ErrInvalidFlags)

	assert.Len(t, rec.accepted, 1)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "invalid_flags", rec.rejected[0].ErrKind)

	// The stream record matches what Inspect reports for the same bytes.
	got := rec.rejected[0]
	assert.Equal(t, packet.TypeUnsubscribe, got.Type)
	assert.Equal(t, byte(0x00), got.Flags)
	assert.Equal(t, []byte{0xA0, 0x00, 0xD0, 0x00}, got.Raw)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestRunTruncated(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	err := in.Run(context.Background(), bytes.NewReader([]byte{0x30, 0x05, 0x00}))
	require.ErrorIs(t, err, packet.ErrTruncatedInput)
	require.Len(t, rec.rejected, 1)
	assert.Equal(t, "truncated_input", rec.rejected[0].ErrKind)
	assert.Equal(t, packet.TypePublish, rec.rejected[0].Type)
	assert.Equal(t, []byte{0x30, 0x05, 0x00}, rec.rejected[0].Raw)
}

func TestRunCanceled(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := in.Run(ctx, bytes.NewReader([]byte{0xC0, 0x00}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.accepted)
}

func TestRunCanceledWhileBlocked(t *testing.T) {
	in, rec := newTestInspector(t, nil)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx, pr) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, rec.rejected)
}

func TestStop(t *testing.T) {
	in := New(&Options{CaptureID: "x"})
	a := &recorder{id: "a"}
	b := &recorder{id: "b", stopErr: errors.New("b failed")}
	require.NoError(t, in.AddHook(a, nil))
	require.NoError(t, in.AddHook(b, nil))

	err := in.Stop()
	assert.EqualError(t, err, "b failed")
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
	assert.Equal(t, 0, in.hooks.Len())
}
