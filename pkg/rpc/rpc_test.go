package rpc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
	"github.com/bromq-dev/fixhdr/pkg/packet"
)

type countHook struct {
	inspect.HookBase
	mu       sync.Mutex
	accepted int
	rejected int
}

func (h *countHook) ID() string { return "count" }

func (h *countHook) OnHeader(context.Context, *inspect.Record) {
	h.mu.Lock()
	h.accepted++
	h.mu.Unlock()
}

func (h *countHook) OnReject(context.Context, *inspect.Record, error) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func startServer(t *testing.T, cfg *Config) *Client {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}

	ln := bufconn.Listen(1 << 20)
	srv := NewServer(cfg)
	srv.Serve(ln)
	t.Cleanup(func() { _ = srv.Stop() })

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDecode(t *testing.T) {
	client := startServer(t, &Config{})

	h, err := client.Decode(context.Background(), []byte{0x3D, 0x80, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, packet.TypePublish, h.Type)
	require.NotNil(t, h.Publish)
	assert.True(t, h.Publish.Dup)
	assert.Equal(t, packet.QoS2, h.Publish.QoS)
	assert.True(t, h.Publish.Retain)
	assert.Equal(t, uint32(128), h.RemainingLength.Value)
	assert.Equal(t, 3, h.Size())

	h, err = client.Decode(context.Background(), []byte{0x62, 0x02})
	require.NoError(t, err)
	assert.Equal(t, packet.TypePubrel, h.Type)
	assert.Nil(t, h.Publish)
}

func TestDecodeResponseFields(t *testing.T) {
	client := startServer(t, &Config{})

	resp, err := client.api.Decode(context.Background(), &DecodeRequest{Frame: []byte{0x3B, 0x00}},
		grpc.CallContentSubtype(CodecName))
	require.NoError(t, err)
	assert.Equal(t, &DecodeResponse{
		Header:   []byte{0x3B, 0x00},
		Type:     3,
		TypeName: "PUBLISH",
		Flags:    0x0B,
		Dup:      true,
		QoS:      1,
		Retain:   true,
	}, resp)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		err   error
		kind  string
	}{
		{"truncated", []byte{0x30}, packet.ErrTruncatedInput, "truncated_input"},
		{"empty", []byte{}, packet.ErrTruncatedInput, "truncated_input"},
		{"reserved type", []byte{0x00, 0x00}, packet.ErrReservedType, "reserved_type"},
		{"truncated length", []byte{0x82, 0x80}, packet.ErrTruncatedInput, "truncated_input"},
		{"subscribe flags", []byte{0x80, 0x00}, packet.ErrInvalidFlags, "invalid_flags"},
		{"qos", []byte{0x36, 0x00}, packet.ErrInvalidQoS, "invalid_qos"},
		{"malformed", []byte{0x30, 0xFF, 0xFF, 0xFF, 0x80}, packet.ErrMalformedRemainingLength, "malformed_remaining_length"},
		{"non-minimal", []byte{0x30, 0x80, 0x00}, packet.ErrNonMinimalEncoding, "non_minimal_encoding"},
	}

	client := startServer(t, &Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Decode(context.Background(), tt.frame)
			require.ErrorIs(t, err, tt.err)

			var remote *RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.kind, remote.Kind)
		})
	}
}

func TestDecodeThroughInspector(t *testing.T) {
	hook := &countHook{}
	in := inspect.New(&inspect.Options{
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		RejectEmpty: map[packet.Type]bool{packet.TypeSubscribe: true},
	})
	require.NoError(t, in.AddHook(hook, nil))

	client := startServer(t, &Config{Inspector: in})

	_, err := client.Decode(context.Background(), []byte{0xC0, 0x00})
	require.NoError(t, err)
	_, err = client.Decode(context.Background(), []byte{0x82, 0x00})
	assert.ErrorIs(t, err, inspect.ErrEmptyRemainingLength)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Equal(t, 1, hook.accepted)
	assert.Equal(t, 1, hook.rejected)
}

func TestDecodeFrameTooLarge(t *testing.T) {
	client := startServer(t, &Config{MaxFrameSize: 8})

	_, err := client.Decode(context.Background(), make([]byte, 9))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	var remote *RemoteError
	assert.False(t, errors.As(err, &remote))
}

func TestEncodeLength(t *testing.T) {
	client := startServer(t, &Config{})

	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{packet.MaxRemainingLength, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		got, err := client.EncodeLength(context.Background(), tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "value %d", tt.value)
	}

	_, err := client.EncodeLength(context.Background(), packet.MaxRemainingLength+1)
	assert.ErrorIs(t, err, packet.ErrValueTooLarge)
}

func TestFromStatus(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, plain, fromStatus(plain))

	unknown := status.Error(codes.InvalidArgument, "something: else")
	assert.Equal(t, unknown, fromStatus(unknown))

	other := status.Error(codes.Unavailable, "invalid_qos: x")
	assert.Equal(t, other, fromStatus(other))

	err := fromStatus(statusError(packet.ErrNonMinimalEncoding))
	assert.ErrorIs(t, err, packet.ErrNonMinimalEncoding)
	assert.NotErrorIs(t, err, packet.ErrTruncatedInput)
	assert.Equal(t, packet.ErrNonMinimalEncoding.Error(), err.Error())
}

func TestServerAddr(t *testing.T) {
	srv := NewServer(&Config{
		ListenAddr: "127.0.0.1:0",
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()
	assert.NotEmpty(t, srv.Addr())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())
}

func TestServerStopsWithContext(t *testing.T) {
	srv := NewServer(&Config{
		ListenAddr: "127.0.0.1:0",
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	addr := srv.Addr()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn.Close()

	cancel()
	assert.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
		}
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}
