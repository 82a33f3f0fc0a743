package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// Client calls a remote Decoder service.
type Client struct {
	conn *grpc.ClientConn
	api  DecoderClient
}

// Dial creates a client for target. Extra options are appended to the
// defaults (insecure transport, msgpack codec).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, api: NewDecoderClient(conn)}, nil
}

// Decode decodes the fixed header of frame remotely. Decode failures are
// returned as *RemoteError.
func (c *Client) Decode(ctx context.Context, frame []byte) (packet.FixedHeader, error) {
	resp, err := c.api.Decode(ctx, &DecodeRequest{Frame: frame})
	if err != nil {
		return packet.FixedHeader{}, fromStatus(err)
	}
	return packet.ParseFixedHeader(resp.Header)
}

// EncodeLength returns the remote encoding of a remaining length value.
func (c *Client) EncodeLength(ctx context.Context, value uint32) ([]byte, error) {
	resp, err := c.api.EncodeLength(ctx, &EncodeLengthRequest{Value: value})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Bytes, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
