package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// DecoderClient is the client API for the Decoder service.
type DecoderClient interface {
	Decode(ctx context.Context, in *DecodeRequest, opts ...grpc.CallOption) (*DecodeResponse, error)
	EncodeLength(ctx context.Context, in *EncodeLengthRequest, opts ...grpc.CallOption) (*EncodeLengthResponse, error)
}

type decoderClient struct {
	cc grpc.ClientConnInterface
}

// NewDecoderClient creates a new DecoderClient.
func NewDecoderClient(cc grpc.ClientConnInterface) DecoderClient {
	return &decoderClient{cc}
}

func (c *decoderClient) Decode(ctx context.Context, in *DecodeRequest, opts ...grpc.CallOption) (*DecodeResponse, error) {
	out := new(DecodeResponse)
	err := c.cc.Invoke(ctx, "/fixhdr.Decoder/Decode", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *decoderClient) EncodeLength(ctx context.Context, in *EncodeLengthRequest, opts ...grpc.CallOption) (*EncodeLengthResponse, error) {
	out := new(EncodeLengthResponse)
	err := c.cc.Invoke(ctx, "/fixhdr.Decoder/EncodeLength", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecoderServer is the server API for the Decoder service.
type DecoderServer interface {
	Decode(context.Context, *DecodeRequest) (*DecodeResponse, error)
	EncodeLength(context.Context, *EncodeLengthRequest) (*EncodeLengthResponse, error)
}

// RegisterDecoderServer registers the server.
func RegisterDecoderServer(s *grpc.Server, srv DecoderServer) {
	s.RegisterService(&_Decoder_serviceDesc, srv)
}

var _Decoder_serviceDesc = grpc.ServiceDesc{
	ServiceName: "fixhdr.Decoder",
	HandlerType: (*DecoderServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decode",
			Handler:    _Decoder_Decode_Handler,
		},
		{
			MethodName: "EncodeLength",
			Handler:    _Decoder_EncodeLength_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "decoder.proto",
}

func _Decoder_Decode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DecodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecoderServer).Decode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/fixhdr.Decoder/Decode",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DecoderServer).Decode(ctx, req.(*DecodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Decoder_EncodeLength_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EncodeLengthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecoderServer).EncodeLength(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/fixhdr.Decoder/EncodeLength",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DecoderServer).EncodeLength(ctx, req.(*EncodeLengthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Message types

// DecodeRequest carries a frame whose fixed header should be decoded.
type DecodeRequest struct {
	Frame []byte `msgpack:"frame"`
}

// DecodeResponse describes a decoded fixed header.
type DecodeResponse struct {
	// Header holds the raw fixed header bytes.
	Header          []byte `msgpack:"header"`
	Type            uint8  `msgpack:"type"`
	TypeName        string `msgpack:"type_name"`
	Flags           uint8  `msgpack:"flags"`
	Dup             bool   `msgpack:"dup,omitempty"`
	QoS             uint8  `msgpack:"qos,omitempty"`
	Retain          bool   `msgpack:"retain,omitempty"`
	RemainingLength uint32 `msgpack:"remaining_length"`
}

// EncodeLengthRequest asks for the wire encoding of a remaining length.
type EncodeLengthRequest struct {
	Value uint32 `msgpack:"value"`
}

// EncodeLengthResponse is the varint encoding of the requested value.
type EncodeLengthResponse struct {
	Bytes []byte `msgpack:"bytes"`
}
