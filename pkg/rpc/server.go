// Package rpc exposes the fixed header decoder as a gRPC service.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// Server serves the Decoder service.
type Server struct {
	cfg       *Config
	server    *grpc.Server
	inspector *inspect.Inspector

	mu sync.Mutex
	ln net.Listener

	log *slog.Logger
}

// Config configures the gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":7950").
	ListenAddr string

	// MaxFrameSize bounds the request size in bytes (default: 1 MiB).
	MaxFrameSize int

	// Inspector decodes frames, so remote requests reach its hooks.
	// If nil, a hookless inspector is used.
	Inspector *inspect.Inspector

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// NewServer creates a new gRPC server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":7950"
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Inspector == nil {
		cfg.Inspector = inspect.New(&inspect.Options{Logger: cfg.Logger})
	}
	return &Server{
		cfg:       cfg,
		inspector: cfg.Inspector,
		log:       cfg.Logger,
	}
}

// Start listens on the configured address and serves in the background
// until ctx is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}
	s.Serve(ln)
	context.AfterFunc(ctx, func() { _ = s.Stop() })
	return nil
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) {
	s.mu.Lock()
	s.ln = ln
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(s.cfg.MaxFrameSize+64),
		grpc.ChainUnaryInterceptor(s.logCalls),
	)
	RegisterDecoderServer(s.server, &decoderServer{srv: s})
	srv := s.server
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil {
			s.log.Error("grpc server error", "error", err)
		}
	}()

	s.log.Info("grpc server started", "addr", ln.Addr().String())
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv != nil {
		srv.GracefulStop()
	}
	return nil
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

// decoderServer implements DecoderServer.
type decoderServer struct {
	srv *Server
}

func (d *decoderServer) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResponse, error) {
	if len(req.Frame) > d.srv.cfg.MaxFrameSize {
		return nil, status.Errorf(codes.ResourceExhausted, "frame of %d bytes exceeds %d", len(req.Frame), d.srv.cfg.MaxFrameSize)
	}

	h, err := d.srv.inspector.Inspect(ctx, req.Frame)
	if err != nil {
		return nil, statusError(err)
	}

	header := make([]byte, h.Size())
	h.Encode(header)
	resp := &DecodeResponse{
		Header:          header,
		Type:            uint8(h.Type),
		TypeName:        h.Type.String(),
		Flags:           h.Flags,
		RemainingLength: h.RemainingLength.Value,
	}
	if h.Publish != nil {
		resp.Dup = h.Publish.Dup
		resp.QoS = uint8(h.Publish.QoS)
		resp.Retain = h.Publish.Retain
	}
	return resp, nil
}

func (d *decoderServer) EncodeLength(ctx context.Context, req *EncodeLengthRequest) (*EncodeLengthResponse, error) {
	rl, err := packet.EncodeRemainingLength(req.Value)
	if err != nil {
		return nil, statusError(err)
	}
	return &EncodeLengthResponse{Bytes: rl.Bytes()}, nil
}
