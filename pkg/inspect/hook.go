package inspect

import (
	"context"
	"log/slog"
)

// Hook provides extension points for observing decoded fixed headers.
// Implementations add behavior by also implementing HeaderHook and/or
// RejectHook.
//
// Hook methods are called synchronously from Inspect and Run. For
// long-running operations, implementations should spawn goroutines internally.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string

	// Init is called once by Inspector.AddHook with the hook's config.
	Init(opts *HookOptions, config any) error

	// Stop releases resources held by the hook.
	Stop() error
}

// HeaderHook receives every successfully decoded header.
type HeaderHook interface {
	Hook

	// OnHeader is called after a header passed all decoder checks.
	OnHeader(ctx context.Context, rec *Record)
}

// RejectHook receives every frame the decoder or a policy rejected.
type RejectHook interface {
	Hook

	// OnReject is called with the partial record and the rejection error.
	OnReject(ctx context.Context, rec *Record, err error)
}

// HookOptions is handed to Hook.Init.
type HookOptions struct {
	// Log is the inspector's logger.
	Log *slog.Logger

	// CaptureID identifies the inspector run the hook is attached to.
	CaptureID string
}

// HookBase can be embedded to get no-op Init/Stop and a logger.
type HookBase struct {
	Log       *slog.Logger
	CaptureID string
}

// Init stores the inspector logger and capture ID.
func (h *HookBase) Init(opts *HookOptions, config any) error {
	if opts != nil {
		h.Log = opts.Log
		h.CaptureID = opts.CaptureID
	}
	if h.Log == nil {
		h.Log = slog.Default()
	}
	return nil
}

// Stop does nothing.
func (h *HookBase) Stop() error { return nil }
