// Package hooks provides composable hook implementations for the fixed header
// inspector.
package hooks

import (
	"context"
	"log/slog"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
)

// LoggerHook logs inspected headers using slog.
type LoggerHook struct {
	inspect.HookBase
	logger *slog.Logger
	level  LogLevel
}

// LogLevel controls which events are logged.
type LogLevel int

const (
	// LogLevelAccepted logs every decoded header at debug level.
	LogLevelAccepted LogLevel = 1 << iota
	// LogLevelRejected logs every rejected frame at warn level.
	LogLevelRejected
	// LogLevelAll logs all events.
	LogLevelAll = LogLevelAccepted | LogLevelRejected
)

// LoggerConfig configures the logger hook.
type LoggerConfig struct {
	// Logger is the slog.Logger to use (default: the inspector's logger).
	Logger *slog.Logger

	// Level controls which events are logged (default: LogLevelAll).
	Level LogLevel
}

// NewLoggerHook creates a new logging hook.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	if cfg.Level == 0 {
		cfg.Level = LogLevelAll
	}
	return &LoggerHook{
		logger: cfg.Logger,
		level:  cfg.Level,
	}
}

func (h *LoggerHook) ID() string { return "logger" }

// Init falls back to the inspector's logger when none was configured.
func (h *LoggerHook) Init(opts *inspect.HookOptions, config any) error {
	if err := h.HookBase.Init(opts, config); err != nil {
		return err
	}
	if h.logger == nil {
		h.logger = h.Log
	}
	if h.level == 0 {
		h.level = LogLevelAll
	}
	return nil
}

func (h *LoggerHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	if h.level&LogLevelAccepted == 0 {
		return
	}
	attrs := []any{
		"seq", rec.Seq,
		"type", rec.Type.String(),
		"remaining_length", rec.RemainingLength,
		"header_size", rec.HeaderSize,
	}
	if rec.Publish {
		attrs = append(attrs,
			"dup", rec.Dup,
			"qos", rec.QoS.String(),
			"retain", rec.Retain,
		)
	} else {
		attrs = append(attrs, "flags", rec.Flags)
	}
	h.logger.DebugContext(ctx, "header decoded", attrs...)
}

func (h *LoggerHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	if h.level&LogLevelRejected == 0 {
		return
	}
	h.logger.WarnContext(ctx, "header rejected",
		"seq", rec.Seq,
		"kind", rec.ErrKind,
		"raw", rec.Raw,
		"error", err.Error(),
	)
}
