package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
)

// NatsHook publishes every record, msgpack encoded, to a NATS subject.
// Accepted headers go to <subject>.header.<TYPE> and rejections to
// <subject>.reject.<kind>, so "<subject>.>" receives everything.
type NatsHook struct {
	inspect.HookBase
	conn    *nats.Conn
	owned   bool
	subject string
	flush   time.Duration
}

// NatsConfig configures the NATS hook.
type NatsConfig struct {
	// URL of the NATS server (default: nats.DefaultURL).
	URL string

	// Subject prefix for published records (default: "fixhdr").
	Subject string

	// FlushTimeout bounds the flush on Stop (default: 2s).
	FlushTimeout time.Duration

	// Options are passed to nats.Connect.
	Options []nats.Option

	// Conn allows providing an existing connection. If set, URL and Options
	// are ignored and Stop leaves the connection open.
	Conn *nats.Conn
}

func (h *NatsHook) ID() string { return "nats" }

// Init connects to the NATS server.
func (h *NatsHook) Init(opts *inspect.HookOptions, config any) error {
	if err := h.HookBase.Init(opts, config); err != nil {
		return err
	}

	cfg := &NatsConfig{}
	if c, ok := config.(*NatsConfig); ok && c != nil {
		cfg = c
	}

	h.subject = cfg.Subject
	if h.subject == "" {
		h.subject = "fixhdr"
	}
	h.flush = cfg.FlushTimeout
	if h.flush == 0 {
		h.flush = 2 * time.Second
	}

	if cfg.Conn != nil {
		h.conn = cfg.Conn
	} else {
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		nopts := append([]nats.Option{nats.Name("fixhdr-" + nuid.Next())}, cfg.Options...)
		nc, err := nats.Connect(url, nopts...)
		if err != nil {
			return err
		}
		h.conn, h.owned = nc, true
	}

	h.Log.Info("nats hook initialized",
		"server", h.conn.ConnectedUrl(),
		"subject", h.subject,
	)
	return nil
}

// Stop flushes pending records and closes the connection if the hook
// opened it.
func (h *NatsHook) Stop() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.FlushTimeout(h.flush)
	if errors.Is(err, nats.ErrConnectionClosed) {
		err = nil
	}
	if h.owned {
		h.conn.Close()
	}
	return err
}

// Subject returns the subject a record is published on.
func (h *NatsHook) Subject(rec *inspect.Record) string {
	if rec.Rejected() {
		return h.subject + ".reject." + rec.ErrKind
	}
	return h.subject + ".header." + rec.Type.String()
}

func (h *NatsHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	h.publish(rec)
}

func (h *NatsHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	h.publish(rec)
}

func (h *NatsHook) publish(rec *inspect.Record) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		h.Log.Warn("nats encode failed", "seq", rec.Seq, "error", err)
		return
	}
	if err := h.conn.Publish(h.Subject(rec), data); err != nil {
		h.Log.Warn("nats publish failed", "seq", rec.Seq, "error", err)
	}
}

// DecodeNatsRecord decodes a record published by NatsHook.
func DecodeNatsRecord(m *nats.Msg) (*inspect.Record, error) {
	rec := &inspect.Record{}
	if err := msgpack.Unmarshal(m.Data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
