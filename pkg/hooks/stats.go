package hooks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
	"github.com/bromq-dev/fixhdr/pkg/packet"
)

// StatsHook counts decoded headers per packet type and rejections per error
// kind, and periodically hands a snapshot to a reporter.
type StatsHook struct {
	inspect.HookBase
	reporter StatsReporter
	interval time.Duration

	startTime time.Time
	byType    [16]atomic.Uint64
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	bytes     atomic.Uint64

	kindsMu sync.Mutex
	kinds   map[string]uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// StatsReporter receives periodic snapshots.
type StatsReporter func(Stats)

// StatsConfig configures the stats hook.
type StatsConfig struct {
	// Reporter is called with a snapshot on every tick
	// (default: log the snapshot at info level).
	Reporter StatsReporter

	// Interval is how often to report (default: 10s).
	Interval time.Duration
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Uptime   time.Duration
	Accepted uint64
	Rejected uint64
	// Bytes is the total size of accepted packets, header included.
	Bytes  uint64
	ByType map[string]uint64
	ByKind map[string]uint64
}

// NewStatsHook creates a new stats hook.
func NewStatsHook(cfg StatsConfig) *StatsHook {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	return &StatsHook{
		reporter:  cfg.Reporter,
		interval:  cfg.Interval,
		startTime: time.Now(),
		kinds:     make(map[string]uint64),
	}
}

func (h *StatsHook) ID() string { return "stats" }

// Init starts the report loop.
func (h *StatsHook) Init(opts *inspect.HookOptions, config any) error {
	if err := h.HookBase.Init(opts, config); err != nil {
		return err
	}
	if h.reporter == nil {
		h.reporter = h.logStats
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
	return nil
}

// Stop stops the report loop and emits a final snapshot.
func (h *StatsHook) Stop() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	h.reporter(h.Stats())
	return nil
}

func (h *StatsHook) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reporter(h.Stats())
		}
	}
}

func (h *StatsHook) logStats(s Stats) {
	h.Log.Info("header stats",
		"uptime", s.Uptime.Round(time.Second).String(),
		"accepted", s.Accepted,
		"rejected", s.Rejected,
		"bytes", s.Bytes,
		"by_type", s.ByType,
		"by_kind", s.ByKind,
	)
}

func (h *StatsHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	h.accepted.Add(1)
	h.byType[rec.Type&0x0F].Add(1)
	h.bytes.Add(uint64(rec.HeaderSize) + uint64(rec.RemainingLength))
}

func (h *StatsHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	h.rejected.Add(1)
	h.kindsMu.Lock()
	h.kinds[rec.ErrKind]++
	h.kindsMu.Unlock()
}

// Stats returns a snapshot of the current counters.
func (h *StatsHook) Stats() Stats {
	s := Stats{
		Uptime:   time.Since(h.startTime),
		Accepted: h.accepted.Load(),
		Rejected: h.rejected.Load(),
		Bytes:    h.bytes.Load(),
		ByType:   make(map[string]uint64),
		ByKind:   make(map[string]uint64),
	}
	for i := range h.byType {
		if n := h.byType[i].Load(); n > 0 {
			s.ByType[packet.Type(i).String()] = n
		}
	}
	h.kindsMu.Lock()
	for k, n := range h.kinds {
		s.ByKind[k] = n
	}
	h.kindsMu.Unlock()
	return s
}
