package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
)

// JournalHook appends every record to a raft log store, so a capture can be
// replayed after the process exits.
type JournalHook struct {
	inspect.HookBase
	store      raft.LogStore
	closer     io.Closer
	term       uint64
	maxEntries uint64

	mu    sync.Mutex
	first uint64
	next  uint64
}

// JournalConfig configures the journal hook.
type JournalConfig struct {
	// Path of the journal: a bolt database file, or a directory for the
	// badger backend. Empty keeps the journal in memory.
	Path string

	// Backend selects the on-disk store: JournalBolt (default) or
	// JournalBadger.
	Backend string

	// Store allows providing an existing log store. If set, Path is ignored.
	Store raft.LogStore

	// Term is stamped on every entry; use it to tell captures apart.
	Term uint64

	// MaxEntries drops the oldest entries beyond this count (0 = unlimited).
	MaxEntries uint64
}

// Journal backends.
const (
	JournalBolt   = "bolt"
	JournalBadger = "badger"
)

// OpenJournal opens a journal store at path. An empty backend means bolt.
func OpenJournal(path, backend string) (raft.LogStore, io.Closer, error) {
	switch backend {
	case "", JournalBolt:
		bolt, err := raftboltdb.NewBoltStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal %s: %w", path, err)
		}
		return bolt, bolt, nil
	case JournalBadger:
		store, err := NewBadgerStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal %s: %w", path, err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal backend %q", backend)
	}
}

func (h *JournalHook) ID() string { return "journal" }

// Init opens the log store and resumes after its last index.
func (h *JournalHook) Init(opts *inspect.HookOptions, config any) error {
	if err := h.HookBase.Init(opts, config); err != nil {
		return err
	}

	cfg := &JournalConfig{}
	if c, ok := config.(*JournalConfig); ok && c != nil {
		cfg = c
	}

	switch {
	case cfg.Store != nil:
		h.store = cfg.Store
	case cfg.Path != "":
		store, closer, err := OpenJournal(cfg.Path, cfg.Backend)
		if err != nil {
			return err
		}
		h.store, h.closer = store, closer
	default:
		h.store = raft.NewInmemStore()
	}

	first, err := h.store.FirstIndex()
	if err != nil {
		return err
	}
	last, err := h.store.LastIndex()
	if err != nil {
		return err
	}
	if first == 0 {
		first = 1
	}
	h.first, h.next = first, last+1
	h.term = cfg.Term
	h.maxEntries = cfg.MaxEntries

	h.Log.Info("journal hook initialized",
		"path", cfg.Path,
		"backend", cfg.Backend,
		"next_index", h.next,
	)
	return nil
}

// Stop closes the database if the hook opened it.
func (h *JournalHook) Stop() error {
	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}

// Store returns the underlying log store.
func (h *JournalHook) Store() raft.LogStore {
	return h.store
}

func (h *JournalHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	h.append(rec)
}

func (h *JournalHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	h.append(rec)
}

func (h *JournalHook) append(rec *inspect.Record) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		h.Log.Warn("journal encode failed", "seq", rec.Seq, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entry := &raft.Log{
		Index:      h.next,
		Term:       h.term,
		Type:       raft.LogCommand,
		Data:       data,
		AppendedAt: time.Now(),
	}
	if err := h.store.StoreLog(entry); err != nil {
		h.Log.Warn("journal append failed", "index", entry.Index, "error", err)
		return
	}
	h.next++

	if h.maxEntries == 0 || h.next-h.first <= h.maxEntries {
		return
	}
	cut := h.next - h.maxEntries - 1
	if err := h.store.DeleteRange(h.first, cut); err != nil {
		h.Log.Warn("journal trim failed", "error", err)
		return
	}
	h.first = cut + 1
}

// Replay calls fn for every record in store, in index order. It stops at the
// first error returned by fn.
func Replay(store raft.LogStore, fn func(*inspect.Record) error) error {
	first, err := store.FirstIndex()
	if err != nil {
		return err
	}
	last, err := store.LastIndex()
	if err != nil {
		return err
	}
	if last == 0 {
		return nil
	}

	for i := first; i <= last; i++ {
		var entry raft.Log
		if err := store.GetLog(i, &entry); err != nil {
			if errors.Is(err, raft.ErrLogNotFound) {
				continue
			}
			return fmt.Errorf("journal index %d: %w", i, err)
		}
		if entry.Type != raft.LogCommand {
			continue
		}
		rec := &inspect.Record{}
		if err := msgpack.Unmarshal(entry.Data, rec); err != nil {
			return fmt.Errorf("journal index %d: %w", i, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
