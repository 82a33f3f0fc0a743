package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bromq-dev/fixhdr/pkg/hooks"
	"github.com/bromq-dev/fixhdr/pkg/inspect"
)

// printHook writes one line per record to the command output.
type printHook struct {
	inspect.HookBase
	mu sync.Mutex
	w  io.Writer
}

func (h *printHook) ID() string { return "print" }

func (h *printHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	h.print(rec)
}

func (h *printHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	h.print(rec)
}

func (h *printHook) print(rec *inspect.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, formatRecord(rec))
}

func formatRecord(rec *inspect.Record) string {
	if rec.Rejected() {
		return fmt.Sprintf("#%d %s error[%s]: %s", rec.Seq, hex.EncodeToString(rec.Raw), rec.ErrKind, rec.Err)
	}
	h, err := rec.Header()
	if err != nil {
		return fmt.Sprintf("#%d %s error: %v", rec.Seq, hex.EncodeToString(rec.Raw), err)
	}
	return fmt.Sprintf("#%d %s %s", rec.Seq, hex.EncodeToString(rec.Raw), h)
}

// replay prints every record stored in a journal. A directory is read as a
// badger journal, anything else as a bolt file.
func replay(path string, w io.Writer) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	backend := hooks.JournalBolt
	if fi.IsDir() {
		backend = hooks.JournalBadger
	}
	store, closer, err := hooks.OpenJournal(path, backend)
	if err != nil {
		return err
	}
	defer closer.Close()

	return hooks.Replay(store, func(rec *inspect.Record) error {
		_, err := fmt.Fprintf(w, "%s %s\n", rec.Time.UTC().Format("2006-01-02T15:04:05.000Z"), formatRecord(rec))
		return err
	})
}
