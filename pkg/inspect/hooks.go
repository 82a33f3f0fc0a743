package inspect

import (
	"context"
	"errors"
	"sync"
)

// Hooks manages registered hooks and dispatches events.
type Hooks struct {
	mu sync.RWMutex

	all    []Hook
	header []HeaderHook
	reject []RejectHook
}

// NewHooks creates a new hook manager.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register registers a hook. The hook is checked for all supported interfaces.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all = append(h.all, hook)
	if hh, ok := hook.(HeaderHook); ok {
		h.header = append(h.header, hh)
	}
	if rh, ok := hook.(RejectHook); ok {
		h.reject = append(h.reject, rh)
	}
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// OnHeader calls all header hooks.
func (h *Hooks) OnHeader(ctx context.Context, rec *Record) {
	h.mu.RLock()
	hooks := h.header
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnHeader(ctx, rec)
	}
}

// OnReject calls all reject hooks.
func (h *Hooks) OnReject(ctx context.Context, rec *Record, err error) {
	h.mu.RLock()
	hooks := h.reject
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnReject(ctx, rec, err)
	}
}

// Stop stops all hooks in reverse registration order and clears the registry.
func (h *Hooks) Stop() error {
	h.mu.Lock()
	hooks := h.all
	h.all, h.header, h.reject = nil, nil, nil
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
