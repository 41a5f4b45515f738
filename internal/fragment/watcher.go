// internal/fragment/watcher.go
package fragment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Probe samples a string-valued piece of page state.
type Probe func(ctx context.Context) (string, error)

// Source is anything exposing the hosting page's fragment.
type Source interface {
	Fragment(ctx context.Context) (string, error)
}

// FragmentProbe samples src's current fragment.
func FragmentProbe(src Source) Probe {
	return src.Fragment
}

// Watcher polls probes at a fixed interval and fires once per watch.
type Watcher struct {
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Watcher. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{interval: interval, logger: logger.Named("fragment_watcher")}
}

// Interval is the poll period.
func (w *Watcher) Interval() time.Duration { return w.interval }

// Handle is one armed watch.
type Handle struct {
	baseline string
	armed    atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Baseline is the value captured when the watch was armed.
func (h *Handle) Baseline() string { return h.baseline }

// Armed reports whether the watch can still fire.
func (h *Handle) Armed() bool { return h.armed.Load() }

// Done is closed once the poll loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// disarm claims the single shot. Only the first caller gets true.
func (h *Handle) disarm() bool {
	return h.armed.CompareAndSwap(true, false)
}

// Watch captures the probe's current value synchronously, then polls in the
// background and calls onChange with the first differing value. The poll loop
// outlives ctx's cancellation; it ends on change or Unwatch.
func (w *Watcher) Watch(ctx context.Context, probe Probe, onChange func(string)) (*Handle, error) {
	if probe == nil || onChange == nil {
		return nil, errors.New("fragment: probe and callback are required")
	}
	baseline, err := probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("fragment: capture baseline: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{baseline: baseline, cancel: cancel, done: make(chan struct{})}
	h.armed.Store(true)

	go w.poll(pollCtx, h, probe, onChange)
	return h, nil
}

// Unwatch disarms h. It never blocks on an in-flight callback, so callers that
// hold locks the callback needs must re-check their own state in the callback.
func (w *Watcher) Unwatch(h *Handle) {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		h.armed.Store(false)
		h.cancel()
	})
}

func (w *Watcher) poll(ctx context.Context, h *Handle, probe Probe, onChange func(string)) {
	defer close(h.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !h.Armed() {
			return
		}
		current, err := probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debug("Probe failed; retrying on next tick.", zap.Error(err))
			continue
		}
		if current == h.baseline {
			continue
		}
		if !h.disarm() {
			return
		}
		h.cancel()
		w.logger.Debug("Change observed.", zap.String("baseline", h.baseline), zap.String("value", current))
		onChange(current)
		return
	}
}
