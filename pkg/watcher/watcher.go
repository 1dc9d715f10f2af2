// Package watcher periodically checks the liveness of the current master
// and escalates to "unavailable" after a configured run of consecutive
// failures (spec.md §4.3).
//
// Ticks never mutate coordinator state directly; they are delivered as
// events on a channel, generalizing the teacher's ticker-driven
// Orchestrator.Run loop (pkg/orchestrator/orchestrator.go) and borrowing
// the consecutive-failure escalation shape from johnjansen-torua's
// HealthMonitor (internal/coordinator/health_monitor.go) — see DESIGN.md.
package watcher

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

// Prober is the narrow liveness-check capability the watcher needs; it is
// satisfied by *redispool.Prober without this package importing redispool.
type Prober interface {
	ProbeOne(ctx context.Context, addr string) error
}

// Watcher performs a periodic liveness check of the current master and
// notifies the coordinator of availability changes via onAvailable/
// onUnavailable callbacks, which the coordinator wires to enqueue events on
// its own channel rather than mutating state from the watcher's goroutine.
type Watcher struct {
	prober        Prober
	interval      time.Duration
	retryBudget   int
	remaining     int
	armed         bool
	onAvailable   func()
	onUnavailable func()

	currentMaster func() string

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Watcher. currentMaster is called on every tick to learn the
// address to probe, so the watcher never needs to be reconstructed when the
// coordinator switches masters.
func New(prober Prober, interval time.Duration, retryBudget int, currentMaster func() string) *Watcher {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Watcher{
		prober:        prober,
		interval:      interval,
		retryBudget:   retryBudget,
		remaining:     retryBudget,
		armed:         true,
		currentMaster: currentMaster,
	}
}

// OnAvailable sets the callback invoked when the master responds.
func (w *Watcher) OnAvailable(f func()) { w.onAvailable = f }

// OnUnavailable sets the callback invoked once the retry budget is
// exhausted.
func (w *Watcher) OnUnavailable(f func()) { w.onUnavailable = f }

// Start begins ticking in its own goroutine until ctx is cancelled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

// Stop cancels the watcher's goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
}

// Rearm resets the retry budget and resumes ticking after a prior escalation
// to unavailable. The coordinator calls this once a master switch completes
// (spec.md §4.5.4 step 6: "rearm watcher").
func (w *Watcher) Rearm() {
	w.remaining = w.retryBudget
	w.armed = true
}

func (w *Watcher) tick(ctx context.Context) {
	if !w.armed {
		return
	}

	addr := w.currentMaster()
	if addr == "" {
		return
	}

	if err := w.prober.ProbeOne(ctx, addr); err != nil {
		w.remaining--
		klog.V(2).InfoS("Master watcher check failed", "addr", addr, "remaining", w.remaining, "err", err)
		if w.remaining <= 0 {
			w.armed = false
			klog.InfoS("Master watcher exhausted retry budget, declaring unavailable", "addr", addr)
			if w.onUnavailable != nil {
				w.onUnavailable()
			}
		}
		return
	}

	if w.remaining != w.retryBudget {
		klog.InfoS("Master watcher check recovered", "addr", addr)
	}
	w.remaining = w.retryBudget
	if w.onAvailable != nil {
		w.onAvailable()
	}
}
