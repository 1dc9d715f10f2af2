package redispool

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Prober issues role and ping queries against every configured endpoint in
// parallel and produces a fresh Pool snapshot.
type Prober struct {
	order   []string
	handles map[string]Handle
	timeout time.Duration
}

// NewProber builds a Prober over handles, addressed by Handle.Address().
// timeout bounds each individual endpoint's probe, not the whole cycle. The
// order of handles is preserved in every Pool snapshot Probe produces, so
// "the first endpoint in the current pool" (spec.md §4.5.4) is the
// configured order, not map iteration order.
func NewProber(handles []Handle, timeout time.Duration) *Prober {
	order := make([]string, 0, len(handles))
	m := make(map[string]Handle, len(handles))
	for _, h := range handles {
		order = append(order, h.Address())
		m[h.Address()] = h
	}
	return &Prober{order: order, handles: m, timeout: timeout}
}

// Handle returns the Handle for addr, if configured.
func (p *Prober) Handle(addr string) (Handle, bool) {
	h, ok := p.handles[addr]
	return h, ok
}

// Count returns the number of configured endpoints.
func (p *Prober) Count() int {
	return len(p.order)
}

// Probe queries every configured endpoint concurrently and returns a fresh
// Pool snapshot. A probe error on one endpoint never fails the cycle; it
// simply marks that endpoint Unknown/unavailable (spec.md §7: ProbeFailure
// is recoverable, never aborts).
func (p *Prober) Probe(ctx context.Context) Pool {
	var wg sync.WaitGroup
	results := make([]Endpoint, len(p.order))

	for i, addr := range p.order {
		wg.Add(1)
		idx, addr, h := i, addr, p.handles[addr]
		go func() {
			defer wg.Done()
			result, err := h.Probe(ctx, p.timeout)
			if err != nil {
				klog.V(2).InfoS("Probe failed, marking unknown", "addr", addr, "err", err)
				results[idx] = Endpoint{Address: addr, Role: RoleUnknown, Available: false}
				return
			}
			results[idx] = Endpoint{Address: addr, Role: result.Role, Available: true, Follows: result.Follows}
		}()
	}

	wg.Wait()
	return NewPool(results)
}

// ProbeOne probes a single endpoint for liveness only, used by the master
// watcher which only needs to know whether the current master is still up.
func (p *Prober) ProbeOne(ctx context.Context, addr string) error {
	h, ok := p.handles[addr]
	if !ok {
		return errUnknownEndpoint(addr)
	}
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return h.Ping(probeCtx)
}

type errUnknownEndpoint string

func (e errUnknownEndpoint) Error() string {
	return "redispool: no handle configured for endpoint " + string(e)
}
