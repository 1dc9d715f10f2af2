package coordinator

import (
	"context"
	"time"
)

// State is the coordinator's high-level phase (spec.md §3).
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// UnresponsiveClient pairs an expected client id with when it was last
// seen, for the status endpoint.
type UnresponsiveClient struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

// Status is the snapshot spec.md §6 says the status endpoint returns. It is
// produced by the event loop itself, never read off coordinator state from
// another goroutine (spec.md §5: "no lock is required because no other
// context may touch coordinator state").
type Status struct {
	ConfiguredClientIDs []string              `json:"configured_client_ids"`
	UnknownClientIDs    []string              `json:"unknown_client_ids"`
	UnresponsiveClients []UnresponsiveClient  `json:"unresponsive_clients"`
	CurrentMaster       string                `json:"current_master"`
	CurrentToken        int64                 `json:"current_token"`
	State               State                 `json:"state"`
}

// Status requests a snapshot from the event loop and blocks until it is
// produced or ctx is cancelled. This is the one operation callers outside
// the loop perform synchronously; everything else is fire-and-forget.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	resp := make(chan Status, 1)
	select {
	case c.events <- statusRequestEvent{resp: resp}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *Coordinator) snapshot() Status {
	unresponsive := c.registry.UnresponsiveClients(time.Now(), c.settings.ClientDeadThreshold)
	out := make([]UnresponsiveClient, 0, len(unresponsive))
	for _, u := range unresponsive {
		out = append(out, UnresponsiveClient{ID: u.ID, LastSeen: u.LastSeen})
	}
	return Status{
		ConfiguredClientIDs: c.registry.ExpectedIDs(),
		UnknownClientIDs:    c.registry.UnknownIDs(),
		UnresponsiveClients: out,
		CurrentMaster:       c.currentMaster,
		CurrentToken:        c.mint.Current(),
		State:               c.state,
	}
}
