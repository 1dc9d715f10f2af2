package coordinator

// Events are the only way anything outside the coordinator's own Run loop
// touches its state, generalizing the teacher's ticker-driven Run select
// loop (pkg/orchestrator/orchestrator.go Run) to a channel fed by four
// independent sources: the message dispatcher, the master watcher, the
// invalidation timer, and the status endpoint.

type pongEvent struct {
	id    string
	token int64
}

type clientInvalidatedEvent struct {
	id    string
	token int64
}

type clientStartedEvent struct {
	id string
}

type heartbeatEvent struct {
	id string
}

type masterAvailableEvent struct{}

type masterUnavailableEvent struct{}

// invalidationTimeoutEvent fires when an armed invalidation round has not
// closed within the configured timeout. token names the round it was armed
// for, so a timer that fires after its round already closed is discarded by
// the same token check every other handler uses.
type invalidationTimeoutEvent struct {
	token int64
}

type statusRequestEvent struct {
	resp chan Status
}

// Pong implements bus.Dispatchable.
func (c *Coordinator) Pong(id string, token int64) {
	c.events <- pongEvent{id: id, token: token}
}

// ClientInvalidated implements bus.Dispatchable.
func (c *Coordinator) ClientInvalidated(id string, token int64) {
	c.events <- clientInvalidatedEvent{id: id, token: token}
}

// ClientStarted implements bus.Dispatchable.
func (c *Coordinator) ClientStarted(id string) {
	c.events <- clientStartedEvent{id: id}
}

// Heartbeat implements bus.Dispatchable.
func (c *Coordinator) Heartbeat(id string) {
	c.events <- heartbeatEvent{id: id}
}

// MasterAvailable is the watcher's recovery callback (spec.md §4.5.5).
func (c *Coordinator) MasterAvailable() {
	c.events <- masterAvailableEvent{}
}

// MasterUnavailable is the watcher's escalation callback (spec.md §4.5.3).
func (c *Coordinator) MasterUnavailable() {
	c.events <- masterUnavailableEvent{}
}
