package bus

import "context"

// Publisher is the coordinator's view of the external publisher (spec.md
// §1, §6 component H). Redundant publishing, broker failover, and
// throttling are the publisher's own business and out of scope here; this
// interface only covers the three message kinds the coordinator sends.
type Publisher interface {
	PublishInvalidate(ctx context.Context, token int64) error
	PublishReconfigure(ctx context.Context, server string, token int64) error
	PublishSystemNotification(ctx context.Context, message string) error
}

// Dispatchable is the set of coordinator entry points the Message
// Dispatcher (spec.md §4.6) invokes for each inbound control message.
// Splitting this out of *coordinator.Coordinator keeps the bus package
// decoupled from the coordinator package.
type Dispatchable interface {
	Pong(id string, token int64)
	ClientInvalidated(id string, token int64)
	ClientStarted(id string)
	Heartbeat(id string)
}
