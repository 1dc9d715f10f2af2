// Package election decides which coordinator process is allowed to run
// the state machine (SPEC_FULL.md §4.9). spec.md §1 assumes exactly one
// coordinator process; this package makes that assumption true under
// non-partitioned operation rather than merely asserting it.
package election

import "context"

// Strategy is implemented by both election modes. LeaderCh delivers a
// value each time leadership is gained (true) or lost (false); the caller
// uses it to start/stop the coordinator's run loop rather than polling
// IsLeader on a timer.
type Strategy interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderAddr() string
	LeaderCh() <-chan bool
	Name() string
}
