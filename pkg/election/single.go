package election

import (
	"context"

	"k8s.io/klog/v2"
)

// SingleStrategy is the default, zero-peer strategy: this process is
// always the leader. It serves spec.md §1's baseline assumption directly
// rather than deriving it from a vote, which is appropriate because there
// is nothing to vote against when only one process is configured.
type SingleStrategy struct {
	debug bool
	ch    chan bool
}

// NewSingleStrategy creates a strategy that never relinquishes leadership.
func NewSingleStrategy(debug bool) *SingleStrategy {
	return &SingleStrategy{debug: debug, ch: make(chan bool, 1)}
}

func (s *SingleStrategy) Start(ctx context.Context) error {
	if s.debug {
		klog.Info("Started single-process election strategy")
	}
	s.ch <- true
	return nil
}

func (s *SingleStrategy) Stop() error {
	if s.debug {
		klog.Info("Stopped single-process election strategy")
	}
	return nil
}

func (s *SingleStrategy) IsLeader() bool { return true }

func (s *SingleStrategy) LeaderAddr() string { return "" }

func (s *SingleStrategy) LeaderCh() <-chan bool { return s.ch }

func (s *SingleStrategy) Name() string { return "single" }
