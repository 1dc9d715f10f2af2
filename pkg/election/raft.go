package election

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/avosa/beetle/pkg/auth"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"k8s.io/klog/v2"
)

// RaftStrategy implements leader election using Raft consensus across a
// fixed set of coordinator replicas. Adapted from the teacher's
// RaftStrategy, trimmed of its auto-join polling loop and peer-discovery
// HTTP client (SPEC_FULL.md §4.9): cluster membership here is either
// decided once at bootstrap from the static peer list, or changed later by
// an operator calling the leader's /raft/add-voter endpoint directly. That
// removes an entire background goroutine and its retry/backoff logic,
// which had nothing to do with Redis failover and existed only to save an
// operator from calling add-voter by hand.
type RaftStrategy struct {
	localID       string
	bindAddr      string
	advertiseAddr string
	peers         []string
	dataDir       string
	bootstrap     bool
	debug         bool
	authenticator *auth.Authenticator

	raft *raft.Raft
	ch   chan bool
}

// NewRaftStrategy creates a Raft-based election strategy. localID must be
// unique across the cluster (its bind address is a natural choice).
// advertiseAddr is how peers reach this node; it defaults to bindAddr.
func NewRaftStrategy(localID, bindAddr, advertiseAddr string, peers []string, dataDir string, bootstrap, debug bool, authenticator *auth.Authenticator) *RaftStrategy {
	if advertiseAddr == "" {
		advertiseAddr = bindAddr
	}
	return &RaftStrategy{
		localID:       localID,
		bindAddr:      bindAddr,
		advertiseAddr: advertiseAddr,
		peers:         peers,
		dataDir:       dataDir,
		bootstrap:     bootstrap,
		debug:         debug,
		authenticator: authenticator,
		ch:            make(chan bool, 1),
	}
}

// Start initializes the Raft consensus system and, if bootstrap is set,
// seeds the cluster configuration from the static peer list.
func (r *RaftStrategy) Start(ctx context.Context) error {
	if r.debug {
		klog.InfoS("Starting Raft election strategy",
			"bindAddr", r.bindAddr,
			"peers", r.peers,
			"dataDir", r.dataDir,
			"bootstrap", r.bootstrap)
	}

	if err := os.MkdirAll(r.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create Raft data directory: %w", err)
	}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(r.localID)
	if r.debug {
		config.LogLevel = "DEBUG"
	} else {
		config.LogLevel = "INFO"
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", r.advertiseAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve advertise address: %w", err)
	}

	transport, err := raft.NewTCPTransport(r.bindAddr, tcpAddr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create Raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(r.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	fsm := &raftFSM{}
	ra, err := raft.NewRaft(config, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("failed to create Raft: %w", err)
	}
	r.raft = ra

	hasExistingState := ra.LastIndex() > 0
	if !hasExistingState && r.bootstrap && len(r.peers) > 0 {
		servers := make([]raft.Server, 0, len(r.peers))
		for _, p := range r.peers {
			servers = append(servers, raft.Server{
				ID:       raft.ServerID(p),
				Address:  raft.ServerAddress(p),
				Suffrage: raft.Voter,
			})
		}
		future := ra.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			klog.ErrorS(err, "Raft bootstrap failed")
		} else if err == nil {
			klog.InfoS("Bootstrapped Raft cluster", "servers", len(servers))
		}
	} else if r.debug {
		klog.InfoS("Not bootstrapping", "hasExistingState", hasExistingState, "bootstrap", r.bootstrap)
	}

	go r.forwardLeadership(ctx)
	return nil
}

// forwardLeadership relays raft's own leadership-change channel onto
// LeaderCh, so callers never need to poll IsLeader on a timer.
func (r *RaftStrategy) forwardLeadership(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case isLeader, ok := <-r.raft.LeaderCh():
			if !ok {
				return
			}
			if r.debug {
				klog.InfoS("Raft leadership changed", "isLeader", isLeader)
			}
			select {
			case r.ch <- isLeader:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RaftStrategy) Stop() error {
	if r.raft == nil {
		return nil
	}
	if r.debug {
		klog.Info("Shutting down Raft")
	}
	return r.raft.Shutdown().Error()
}

func (r *RaftStrategy) IsLeader() bool {
	return r.raft != nil && r.raft.State() == raft.Leader
}

func (r *RaftStrategy) LeaderAddr() string {
	if r.raft == nil {
		return ""
	}
	addr, _ := r.raft.LeaderWithID()
	return string(addr)
}

func (r *RaftStrategy) LeaderCh() <-chan bool { return r.ch }

func (r *RaftStrategy) Name() string { return "raft" }

// raftFSM has nothing to apply: leadership itself is the only state this
// election strategy cares about. The log exists to give Raft a consensus
// primitive to run elections over, not to replicate coordinator state.
type raftFSM struct{}

func (f *raftFSM) Apply(log *raft.Log) interface{}     { return nil }
func (f *raftFSM) Snapshot() (raft.FSMSnapshot, error) { return &raftFSMSnapshot{}, nil }
func (f *raftFSM) Restore(snapshot io.ReadCloser) error { return nil }

type raftFSMSnapshot struct{}

func (f *raftFSMSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Cancel() }
func (f *raftFSMSnapshot) Release()                             {}
