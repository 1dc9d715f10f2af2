package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avosa/beetle/pkg/auth"
	"github.com/avosa/beetle/pkg/bus"
	"github.com/avosa/beetle/pkg/config"
	"github.com/avosa/beetle/pkg/coordinator"
	"github.com/avosa/beetle/pkg/discovery"
	"github.com/avosa/beetle/pkg/election"
	"github.com/avosa/beetle/pkg/masterfile"
	"github.com/avosa/beetle/pkg/redispool"
	"github.com/avosa/beetle/pkg/registry"
	"github.com/avosa/beetle/pkg/token"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
)

var version = "dev"

func main() {
	cfg := &config.Config{}
	var redisServersStr, clientIDsStr, electionMode, raftPeersStr string

	flag.StringVar(&redisServersStr, "redis-servers", "", "Comma-separated host:port list of Redis endpoints")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password (or use REDIS_PASSWORD env)")
	flag.BoolVar(&cfg.RedisTLS, "redis-tls", false, "Use TLS for Redis connections")
	flag.BoolVar(&cfg.RedisTLSSkipVerify, "redis-tls-skip-verify", false, "Has no effect: Redis TLS connections always verify certificates")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", 2*time.Second, "Per-endpoint Redis probe timeout")

	flag.StringVar(&clientIDsStr, "redis-configuration-client-ids", "", "Comma-separated expected client IDs")
	flag.IntVar(&cfg.MasterRetries, "redis-configuration-master-retries", 3, "Master watcher retry budget")
	flag.DurationVar(&cfg.WatcherInterval, "redis-watcher-interval", 5*time.Second, "Master watcher check interval")
	flag.DurationVar(&cfg.InvalidationTimeout, "redis-configuration-client-timeout", 10*time.Second, "Invalidation round timeout")
	flag.DurationVar(&cfg.ClientDeadThreshold, "client-dead-threshold", time.Minute, "Unresponsive client threshold")
	flag.IntVar(&cfg.UnknownClientCapacity, "unknown-client-capacity", 100, "Bounded capacity for unknown client tracking")
	flag.StringVar(&cfg.MasterFilePath, "master-file", "/var/lib/beetle/coordinator-master", "Path to the master file")

	flag.StringVar(&cfg.AMQPURL, "amqp-url", os.Getenv("AMQP_URL"), "AMQP broker URL")

	flag.StringVar(&electionMode, "election-mode", "single", "Election mode: single or raft")
	flag.StringVar(&cfg.RaftBindAddr, "raft-bind-addr", "", "Raft bind address (e.g., 0.0.0.0:7000)")
	flag.StringVar(&raftPeersStr, "raft-peers", "", "Comma-separated list of Raft peer addresses")
	flag.StringVar(&cfg.RaftDataDir, "raft-data-dir", "/var/lib/beetle/raft", "Directory for Raft data storage")
	flag.BoolVar(&cfg.RaftBootstrap, "raft-bootstrap", false, "Bootstrap the Raft cluster from raft-peers")

	flag.StringVar(&cfg.SharedSecret, "shared-secret", os.Getenv("SHARED_SECRET"), "Shared secret for peer authentication")

	flag.IntVar(&cfg.RedisPort, "redis-port", 6379, "Redis port used with Kubernetes discovery")
	flag.StringVar(&cfg.KubernetesLabelSelector, "kubernetes-label-selector", "", "Pod label selector for Redis endpoint discovery")
	flag.StringVar(&cfg.KubernetesNamespace, "kubernetes-namespace", os.Getenv("POD_NAMESPACE"), "Namespace to search for Kubernetes discovery")

	flag.StringVar(&cfg.ListenAddr, "listen-addr", ":8080", "HTTP listen address for the status endpoint")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg.RedisServers = config.SplitCSV(redisServersStr)
	cfg.ExpectedClientIDs = config.SplitCSV(clientIDsStr)
	cfg.ElectionMode = config.ElectionMode(electionMode)
	cfg.RaftPeers = config.SplitCSV(raftPeersStr)
	if envPass := os.Getenv("REDIS_PASSWORD"); envPass != "" && cfg.RedisPassword == "" {
		cfg.RedisPassword = envPass
	}

	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %v", err)
	}

	klog.InfoS("Starting Beetle redis coordinator", "version", version, "electionMode", cfg.ElectionMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		klog.InfoS("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisServers := cfg.RedisServers
	if cfg.KubernetesLabelSelector != "" {
		kubeConfig, err := rest.InClusterConfig()
		if err != nil {
			klog.Fatalf("Failed to create in-cluster config: %v", err)
		}
		clientset, err := kubernetes.NewForConfig(kubeConfig)
		if err != nil {
			klog.Fatalf("Failed to create Kubernetes client: %v", err)
		}
		disc := discovery.New(discovery.ClientsetLister{Clientset: clientset}, cfg.KubernetesNamespace, cfg.KubernetesLabelSelector, cfg.RedisPort)
		discovered, err := disc.Discover(ctx)
		if err != nil {
			klog.ErrorS(err, "Kubernetes endpoint discovery failed, continuing with static list")
		}
		redisServers = discovery.Merge(cfg.RedisServers, discovered)
	}

	handles := make([]redispool.Handle, 0, len(redisServers))
	for _, addr := range redisServers {
		h, err := redispool.NewHandle(addr, cfg.RedisPassword, cfg.RedisTLS)
		if err != nil {
			klog.Fatalf("Failed to create redis handle for %s: %v", addr, err)
		}
		handles = append(handles, h)
	}
	prober := redispool.NewProber(handles, cfg.ProbeTimeout)

	redisBus, err := bus.Dial(cfg.AMQPURL)
	if err != nil {
		klog.Fatalf("Failed to connect to message bus: %v", err)
	}
	defer redisBus.Close()

	mf := masterfile.New(cfg.MasterFilePath)
	mint := token.New()
	reg := registry.New(cfg.ExpectedClientIDs, cfg.UnknownClientCapacity)

	coord := coordinator.New(prober, redisBus, mf, mint, reg, cfg.WatcherInterval, cfg.MasterRetries, coordinator.Settings{
		InvalidationTimeout: cfg.InvalidationTimeout,
		ClientDeadThreshold: cfg.ClientDeadThreshold,
	})

	consumer, err := bus.NewConsumer(redisBus, coord)
	if err != nil {
		klog.Fatalf("Failed to set up message dispatcher: %v", err)
	}

	authenticator := auth.New(cfg.SharedSecret)
	strategy, err := buildElectionStrategy(cfg, authenticator)
	if err != nil {
		klog.Fatalf("Failed to build election strategy: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", authenticator.Middleware(func(w http.ResponseWriter, r *http.Request) {
		st, err := coord.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))
	if raftStrategy, ok := strategy.(*election.RaftStrategy); ok {
		mux.HandleFunc("/raft/status", authenticator.Middleware(raftStrategy.HandleRaftStatus))
		mux.HandleFunc("/raft/add-voter", authenticator.Middleware(raftStrategy.HandleAddVoter))
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "HTTP server exited")
		}
	}()

	if err := strategy.Start(ctx); err != nil {
		klog.Fatalf("Failed to start election strategy: %v", err)
	}

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			klog.ErrorS(err, "Message dispatcher exited")
		}
	}()

	runLeaderLoop(ctx, strategy, coord)

	httpServer.Shutdown(context.Background())
	strategy.Stop()
	klog.Info("Shutdown complete")
}

// runLeaderLoop starts and stops the coordinator's run loop as leadership
// is gained and lost, so exactly one process ever drives the state machine
// (spec.md §1's non-goal, enforced rather than assumed; SPEC_FULL.md §4.9).
func runLeaderLoop(ctx context.Context, strategy election.Strategy, coord *coordinator.Coordinator) {
	var runCancel context.CancelFunc
	stopRun := func() {
		if runCancel != nil {
			runCancel()
			runCancel = nil
		}
	}
	defer stopRun()

	for {
		select {
		case <-ctx.Done():
			return
		case isLeader := <-strategy.LeaderCh():
			if isLeader {
				var runCtx context.Context
				runCtx, runCancel = context.WithCancel(ctx)
				go func() {
					if err := coord.Run(runCtx); err != nil {
						klog.ErrorS(err, "Coordinator run loop exited")
					}
				}()
			} else {
				stopRun()
			}
		}
	}
}

func buildElectionStrategy(cfg *config.Config, authenticator *auth.Authenticator) (election.Strategy, error) {
	switch cfg.ElectionMode {
	case config.ElectionModeRaft:
		return election.NewRaftStrategy(cfg.RaftBindAddr, cfg.RaftBindAddr, "", cfg.RaftPeers, cfg.RaftDataDir, cfg.RaftBootstrap, cfg.Debug, authenticator), nil
	default:
		return election.NewSingleStrategy(cfg.Debug), nil
	}
}
