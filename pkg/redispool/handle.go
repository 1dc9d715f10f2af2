// Package redispool classifies a configured set of Redis instances by role
// and reachability, and drives promotion/replication once the coordinator
// has decided on a new master.
package redispool

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"k8s.io/klog/v2"
)

// Role is the classification a probe assigns to a Redis endpoint.
type Role string

const (
	RoleMaster  Role = "master"
	RoleSlave   Role = "slave"
	RoleUnknown Role = "unknown"
)

// ProbeResult is the classification a single probe cycle assigns an
// endpoint. Follows is only meaningful when Role is RoleSlave: it names the
// host:port of the master this endpoint currently replicates from, used by
// the master switch to find "a slave of the now-demoted old master"
// (spec.md §4.5.4).
type ProbeResult struct {
	Role    Role
	Follows string
}

// Handle is the small duck-typed interface the coordinator drives against a
// single Redis instance, mirroring the source's "anything answering
// role/server/available?" object.
type Handle interface {
	// Address returns the host:port this handle targets.
	Address() string
	// Probe classifies the endpoint's current role within timeout and, if
	// the role is slave, the address of the master it currently replicates
	// from. A timeout or connection error yields a zero Result and a
	// non-nil error; the caller treats that as unreachable, never fatal.
	Probe(ctx context.Context, timeout time.Duration) (ProbeResult, error)
	// Ping is a cheap liveness check used by the master watcher.
	Ping(ctx context.Context) error
	// PromoteToMaster issues REPLICAOF NO ONE.
	PromoteToMaster(ctx context.Context) error
	// Follow configures this endpoint as a replica of master.
	Follow(ctx context.Context, master Handle) error
	// Close releases the underlying connection.
	Close() error
}

// client wraps a single go-redis connection as a Handle.
type client struct {
	addr string
	host string
	port int
	rdb  *redis.Client
}

// NewHandle dials addr (host:port) and returns a Handle. Dialing does not
// probe the role; call Probe for that.
func NewHandle(addr, password string, useTLS bool) (Handle, error) {
	host, portStr, err := splitAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("redispool: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redispool: invalid port in %q: %w", addr, err)
	}

	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &client{
		addr: addr,
		host: host,
		port: port,
		rdb:  redis.NewClient(opts),
	}, nil
}

func splitAddr(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing port")
	}
	return addr[:idx], addr[idx+1:], nil
}

func (c *client) Address() string { return c.addr }

func (c *client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *client) Probe(ctx context.Context, timeout time.Duration) (ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := c.rdb.Info(probeCtx, "replication").Result()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("redispool: probe %s: %w", c.addr, err)
	}

	result, err := parseReplicationInfo(info)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("redispool: probe %s: %w", c.addr, err)
	}
	return result, nil
}

// parseReplicationInfo extracts role and, for a slave, the master it
// follows from a Redis "INFO replication" reply. It reads only the fields
// the coordinator needs (role, master_host, master_port); connected slave
// counts and link status are left to the peripheral monitoring the source
// system already has, per spec.md §4.2.
func parseReplicationInfo(info string) (ProbeResult, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(info, "\r\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	switch fields["role"] {
	case "master":
		return ProbeResult{Role: RoleMaster}, nil
	case "slave":
		host := fields["master_host"]
		port := fields["master_port"]
		var follows string
		if host != "" && port != "" {
			follows = host + ":" + port
		}
		return ProbeResult{Role: RoleSlave, Follows: follows}, nil
	default:
		return ProbeResult{}, fmt.Errorf("could not parse role from replication info")
	}
}

func (c *client) PromoteToMaster(ctx context.Context) error {
	klog.InfoS("Promoting redis to master", "addr", c.addr)
	if err := c.rdb.Do(ctx, "REPLICAOF", "NO", "ONE").Err(); err != nil {
		return fmt.Errorf("redispool: promote %s: %w", c.addr, err)
	}
	return nil
}

func (c *client) Follow(ctx context.Context, master Handle) error {
	host, port, err := splitAddr(master.Address())
	if err != nil {
		return fmt.Errorf("redispool: follow target %q: %w", master.Address(), err)
	}
	klog.InfoS("Configuring replica", "addr", c.addr, "master", master.Address())
	if err := c.rdb.Do(ctx, "REPLICAOF", host, port).Err(); err != nil {
		return fmt.Errorf("redispool: follow %s -> %s: %w", c.addr, master.Address(), err)
	}
	return nil
}

func (c *client) Close() error {
	return c.rdb.Close()
}
