package redispool

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeHandle is a Handle test double; it never dials a real Redis.
type fakeHandle struct {
	addr     string
	role     Role
	follows  string
	probeErr error
	pingErr  error
	promoted bool
	followed string
}

func (f *fakeHandle) Address() string { return f.addr }
func (f *fakeHandle) Probe(ctx context.Context, timeout time.Duration) (ProbeResult, error) {
	if f.probeErr != nil {
		return ProbeResult{}, f.probeErr
	}
	return ProbeResult{Role: f.role, Follows: f.follows}, nil
}
func (f *fakeHandle) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeHandle) PromoteToMaster(ctx context.Context) error {
	f.promoted = true
	return nil
}
func (f *fakeHandle) Follow(ctx context.Context, master Handle) error {
	f.followed = master.Address()
	return nil
}
func (f *fakeHandle) Close() error { return nil }

func TestProberProbeClassifiesEachEndpoint(t *testing.T) {
	handles := []Handle{
		&fakeHandle{addr: "a:6379", role: RoleMaster},
		&fakeHandle{addr: "b:6379", role: RoleSlave},
		&fakeHandle{addr: "c:6379", probeErr: errors.New("timeout")},
	}

	p := NewProber(handles, time.Second)
	pool := p.Probe(context.Background())

	a, ok := pool.Find("a:6379")
	if !ok || a.Role != RoleMaster || !a.Available {
		t.Errorf("a:6379 = %+v, ok=%v, want master/available", a, ok)
	}
	b, ok := pool.Find("b:6379")
	if !ok || b.Role != RoleSlave || !b.Available {
		t.Errorf("b:6379 = %+v, ok=%v, want slave/available", b, ok)
	}
	c, ok := pool.Find("c:6379")
	if !ok || c.Role != RoleUnknown || c.Available {
		t.Errorf("c:6379 = %+v, ok=%v, want unknown/unavailable", c, ok)
	}
}

func TestPoolAutoDetectMaster(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []Endpoint
		wantOK    bool
		wantAddr  string
	}{
		{
			name: "exactly one master",
			endpoints: []Endpoint{
				{Address: "a", Role: RoleMaster, Available: true},
				{Address: "b", Role: RoleSlave, Available: true},
			},
			wantOK:   true,
			wantAddr: "a",
		},
		{
			name: "no master",
			endpoints: []Endpoint{
				{Address: "a", Role: RoleUnknown, Available: false},
			},
			wantOK: false,
		},
		{
			name: "multiple masters",
			endpoints: []Endpoint{
				{Address: "a", Role: RoleMaster, Available: true},
				{Address: "b", Role: RoleMaster, Available: true},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.endpoints)
			got, ok := pool.AutoDetectMaster()
			if ok != tt.wantOK {
				t.Fatalf("AutoDetectMaster() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Address != tt.wantAddr {
				t.Errorf("AutoDetectMaster() addr = %q, want %q", got.Address, tt.wantAddr)
			}
		})
	}
}

func TestProberProbeOneUnknownEndpoint(t *testing.T) {
	p := NewProber(nil, time.Second)
	if err := p.ProbeOne(context.Background(), "missing:6379"); err == nil {
		t.Error("expected error for unconfigured endpoint, got nil")
	}
}

func TestProberProbePreservesConfiguredOrder(t *testing.T) {
	handles := []Handle{
		&fakeHandle{addr: "c:6379", role: RoleSlave, follows: "a:6379"},
		&fakeHandle{addr: "a:6379", role: RoleMaster},
		&fakeHandle{addr: "b:6379", role: RoleSlave, follows: "a:6379"},
	}

	p := NewProber(handles, time.Second)
	for i := 0; i < 20; i++ {
		pool := p.Probe(context.Background())
		all := pool.All()
		if all[0].Address != "c:6379" || all[1].Address != "a:6379" || all[2].Address != "b:6379" {
			t.Fatalf("Probe() did not preserve configured order: %+v", all)
		}
	}
}

func TestPoolSlavesOfAndOtherMasters(t *testing.T) {
	pool := NewPool([]Endpoint{
		{Address: "a:6379", Role: RoleMaster, Available: true},
		{Address: "b:6379", Role: RoleSlave, Available: true, Follows: "a:6379"},
		{Address: "c:6379", Role: RoleSlave, Available: true, Follows: "a:6379"},
		{Address: "d:6379", Role: RoleSlave, Available: false, Follows: "a:6379"},
		{Address: "e:6379", Role: RoleMaster, Available: true},
	})

	slaves := pool.SlavesOf("a:6379")
	if len(slaves) != 2 || slaves[0].Address != "b:6379" || slaves[1].Address != "c:6379" {
		t.Errorf("SlavesOf(a) = %+v, want [b, c] (unreachable d excluded)", slaves)
	}

	others := pool.OtherMasters("a:6379")
	if len(others) != 1 || others[0].Address != "e:6379" {
		t.Errorf("OtherMasters(a) = %+v, want [e]", others)
	}
}
