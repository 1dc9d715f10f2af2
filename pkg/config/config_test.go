package config

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}

	if len(cfg.RedisServers) != 0 {
		t.Errorf("Expected no RedisServers by default, got %v", cfg.RedisServers)
	}

	if cfg.RedisTLS != false {
		t.Error("Expected RedisTLS to be false by default")
	}

	if cfg.WatcherInterval != 0 {
		t.Errorf("Expected 0 WatcherInterval by default, got %v", cfg.WatcherInterval)
	}
}

func TestConfigWithValues(t *testing.T) {
	cfg := &Config{
		RedisServers:            []string{"a:6379", "b:6379"},
		RedisPassword:           "secret",
		RedisTLS:                true,
		WatcherInterval:         15 * time.Second,
		ExpectedClientIDs:       []string{"c1", "c2"},
		KubernetesNamespace:     "default",
		KubernetesLabelSelector: "app=redis",
	}

	if len(cfg.RedisServers) != 2 {
		t.Errorf("Expected 2 RedisServers, got %d", len(cfg.RedisServers))
	}

	if cfg.RedisPassword != "secret" {
		t.Errorf("Expected RedisPassword secret, got %s", cfg.RedisPassword)
	}

	if !cfg.RedisTLS {
		t.Error("Expected RedisTLS to be true")
	}

	if cfg.WatcherInterval != 15*time.Second {
		t.Errorf("Expected WatcherInterval 15s, got %v", cfg.WatcherInterval)
	}

	if cfg.KubernetesNamespace != "default" {
		t.Errorf("Expected Namespace default, got %s", cfg.KubernetesNamespace)
	}

	if cfg.KubernetesLabelSelector != "app=redis" {
		t.Errorf("Expected LabelSelector app=redis, got %s", cfg.KubernetesLabelSelector)
	}
}

func TestConfigPasswordHandling(t *testing.T) {
	tests := []struct {
		name     string
		password string
		isEmpty  bool
	}{
		{name: "with password", password: "mypassword", isEmpty: false},
		{name: "empty password", password: "", isEmpty: true},
		{name: "whitespace password", password: "   ", isEmpty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{RedisPassword: tt.password}

			isEmpty := cfg.RedisPassword == ""
			if isEmpty != tt.isEmpty {
				t.Errorf("Expected isEmpty=%v, got %v", tt.isEmpty, isEmpty)
			}
		})
	}
}

func TestValidateRequiresTwoRedisServers(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379"}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for fewer than 2 redis servers")
	}

	cfg = &Config{RedisServers: []string{"a:6379", "b:6379"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestValidateAllowsSingleServerWithKubernetesDiscovery(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379"}, KubernetesLabelSelector: "app=redis"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected no error when Kubernetes discovery is configured, got %v", err)
	}
}

func TestValidateDefaultsElectionMode(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379", "b:6379"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ElectionMode != ElectionModeSingle {
		t.Errorf("Expected default election mode %q, got %q", ElectionModeSingle, cfg.ElectionMode)
	}
}

func TestValidateRejectsUnknownElectionMode(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379", "b:6379"}, ElectionMode: "bogus"}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown election mode")
	}
}

func TestValidateRequiresRaftBindAddrInRaftMode(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379", "b:6379"}, ElectionMode: ElectionModeRaft}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for raft mode without bind address")
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{RedisServers: []string{"a:6379", "b:6379"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MasterRetries != 3 {
		t.Errorf("Expected default MasterRetries 3, got %d", cfg.MasterRetries)
	}
	if cfg.UnknownClientCapacity != 100 {
		t.Errorf("Expected default UnknownClientCapacity 100, got %d", cfg.UnknownClientCapacity)
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "a:6379", []string{"a:6379"}},
		{"multiple with spaces", "a:6379, b:6379 ,c:6379", []string{"a:6379", "b:6379", "c:6379"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCSV(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}
