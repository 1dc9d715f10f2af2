package coordinator

import "fmt"

// ConfigurationError is fatal at startup: the coordinator was not given
// enough Redis endpoints to ever select a master from.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("coordinator: configuration error: %s", e.Reason)
}

// NoRedisMasterError is fatal at startup: the master file was empty and
// auto-detect could not find exactly one master among the configured
// endpoints.
type NoRedisMasterError struct {
	MasterCount int
}

func (e *NoRedisMasterError) Error() string {
	return fmt.Sprintf("coordinator: no redis master: auto-detect found %d master endpoints, want exactly 1", e.MasterCount)
}

// ProbeFailure wraps a Redis probe error. It is always recoverable: the
// affected endpoint is marked unknown and the cycle continues.
type ProbeFailure struct {
	Address string
	Err     error
}

func (e *ProbeFailure) Error() string {
	return fmt.Sprintf("coordinator: probe %s failed: %v", e.Address, e.Err)
}

func (e *ProbeFailure) Unwrap() error { return e.Err }

// BusPublishFailure wraps a publish error. It is logged and the coordinator
// continues; the next round implicitly retries the publish.
type BusPublishFailure struct {
	RoutingKey string
	Err        error
}

func (e *BusPublishFailure) Error() string {
	return fmt.Sprintf("coordinator: publish %s failed: %v", e.RoutingKey, e.Err)
}

func (e *BusPublishFailure) Unwrap() error { return e.Err }

// PersistenceFailure wraps a master file write error. The switch still
// proceeds in memory; this is surfaced as a system_notification, not a
// fatal error.
type PersistenceFailure struct {
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("coordinator: master file write failed: %v", e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
