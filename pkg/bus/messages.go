package bus

// Outbound payloads (spec.md §6, "Bus messages published by coordinator").

// InvalidatePayload is published on the "invalidate" routing key when the
// coordinator enters PAUSED.
type InvalidatePayload struct {
	Token int64 `json:"token"`
}

// ReconfigurePayload is published on the "reconfigure" routing key after a
// switch completes, or to reconfirm the current master.
type ReconfigurePayload struct {
	Server string `json:"server"`
	Token  int64  `json:"token"`
}

// SystemNotificationPayload is published on "system_notification" for
// unknown-client reports, failed switches, and persistence warnings.
type SystemNotificationPayload struct {
	Message string `json:"message"`
}

// Inbound payloads (spec.md §6, "Bus messages consumed").

// PongPayload is consumed on the "pong" routing key.
type PongPayload struct {
	ID    string `json:"id"`
	Token int64  `json:"token"`
}

// ClientInvalidatedPayload is consumed on the "client_invalidated" routing
// key.
type ClientInvalidatedPayload struct {
	ID    string `json:"id"`
	Token int64  `json:"token"`
}

// ClientStartedPayload is consumed on the "client_started" routing key.
type ClientStartedPayload struct {
	ID string `json:"id"`
}

// HeartbeatPayload is consumed on the "heartbeat" routing key.
type HeartbeatPayload struct {
	ID string `json:"id"`
}

// Routing keys, named exactly as spec.md §6 lists them.
const (
	RoutingKeyInvalidate         = "invalidate"
	RoutingKeyReconfigure        = "reconfigure"
	RoutingKeySystemNotification = "system_notification"

	RoutingKeyPong              = "pong"
	RoutingKeyClientInvalidated = "client_invalidated"
	RoutingKeyClientStarted     = "client_started"
	RoutingKeyHeartbeat         = "heartbeat"
)
