package events

import "time"

// ConnectionState describes the supervisor lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnStatus is a bus event snapshot of the current device link status.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// TelemetryFrame carries one telemetry fragment as received from the device.
type TelemetryFrame struct {
	Fields map[string]any
}

// AckFrame carries one command acknowledgment object as received.
type AckFrame struct {
	Fields map[string]any
}

// DiscoveryResult is published when the rediscovery loop verifies a device.
type DiscoveryResult struct {
	IP   string
	Port int
}

// CommandSent reports a wire string successfully written to the device.
type CommandSent struct {
	Wire string
}
