package events

const (
	TopicConnStatus     = "conn.status"
	TopicTelemetryFrame = "telemetry.frame"
	TopicTelemetryAck   = "telemetry.ack"
	TopicDiscovery      = "discovery.result"
	TopicCommandSent    = "command.sent"
)
