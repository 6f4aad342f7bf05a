package telemetry

import "encoding/json"

// ackKey marks a device frame as a command acknowledgment.
const ackKey = "ack"

// FrameKind classifies a decoded device line.
type FrameKind int

const (
	FrameInvalid FrameKind = iota
	FrameTelemetry
	FrameAck
)

// Decode parses one newline-delimited device line. The field set is
// open-ended: whatever keys the device sends are merged as-is. Malformed
// lines decode as FrameInvalid and are dropped by the caller.
func Decode(line []byte) (FrameKind, map[string]any) {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return FrameInvalid, nil
	}
	if fields == nil {
		return FrameInvalid, nil
	}
	if _, ok := fields[ackKey]; ok {
		return FrameAck, fields
	}

	return FrameTelemetry, fields
}
