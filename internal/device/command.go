package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Command kinds understood by the device. "led" is a compatibility alias
// for the first light, kept for callers of the legacy two-state firmware.
const (
	KindLight = "light"
	KindLED   = "led"
	KindFan   = "fan"
	KindDoor  = "door"
	KindServo = "servo"
	KindStart = "start"
	KindPing  = "ping"
	KindRaw   = "raw"
)

const (
	servoMin = 0
	servoMax = 180
)

// Command is a transient request from a collaborator; it is validated and
// serialized by Encode and never retained.
type Command struct {
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
	Index int    `json:"index,omitempty"`
}

// Encode validates the command and maps it to its wire string. Invalid
// values fail here and never reach the socket.
func Encode(cmd Command) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(cmd.Kind))

	switch kind {
	case KindLight:
		if cmd.Index < 1 || cmd.Index > 3 {
			return "", fmt.Errorf("invalid light index: %d", cmd.Index)
		}
		state, err := onOffState(cmd.Value)
		if err != nil {
			return "", fmt.Errorf("invalid light state: %v", cmd.Value)
		}

		return fmt.Sprintf("light%d:%s", cmd.Index, state), nil

	case KindLED:
		state, err := onOffState(cmd.Value)
		if err != nil {
			return "", fmt.Errorf("invalid led state: %v", cmd.Value)
		}

		return "light1:" + state, nil

	case KindFan:
		state, err := onOffState(cmd.Value)
		if err != nil {
			return "", fmt.Errorf("invalid fan state: %v", cmd.Value)
		}

		return "fan:" + state, nil

	case KindDoor:
		state := normalizeState(cmd.Value)
		if state != "open" && state != "close" {
			return "", fmt.Errorf("invalid door state: %v", cmd.Value)
		}

		return "door:" + state, nil

	case KindServo:
		angle, err := parseAngle(cmd.Value)
		if err != nil {
			return "", fmt.Errorf("invalid servo angle: %v", cmd.Value)
		}
		if angle < servoMin {
			angle = servoMin
		}
		if angle > servoMax {
			angle = servoMax
		}

		return "servo:" + strconv.Itoa(angle), nil

	case KindStart:
		return "start", nil

	case KindPing:
		return "ping", nil

	case KindRaw:
		raw, ok := cmd.Value.(string)
		if !ok || strings.TrimSpace(raw) == "" {
			return "", fmt.Errorf("invalid raw command")
		}

		return raw, nil
	}

	return "", fmt.Errorf("unknown command: %q", cmd.Kind)
}

func normalizeState(value any) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
}

func onOffState(value any) (string, error) {
	state := normalizeState(value)
	if state != "on" && state != "off" {
		return "", fmt.Errorf("state must be on or off")
	}

	return state, nil
}

func parseAngle(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		angle, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}

		return angle, nil
	default:
		return 0, fmt.Errorf("angle is not numeric: %T", value)
	}
}
