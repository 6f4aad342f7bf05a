package device

import "testing"

func TestEncodeValidCommands(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want string
	}{
		{"light on", Command{Kind: "light", Value: "on", Index: 2}, "light2:on"},
		{"light off", Command{Kind: "light", Value: "OFF", Index: 3}, "light3:off"},
		{"led alias", Command{Kind: "led", Value: "on"}, "light1:on"},
		{"fan", Command{Kind: "fan", Value: "off"}, "fan:off"},
		{"door open", Command{Kind: "door", Value: "open"}, "door:open"},
		{"door close", Command{Kind: "door", Value: "close"}, "door:close"},
		{"servo", Command{Kind: "servo", Value: 90}, "servo:90"},
		{"servo float", Command{Kind: "servo", Value: 90.0}, "servo:90"},
		{"servo string", Command{Kind: "servo", Value: "45"}, "servo:45"},
		{"servo clamp high", Command{Kind: "servo", Value: 300}, "servo:180"},
		{"servo clamp low", Command{Kind: "servo", Value: -10}, "servo:0"},
		{"start", Command{Kind: "start"}, "start"},
		{"ping", Command{Kind: "PING"}, "ping"},
		{"raw", Command{Kind: "raw", Value: "debug:dump"}, "debug:dump"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.cmd)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEncodeRejectsInvalidCommands(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
	}{
		{"light index too high", Command{Kind: "light", Value: "on", Index: 4}},
		{"light index unset", Command{Kind: "light", Value: "on"}},
		{"light bad state", Command{Kind: "light", Value: "blink", Index: 1}},
		{"led bad state", Command{Kind: "led", Value: "dim"}},
		{"fan bad state", Command{Kind: "fan", Value: "fast"}},
		{"door bad state", Command{Kind: "door", Value: "ajar"}},
		{"servo non-numeric", Command{Kind: "servo", Value: "wide"}},
		{"servo nil", Command{Kind: "servo"}},
		{"raw empty", Command{Kind: "raw", Value: ""}},
		{"raw non-string", Command{Kind: "raw", Value: 7}},
		{"unknown kind", Command{Kind: "blastoff"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if wire, err := Encode(tc.cmd); err == nil {
				t.Fatalf("expected validation error, got wire %q", wire)
			}
		})
	}
}
