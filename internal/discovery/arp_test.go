package discovery

import (
	"reflect"
	"testing"
)

func TestParseARPOutput(t *testing.T) {
	out := `? (192.168.1.1) at aa:bb:cc:dd:ee:01 [ether] on wlan0
? (192.168.1.42) at aa:bb:cc:dd:ee:02 [ether] on wlan0
? (192.168.1.42) at aa:bb:cc:dd:ee:02 [ether] on wlan0
? (10.0.0.5) at aa:bb:cc:dd:ee:03 [ether] on eth0
gateway (192.168.1.77) at <incomplete> on wlan0
no address on this line
`

	got := parseARPOutput(out, "192.168.1")
	want := []string{"192.168.1.42", "192.168.1.77"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseARPOutputEmpty(t *testing.T) {
	if got := parseARPOutput("", "192.168.1"); got != nil {
		t.Fatalf("expected no candidates, got %v", got)
	}
}
