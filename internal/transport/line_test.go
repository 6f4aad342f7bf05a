package transport

import (
	"bytes"
	"testing"
)

func TestLineBufferExtractsCompleteLines(t *testing.T) {
	var buf lineBuffer
	buf.append([]byte("{\"temp\":20}\n{\"hum\":"))

	line := buf.next()
	if !bytes.Equal(line, []byte(`{"temp":20}`)) {
		t.Fatalf("unexpected first line: %q", line)
	}
	if line := buf.next(); line != nil {
		t.Fatalf("expected no complete line, got %q", line)
	}

	buf.append([]byte("50}\n"))
	line = buf.next()
	if !bytes.Equal(line, []byte(`{"hum":50}`)) {
		t.Fatalf("unexpected second line: %q", line)
	}
}

func TestLineBufferSkipsEmptyLinesAndCarriageReturns(t *testing.T) {
	var buf lineBuffer
	buf.append([]byte("\r\n\n{\"ack\":\"ping\"}\r\n"))

	line := buf.next()
	if !bytes.Equal(line, []byte(`{"ack":"ping"}`)) {
		t.Fatalf("unexpected line: %q", line)
	}
	if line := buf.next(); line != nil {
		t.Fatalf("expected buffer drained, got %q", line)
	}
}

func TestTerminateLine(t *testing.T) {
	if got := terminateLine([]byte("ping")); !bytes.Equal(got, []byte("ping\n")) {
		t.Fatalf("expected newline appended, got %q", got)
	}
	if got := terminateLine([]byte("ping\n")); !bytes.Equal(got, []byte("ping\n")) {
		t.Fatalf("expected payload unchanged, got %q", got)
	}
}
