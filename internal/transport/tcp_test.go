package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	return ln, host, port
}

func TestTCPReadLineReassemblesSplitWrites(t *testing.T) {
	ln, host, port := startTestServer(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	peer := <-accepted
	defer func() { _ = peer.Close() }()

	if _, err := peer.Write([]byte(`{"temp":`)); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err := tr.ReadLine(ctx)
	cancel()
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData on partial line, got %v", err)
	}

	if _, err := peer.Write([]byte("21}\n")); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	line, err := tr.ReadLine(ctx)
	cancel()
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if !bytes.Equal(line, []byte(`{"temp":21}`)) {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestTCPReadLineReportsPeerClose(t *testing.T) {
	ln, host, port := startTestServer(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	peer := <-accepted
	_ = peer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.ReadLine(ctx)
	if err == nil || errors.Is(err, ErrNoData) {
		t.Fatalf("expected hard error on peer close, got %v", err)
	}
}

func TestTCPWriteLineAppendsNewline(t *testing.T) {
	ln, host, port := startTestServer(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	peer := <-accepted
	defer func() { _ = peer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.WriteLine(ctx, []byte("servo:90")); err != nil {
		t.Fatalf("write line: %v", err)
	}

	buf := make([]byte, 32)
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if string(buf[:n]) != "servo:90\n" {
		t.Fatalf("unexpected wire bytes: %q", buf[:n])
	}
}

func TestTCPReadRawReturnsUnframedBytes(t *testing.T) {
	ln, host, port := startTestServer(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	peer := <-accepted
	defer func() { _ = peer.Close() }()

	greeting := []byte(`{"hello":"esp32"}`)
	if _, err := peer.Write(greeting); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	raw, err := tr.ReadRaw(ctx)
	cancel()
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.Equal(raw, greeting) {
		t.Fatalf("unexpected raw bytes: %q", raw)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = tr.ReadRaw(ctx)
	cancel()
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData with idle peer, got %v", err)
	}
}

func TestTCPReadRawDrainsBufferedPartialLine(t *testing.T) {
	ln, host, port := startTestServer(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	peer := <-accepted
	defer func() { _ = peer.Close() }()

	if _, err := peer.Write([]byte("{\"temp\":20}\npartial")); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	line, err := tr.ReadLine(ctx)
	cancel()
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if !bytes.Equal(line, []byte(`{"temp":20}`)) {
		t.Fatalf("unexpected line: %q", line)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	raw, err := tr.ReadRaw(ctx)
	cancel()
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.Equal(raw, []byte("partial")) {
		t.Fatalf("expected buffered remainder, got %q", raw)
	}
}

func TestTCPWriteLineFailsOnCancelledContext(t *testing.T) {
	ln, host, port := startTestServer(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.WriteLine(ctx, []byte("ping")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTCPCloseIsIdempotent(t *testing.T) {
	ln, host, port := startTestServer(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	tr := NewTCPTransport(host, port)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if tr.Connected() {
		t.Fatalf("expected transport disconnected after close")
	}
	if _, err := tr.ReadLine(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestTCPConnectFailsWithoutHost(t *testing.T) {
	tr := NewTCPTransport("", 8088)
	if err := tr.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect error for empty host")
	}
}
