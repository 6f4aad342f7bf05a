package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultConnectTimeout = 5 * time.Second
	readChunkSize         = 4096
)

// TCPTransport speaks the newline-delimited device protocol over a TCP
// socket. The endpoint may be swapped between connections (discovery
// publishes new targets), but never while a link is live.
type TCPTransport struct {
	mu   sync.Mutex
	host string
	port int
	conn net.Conn
	buf  lineBuffer

	writeMu sync.Mutex
}

func NewTCPTransport(host string, port int) *TCPTransport {
	return &TCPTransport{host: host, port: port}
}

func (t *TCPTransport) Name() string {
	return "tcp"
}

func (t *TCPTransport) SetEndpoint(host string, port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = host
	if port > 0 {
		t.port = port
	}
}

func (t *TCPTransport) StatusTarget() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *TCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("tcp", "target", t.lockedTarget())

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.host == "" {
		return errors.New("tcp host is empty")
	}

	dialer := net.Dialer{Timeout: defaultConnectTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	t.conn = conn
	t.buf.reset()
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.buf.reset()
	logger := transportLogger("tcp", "target", t.lockedTarget())
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

// ReadLine returns the next complete line. The ctx deadline bounds the
// poll: when it passes without a full line the call returns ErrNoData and
// any partial bytes stay buffered for the next call.
func (t *TCPTransport) ReadLine(ctx context.Context) ([]byte, error) {
	conn, err := t.currentConn()
	if err != nil {
		return nil, err
	}

	if line := t.bufferedLine(); line != nil {
		return line, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			t.mu.Lock()
			t.buf.append(chunk[:n])
			line := t.buf.next()
			t.mu.Unlock()
			if line != nil {
				return line, nil
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, ErrNoData
			}

			return nil, err
		}
	}
}

// ReadRaw returns the next chunk of bytes regardless of framing.
// Buffered bytes are handed out first; otherwise one read is performed
// bounded by the ctx deadline.
func (t *TCPTransport) ReadRaw(ctx context.Context) ([]byte, error) {
	conn, err := t.currentConn()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if data := t.buf.drain(); len(data) > 0 {
		t.mu.Unlock()

		return data, nil
	}
	t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	chunk := make([]byte, readChunkSize)
	n, err := conn.Read(chunk)
	if n > 0 {
		return chunk[:n], nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, ErrNoData
	}

	return nil, err
}

func (t *TCPTransport) WriteLine(ctx context.Context, payload []byte) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := conn.Write(terminateLine(payload)); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return nil
}

func (t *TCPTransport) bufferedLine() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.buf.next()
}

func (t *TCPTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func (t *TCPTransport) lockedTarget() string {
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func terminateLine(payload []byte) []byte {
	if len(payload) > 0 && payload[len(payload)-1] == '\n' {
		return payload
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	out = append(out, '\n')

	return out
}
