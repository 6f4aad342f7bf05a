package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const serialReadTimeout = 300 * time.Millisecond

// SerialTransport speaks the same newline-delimited device protocol over
// a USB serial port, for devices attached directly instead of over LAN.
type SerialTransport struct {
	mu       sync.Mutex
	portName string
	baudRate int
	port     serial.Port
	buf      lineBuffer

	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.portName
}

func (t *SerialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.port != nil
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port
	t.buf.reset()
	transportLogger("serial", "port", t.portName).Info("opened", "baud", t.baudRate)

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.buf.reset()

	return err
}

// ReadLine polls the port until a complete line arrives or the ctx
// deadline passes. The port's own read timeout keeps each blocking read
// short so cancellation is observed promptly.
func (t *SerialTransport) ReadLine(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	if line := t.bufferedLine(); line != nil {
		return line, nil
	}

	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, ErrNoData
		}
		n, err := port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read serial: %w", err)
		}
		if n == 0 {
			// Port read timeout elapsed without data.
			continue
		}
		t.mu.Lock()
		t.buf.append(chunk[:n])
		line := t.buf.next()
		t.mu.Unlock()
		if line != nil {
			return line, nil
		}
	}
}

// ReadRaw returns the next chunk of bytes regardless of framing,
// draining buffered bytes first. The port's own read timeout keeps each
// blocking read short so the ctx deadline is observed promptly.
func (t *SerialTransport) ReadRaw(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if data := t.buf.drain(); len(data) > 0 {
		t.mu.Unlock()

		return data, nil
	}
	t.mu.Unlock()

	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, ErrNoData
		}
		n, err := port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read serial: %w", err)
		}
		if n == 0 {
			continue
		}
		out := make([]byte, n)
		copy(out, chunk[:n])

		return out, nil
	}
}

func (t *SerialTransport) WriteLine(ctx context.Context, payload []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame := terminateLine(payload)
	written := 0
	for written < len(frame) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("write serial: %w", err)
		}
		written += n
	}

	return nil
}

func (t *SerialTransport) bufferedLine() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.buf.next()
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}
