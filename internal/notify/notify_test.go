package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"esplink/internal/bus"
	"esplink/internal/config"
	"esplink/internal/events"
)

type capturingSender struct {
	payloads chan Payload
}

func newCapturingSender() *capturingSender {
	return &capturingSender{payloads: make(chan Payload, 8)}
}

func (s *capturingSender) Send(payload Payload) {
	s.payloads <- payload
}

func (s *capturingSender) next(t *testing.T) Payload {
	t.Helper()

	select {
	case p := <-s.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")

		return Payload{}
	}
}

func (s *capturingSender) expectNone(t *testing.T) {
	t.Helper()

	select {
	case p := <-s.payloads:
		t.Fatalf("unexpected notification: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func startTestService(t *testing.T, enabled bool) (*capturingSender, bus.MessageBus) {
	t.Helper()

	messageBus := bus.New(slog.Default())

	cfg := config.Default()
	cfg.Notifications.ConnectionStatus = enabled

	sender := newCapturingSender()
	svc := NewService(messageBus, func() config.AppConfig { return cfg }, sender, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.Start(ctx)

	return sender, messageBus
}

func TestNotifiesOnStateTransition(t *testing.T) {
	sender, messageBus := startTestService(t, true)

	messageBus.Publish(events.TopicConnStatus, events.ConnStatus{
		State:         events.ConnectionStateConnected,
		TransportName: "tcp",
		Target:        "192.168.1.42:8088",
	})

	p := sender.next(t)
	if !strings.Contains(p.Title, "connected") || !strings.Contains(p.Title, "TCP") {
		t.Fatalf("title = %q, want transport and state", p.Title)
	}
	if p.Content != "192.168.1.42:8088" {
		t.Fatalf("content = %q, want target", p.Content)
	}
}

func TestDeduplicatesRepeatedState(t *testing.T) {
	sender, messageBus := startTestService(t, true)

	status := events.ConnStatus{State: events.ConnectionStateConnected, TransportName: "tcp", Target: "a:1"}
	messageBus.Publish(events.TopicConnStatus, status)
	messageBus.Publish(events.TopicConnStatus, status)

	sender.next(t)
	sender.expectNone(t)
}

func TestDisconnectedIncludesError(t *testing.T) {
	sender, messageBus := startTestService(t, true)

	messageBus.Publish(events.TopicConnStatus, events.ConnStatus{
		State:         events.ConnectionStateDisconnected,
		TransportName: "tcp",
		Target:        "192.168.1.42:8088",
		Err:           "peer closed connection",
	})

	p := sender.next(t)
	if !strings.Contains(p.Content, "peer closed connection") {
		t.Fatalf("content = %q, want error text", p.Content)
	}
}

func TestDisabledByConfig(t *testing.T) {
	sender, messageBus := startTestService(t, false)

	messageBus.Publish(events.TopicConnStatus, events.ConnStatus{
		State:         events.ConnectionStateConnected,
		TransportName: "tcp",
		Target:        "a:1",
	})

	sender.expectNone(t)
}

func TestConnectingStateIsSilent(t *testing.T) {
	sender, messageBus := startTestService(t, true)

	messageBus.Publish(events.TopicConnStatus, events.ConnStatus{
		State:         events.ConnectionStateConnecting,
		TransportName: "tcp",
	})

	sender.expectNone(t)
}
