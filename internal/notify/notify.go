package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"

	"esplink/internal/app"
	"esplink/internal/bus"
	"esplink/internal/config"
	"esplink/internal/events"
)

// Payload is a generic user-facing notification payload.
type Payload struct {
	Title   string
	Content string
}

// Sender sends notifications using a platform-specific backend.
type Sender interface {
	Send(payload Payload)
}

// BeeepSender delivers notifications through the desktop notification
// daemon.
type BeeepSender struct {
	logger *slog.Logger
}

func NewBeeepSender(logger *slog.Logger) *BeeepSender {
	return &BeeepSender{logger: logger}
}

func (s *BeeepSender) Send(payload Payload) {
	if err := beeep.Notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Debug("desktop notification failed", "error", err)
	}
}

// Service listens to connection-status events and emits user-facing
// notifications on transitions.
type Service struct {
	bus           bus.MessageBus
	currentConfig func() config.AppConfig
	sender        Sender
	logger        *slog.Logger

	mu           sync.Mutex
	lastState    events.ConnectionState
	lastStateSet bool
}

func NewService(messageBus bus.MessageBus, currentConfig func() config.AppConfig, sender Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default().With("component", "notify")
	}

	return &Service{
		bus:           messageBus,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	connSub := s.bus.Subscribe(events.TopicConnStatus)

	go func() {
		defer s.bus.Unsubscribe(connSub, events.TopicConnStatus)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(events.ConnStatus)
				if !ok {
					continue
				}
				s.handleConnectionStatus(status)
			}
		}
	}()
}

func (s *Service) handleConnectionStatus(status events.ConnStatus) {
	if status.State == "" {
		return
	}

	s.mu.Lock()
	if s.lastStateSet && s.lastState == status.State {
		s.mu.Unlock()

		return
	}
	s.lastState = status.State
	s.lastStateSet = true
	s.mu.Unlock()

	if status.State != events.ConnectionStateConnected &&
		status.State != events.ConnectionStateDisconnected {
		return
	}
	if !s.enabled() {
		return
	}

	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if status.State == events.ConnectionStateDisconnected {
		if errText := strings.TrimSpace(status.Err); errText != "" {
			details = fmt.Sprintf("%s (error: %s)", details, errText)
		}
	}

	s.send(Payload{
		Title:   fmt.Sprintf("%s - %s - %s", app.Name, transportName(status.TransportName), status.State),
		Content: details,
	})
}

func (s *Service) enabled() bool {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications.ConnectionStatus
}

func (s *Service) send(notification Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(Payload{
		Title:   title,
		Content: content,
	})
}

func transportName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tcp":
		return "TCP"
	case "serial":
		return "Serial"
	default:
		return strings.TrimSpace(name)
	}
}
