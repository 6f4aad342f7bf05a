package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"esplink/internal/bus"
	"esplink/internal/discovery"
	"esplink/internal/events"
	"esplink/internal/telemetry"
	"esplink/internal/transport"
)

// HelloSignature must appear in the device's first message for the peer
// to be accepted as authentic.
const HelloSignature = `"hello":"esp32"`

const (
	defaultRetryInterval = 8 * time.Second
	connectTimeout       = 5 * time.Second
	handshakeTimeout     = time.Second
	handshakeReadBudget  = 256
	pollTimeout          = 200 * time.Millisecond
	idleWait             = 500 * time.Millisecond
	writeTimeout         = 5 * time.Second
)

// ErrNotConnected is returned by Send while no link is live.
var ErrNotConnected = errors.New("not connected")

// Discoverer locates a device on the subnet.
type Discoverer interface {
	Discover(ctx context.Context) (discovery.Endpoint, error)
}

// EndpointSaver persists the last verified device endpoint.
type EndpointSaver interface {
	SaveEndpoint(ctx context.Context, ep discovery.Endpoint) error
}

type endpointSetter interface {
	SetEndpoint(host string, port int)
}

// Config tunes the supervisor loops.
type Config struct {
	RetryInterval time.Duration
	AutoStart     bool
}

// Service owns the device link: it supervises reconnection, drains
// telemetry, and writes commands. All cross-component communication goes
// through the status store, the telemetry store, and the bus.
type Service struct {
	logger    *slog.Logger
	bus       bus.MessageBus
	transport transport.Transport
	status    *StatusStore
	store     *telemetry.Store
	cfg       Config

	scanner Discoverer
	saver   EndpointSaver

	mu     sync.Mutex
	gen    uint64
	live   bool
	target *discovery.Endpoint
	runCtx context.Context
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, status *StatusStore, store *telemetry.Store, cfg Config) *Service {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}

	return &Service{
		logger:    logger,
		bus:       b,
		transport: tr,
		status:    status,
		store:     store,
		cfg:       cfg,
	}
}

// SetScanner enables the rediscovery loop. Only meaningful for the TCP
// connector.
func (s *Service) SetScanner(d Discoverer) {
	s.scanner = d
}

// SetEndpointSaver enables persisting verified endpoints.
func (s *Service) SetEndpointSaver(sv EndpointSaver) {
	s.saver = sv
}

// SetTarget publishes a new target endpoint for the supervisor. The next
// supervisor tick attempts it; this call never opens the socket itself.
func (s *Service) SetTarget(ep discovery.Endpoint) {
	s.mu.Lock()
	s.target = &ep
	s.mu.Unlock()

	if setter, ok := s.transport.(endpointSetter); ok {
		setter.SetEndpoint(ep.IP, ep.Port)
	}
	s.status.Replace(Status{IP: ep.IP, Port: ep.Port, LastError: "not yet connected"})
	s.publishConnStatus(events.ConnectionStateDisconnected, errors.New("not yet connected"))
	s.logger.Info("target endpoint set", "endpoint", ep.String())
}

func (s *Service) Target() (discovery.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return discovery.Endpoint{}, false
	}

	return *s.target, true
}

func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.live
}

// Start launches the supervisor, reader, and (when a scanner is set)
// rediscovery loops. They run until ctx is cancelled; every failure is
// absorbed and retried, nothing is fatal.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	go s.runSupervisor(ctx)
	go s.runReader(ctx)
	if s.scanner != nil {
		go s.runRediscovery(ctx)
	}
}

func (s *Service) runSupervisor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		if !s.Connected() {
			s.attemptConnect(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// attemptConnect performs one connect + handshake cycle. Failures are
// recorded and retried on the next tick, never escalated.
func (s *Service) attemptConnect(ctx context.Context) {
	ep, ok := s.Target()
	if !ok {
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := s.transport.Connect(connectCtx)
	cancel()
	if err != nil {
		s.recordAttemptFailure(ep, err)

		return
	}

	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	verified := s.verifyGreeting(hsCtx)
	cancel()
	if !verified {
		_ = s.transport.Close()
		s.recordAttemptFailure(ep, errors.New("handshake failed (not esp32)"))

		return
	}

	s.mu.Lock()
	s.gen++
	s.live = true
	s.mu.Unlock()

	s.status.Replace(Status{Connected: true, IP: ep.IP, Port: ep.Port})
	s.publishConnStatus(events.ConnectionStateConnected, nil)
	s.logger.Info("device connected", "endpoint", ep.String(), "transport", s.transport.Name())

	if s.saver != nil {
		saveCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		if err := s.saver.SaveEndpoint(saveCtx, ep); err != nil {
			s.logger.Warn("persist endpoint failed", "error", err)
		}
		cancel()
	}

	// One-shot startup command, re-armed on every fresh connection.
	if s.cfg.AutoStart {
		if _, err := s.Send(Command{Kind: KindStart}); err != nil {
			s.logger.Warn("auto start failed", "error", err)
		} else {
			s.logger.Info("auto start sent")
		}
	}
}

// verifyGreeting accumulates raw bytes until they contain the hello
// signature, the byte budget fills, or the window elapses. The device is
// not required to newline-terminate or frame its greeting; whatever is
// read here is discarded from the line stream.
func (s *Service) verifyGreeting(ctx context.Context) bool {
	greeting := make([]byte, 0, handshakeReadBudget)
	for len(greeting) < handshakeReadBudget {
		chunk, err := s.transport.ReadRaw(ctx)
		if err != nil {
			return false
		}
		greeting = append(greeting, chunk...)
		if bytes.Contains(greeting, []byte(HelloSignature)) {
			return true
		}
	}

	return false
}

func (s *Service) recordAttemptFailure(ep discovery.Endpoint, cause error) {
	s.status.Replace(Status{IP: ep.IP, Port: ep.Port, LastError: cause.Error()})
	s.publishConnStatus(events.ConnectionStateDisconnected, cause)
	s.logger.Warn("connect attempt failed", "endpoint", ep.String(), "error", cause)
}

func (s *Service) runReader(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		gen, live := s.gen, s.live
		s.mu.Unlock()
		if !live {
			sleepWithContext(ctx, idleWait)

			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, pollTimeout)
		line, err := s.transport.ReadLine(readCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrNoData):
			case errors.Is(err, transport.ErrNotConnected):
				sleepWithContext(ctx, idleWait)
			case errors.Is(err, io.EOF):
				s.fail(gen, errors.New("peer closed"))
			default:
				s.fail(gen, err)
			}

			continue
		}

		s.handleLine(line)
	}
}

// handleLine classifies one device frame. Malformed lines are dropped
// without surfacing an error.
func (s *Service) handleLine(line []byte) {
	kind, fields := telemetry.Decode(line)
	switch kind {
	case telemetry.FrameAck:
		s.store.SetAck(fields)
		s.bus.Publish(events.TopicTelemetryAck, events.AckFrame{Fields: fields})
	case telemetry.FrameTelemetry:
		s.store.Merge(fields)
		s.bus.Publish(events.TopicTelemetryFrame, events.TelemetryFrame{Fields: fields})
	default:
		s.logger.Debug("malformed frame dropped", "len", len(line))
	}
}

func (s *Service) runRediscovery(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		if _, haveTarget := s.Target(); !haveTarget && !s.Connected() {
			if ep, err := s.scanner.Discover(ctx); err == nil {
				s.SetTarget(ep)
				s.bus.Publish(events.TopicDiscovery, events.DiscoveryResult{IP: ep.IP, Port: ep.Port})
			} else if !errors.Is(err, discovery.ErrNotFound) && ctx.Err() == nil {
				s.logger.Warn("discovery failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Send validates cmd, writes it through the live link, and returns the
// wire string. There is no internal retry; callers decide their own
// retry policy. A write failure tears the connection down atomically
// before the error is returned.
func (s *Service) Send(cmd Command) (string, error) {
	wire, err := Encode(cmd)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	gen, live := s.gen, s.live
	base := s.runCtx
	s.mu.Unlock()
	if !live {
		return "", ErrNotConnected
	}
	if base == nil {
		base = context.Background()
	}

	// Bound the write by the service lifetime so a send racing shutdown
	// fails promptly instead of waiting out the write timeout.
	ctx, cancel := context.WithTimeout(base, writeTimeout)
	defer cancel()
	if err := s.transport.WriteLine(ctx, []byte(wire)); err != nil {
		s.fail(gen, err)

		return "", fmt.Errorf("send %q: %w", wire, err)
	}

	s.bus.Publish(events.TopicCommandSent, events.CommandSent{Wire: wire})
	s.logger.Debug("command sent", "wire", wire)

	return wire, nil
}

// fail converts a detected link failure into NotConnected exactly once
// per connection generation: close, then publish, under a CAS on gen so
// a racing reader and sender can neither double-close nor resurrect a
// superseded connection.
func (s *Service) fail(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen || !s.live {
		s.mu.Unlock()

		return
	}
	s.live = false
	s.mu.Unlock()

	_ = s.transport.Close()

	ep, _ := s.Target()
	s.status.Replace(Status{IP: ep.IP, Port: ep.Port, LastError: cause.Error()})
	s.publishConnStatus(events.ConnectionStateDisconnected, cause)
	s.logger.Warn("device link lost", "endpoint", ep.String(), "error", cause)
}

func (s *Service) publishConnStatus(state events.ConnectionState, err error) {
	status := events.ConnStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(events.TopicConnStatus, status)
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
