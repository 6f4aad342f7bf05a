package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Endpoint identifies a current or candidate device address.
type Endpoint struct {
	IP   string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// ErrNotFound reports that no candidate on the subnet answered with the
// device greeting.
var ErrNotFound = errors.New("no device found on subnet")

const (
	defaultProbeTimeout = 400 * time.Millisecond
	defaultWorkers      = 64
	probeReadBudget     = 256
)

// Scanner locates the device by probing subnet candidates for the
// greeting signature. Probe failures exclude a candidate and never fail
// the scan itself.
type Scanner struct {
	logger       *slog.Logger
	port         int
	probeTimeout time.Duration
	workers      int
	signature    []byte

	mu    sync.Mutex
	hints []Endpoint

	localIP func() (string, error)
	arp     func(ctx context.Context, prefix string) []string
}

func NewScanner(logger *slog.Logger, port int, probeTimeout time.Duration, workers int, signature string) *Scanner {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Scanner{
		logger:       logger,
		port:         port,
		probeTimeout: probeTimeout,
		workers:      workers,
		signature:    []byte(signature),
		localIP:      outboundIP,
		arp:          arpCandidates,
	}
}

// SetHints registers addresses probed before any subnet enumeration,
// e.g. the last verified endpoint from the cache.
func (s *Scanner) SetHints(hints []Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints = append([]Endpoint(nil), hints...)
}

// Discover probes subnet candidates concurrently and returns the first
// verified device address. Outstanding probes are cancelled once a match
// is confirmed.
func (s *Scanner) Discover(ctx context.Context) (Endpoint, error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return Endpoint{}, err
	}
	if len(candidates) == 0 {
		return Endpoint{}, ErrNotFound
	}
	s.logger.Info("scanning subnet", "candidates", len(candidates), "port", s.port, "workers", s.workers)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	found := make(chan string, 1)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range jobs {
				if scanCtx.Err() != nil {
					return
				}
				if s.probe(scanCtx, ip) {
					select {
					case found <- ip:
					default:
					}
					cancel()

					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ip := range candidates {
			select {
			case jobs <- ip:
			case <-scanCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	select {
	case ip := <-found:
		ep := Endpoint{IP: ip, Port: s.port}
		s.logger.Info("device verified", "endpoint", ep.String())

		return ep, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return Endpoint{}, err
	}
	s.logger.Info("no device found on subnet", "port", s.port)

	return Endpoint{}, ErrNotFound
}

// candidates builds the probe list: cached hints first, then ARP cache
// entries within the local prefix, then the remaining prefix hosts.
// The gateway address (.1) is excluded throughout.
func (s *Scanner) candidates(ctx context.Context) ([]string, error) {
	localIP, err := s.localIP()
	if err != nil {
		return nil, fmt.Errorf("resolve local ip: %w", err)
	}
	prefix, ok := subnetPrefix(localIP)
	if !ok {
		return nil, fmt.Errorf("unexpected local ip: %q", localIP)
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, 253)
	add := func(ip string) {
		if ip == "" || gatewayAddress(ip) {
			return
		}
		if _, dup := seen[ip]; dup {
			return
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}

	s.mu.Lock()
	hints := s.hints
	s.mu.Unlock()
	for _, hint := range hints {
		add(hint.IP)
	}
	for _, ip := range s.arp(ctx, prefix) {
		add(ip)
	}
	for i := 2; i <= 254; i++ {
		add(fmt.Sprintf("%s.%d", prefix, i))
	}

	return out, nil
}

// probe opens a TCP connection, reads up to a small byte budget, and
// checks for the greeting signature. Any error just means "not a match".
func (s *Scanner) probe(ctx context.Context, ip string) bool {
	dialer := net.Dialer{Timeout: s.probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(s.port)))
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(s.probeTimeout))
	buf := make([]byte, 0, probeReadBudget)
	chunk := make([]byte, probeReadBudget)
	for len(buf) < probeReadBudget {
		n, err := conn.Read(chunk[:probeReadBudget-len(buf)])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if bytes.Contains(buf, s.signature) {
				return true
			}
		}
		if err != nil {
			break
		}
	}

	return bytes.Contains(buf, s.signature)
}

func subnetPrefix(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return "", false
	}
	v4 := parsed.To4()

	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2]), true
}

func gatewayAddress(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	v4 := parsed.To4()
	if v4 == nil {
		return true
	}

	return v4[3] == 1
}
