package recognition

import (
	"log/slog"
	"sync"
	"time"

	"esplink/internal/device"
)

const (
	defaultThreshold = 0.8
	defaultHold      = 2 * time.Second
)

// Starter is the slice of the device service the gate needs.
type Starter interface {
	Send(cmd device.Command) (string, error)
}

// StartGate turns a stream of recognition confidences into at most one
// start command per sighting. The gate fires after the confidence stays
// above the threshold for the hold duration and re-arms only once the
// confidence drops below the threshold again, so a subject standing in
// front of the camera does not restart the device every frame.
type StartGate struct {
	logger    *slog.Logger
	starter   Starter
	threshold float64
	hold      time.Duration
	now       func() time.Time

	mu    sync.Mutex
	since time.Time // zero while below threshold
	fired bool
}

func NewStartGate(logger *slog.Logger, starter Starter) *StartGate {
	return &StartGate{
		logger:    logger.With("component", "recognition"),
		starter:   starter,
		threshold: defaultThreshold,
		hold:      defaultHold,
		now:       time.Now,
	}
}

// Observe feeds one confidence sample into the gate. It reports whether
// this sample fired the start command.
func (g *StartGate) Observe(confidence float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if confidence <= g.threshold {
		g.since = time.Time{}
		g.fired = false

		return false
	}

	now := g.now()
	if g.since.IsZero() {
		g.since = now
	}
	if g.fired || now.Sub(g.since) < g.hold {
		return false
	}

	if _, err := g.starter.Send(device.Command{Kind: device.KindStart}); err != nil {
		// Stay armed so the next sample retries while the subject is
		// still in frame.
		g.logger.Warn("start trigger failed", "error", err)

		return false
	}

	g.fired = true
	g.logger.Info("recognition start fired", "confidence", confidence)

	return true
}
