package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
	"github.com/AdwelloTech/MathMentor-sub000/internal/repositories"
)

// StatusReader performs the authoritative read the poller reconciles against.
type StatusReader interface {
	Status(ctx context.Context, requestID string) (models.InstantRequest, error)
}

// DefaultPollInterval is the reconciliation cadence. Push delivery can fail
// silently, so every unresolved session converges within one interval.
const DefaultPollInterval = 3 * time.Second

// Poller periodically re-reads the authoritative record and feeds it through
// the machine's Apply merge, the same function the push path uses. It runs
// regardless of push-channel health and stops on terminal state.
type Poller struct {
	reader   StatusReader
	machine  *Machine
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller constructs a poller for one machine.
func NewPoller(reader StatusReader, machine *Machine, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{reader: reader, machine: machine, interval: interval, logger: logger}
}

// Run blocks until the session reaches a terminal state or ctx is cancelled.
// Each tick also re-evaluates local expiry so an accepted session flips to
// expired on time even when the store is unreachable.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if state := p.poll(ctx); state.Terminal() {
				return
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) State {
	if state := p.machine.ExpireIfDue(ctx); state.Terminal() {
		return state
	}

	requestID := p.machine.Snapshot().RequestID
	if requestID == "" {
		return p.machine.State()
	}

	record, err := p.reader.Status(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return p.machine.ApplyNotFound(ctx)
		}
		// Transient read failure: keep the last known state and retry
		// on the next tick.
		p.logger.Warn("reconciliation poll failed", "requestId", requestID, "error", err)
		return p.machine.State()
	}

	return p.machine.Apply(ctx, record)
}

// Listen drains a fabric subscription into the machine until the
// subscription closes or ctx is cancelled. Push and poll feed the same merge,
// so running both concurrently is safe.
func Listen(ctx context.Context, sub *notify.Subscription, machine *Machine) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			machine.ApplyEvent(ctx, event)
		}
	}
}
