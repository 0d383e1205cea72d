package matching

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StaleExpirer marks overdue rows as expired in the store.
type StaleExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, pendingTTL time.Duration) (int64, error)
}

// SweeperConfig controls the cadence of the expiry sweep.
type SweeperConfig struct {
	Interval   time.Duration
	PendingTTL time.Duration
}

// Sweeper periodically expires accepted sessions past their budget and
// pending requests nobody claimed. Clients already compute expiry locally
// from accepted_at; the sweep only keeps the store converged for late
// readers, so it is hardening rather than a correctness requirement.
type Sweeper struct {
	store  StaleExpirer
	cfg    SweeperConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// NowFunc lets tests pin the clock; nil means time.Now.
	NowFunc func() time.Time
}

// NewSweeper constructs and starts the background sweep loop.
func NewSweeper(store StaleExpirer, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go s.run()

	return s
}

// Shutdown stops the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Shutdown(ctx context.Context) error {
	s.once.Do(s.cancel)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	expired, err := s.store.ExpireStale(ctx, s.now(), s.cfg.PendingTTL)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("expired stale requests", "count", expired)
	}
}

func (s *Sweeper) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
