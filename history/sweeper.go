package history

import (
	"context"
	"log/slog"
	"time"
)

// SweeperConfig bounds the log store.
type SweeperConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// MaxAge removes logs older than this. Zero keeps logs forever.
	MaxAge time.Duration
	// MaxPerJob keeps at most this many logs per job. Zero is unlimited.
	MaxPerJob int
}

// Sweeper periodically purges old execution logs.
type Sweeper struct {
	store  Store
	cfg    SweeperConfig
	logger *slog.Logger
	now    func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a Sweeper over store.
func NewSweeper(store Store, cfg SweeperConfig, opts ...SweeperOption) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	s := &Sweeper{store: store, cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps every Interval until ctx ends. Sweep errors are logged.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("history: retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one purge pass and returns how many logs were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	var total int64
	if s.cfg.MaxAge > 0 {
		n, err := s.store.PurgeLogsBefore(ctx, s.now().UTC().Add(-s.cfg.MaxAge))
		if err != nil {
			return total, err
		}
		total += n
	}
	if s.cfg.MaxPerJob > 0 {
		n, err := s.store.PurgeLogsOverLimit(ctx, s.cfg.MaxPerJob)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("history: purged execution logs", slog.Int64("removed", total))
	}
	return total, nil
}
