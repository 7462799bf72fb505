// Package pglock implements lock.Provider with PostgreSQL session-level
// advisory locks. Each held lock pins one pooled connection until release;
// if the holder dies the server drops the lock with the session.
package pglock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/chrono/lock"
)

const defaultPollInterval = 100 * time.Millisecond

// Option configures the Provider.
type Option func(*Provider)

// WithPollInterval sets how often a waiting acquirer retries.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.poll = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider is a PostgreSQL advisory lock provider.
type Provider struct {
	pool   *pgxpool.Pool
	poll   time.Duration
	logger *slog.Logger
}

var _ lock.Provider = (*Provider)(nil)

// New creates a provider on pool. The caller owns the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Provider {
	p := &Provider{pool: pool, poll: defaultPollInterval, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// TryAcquire implements lock.Provider. Keys are hashed to the 32-bit
// advisory lock space with hashtext.
func (p *Provider) TryAcquire(ctx context.Context, key string, timeout time.Duration) (lock.Handle, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("chrono/pglock: acquire connection: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
			conn.Release()
			return nil, fmt.Errorf("chrono/pglock: try lock %s: %w", key, err)
		}
		if ok {
			return &handle{conn: conn, key: key, logger: p.logger}, nil
		}
		if !time.Now().Add(p.poll).Before(deadline) {
			conn.Release()
			return nil, nil
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(p.poll):
		}
	}
}

type handle struct {
	conn   *pgxpool.Conn
	key    string
	logger *slog.Logger
	once   sync.Once
	err    error
}

func (h *handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		defer h.conn.Release()
		var ok bool
		if err := h.conn.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, h.key).Scan(&ok); err != nil {
			// Closing the session is the only other way to drop the lock.
			_ = h.conn.Conn().Close(context.WithoutCancel(ctx))
			h.err = fmt.Errorf("chrono/pglock: unlock %s: %w", h.key, err)
			return
		}
		if !ok {
			h.logger.Warn("pglock: advisory lock was not held at release", slog.String("key", h.key))
		}
	})
	return h.err
}
