// Package redislock implements lock.Provider on Redis. A lock is a key set
// with SET NX PX and a random token; release deletes the key only when the
// token still matches. Given several independent Redis nodes, a lock counts
// as held once a majority accepted it (the redlock quorum).
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	locks := redislock.New([]redis.Cmdable{client})
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/lock"
)

const (
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	keyPrefix         = "chrono:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option configures the Provider.
type Option func(*Provider)

// WithTTL sets how long a lock survives a holder that never releases it.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithRetryDelay sets the pause between acquisition rounds.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Provider) { p.retryDelay = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider is a Redis-backed lock.Provider.
type Provider struct {
	clients    []redis.Cmdable
	quorum     int
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ lock.Provider = (*Provider)(nil)

// New creates a provider over one or more independent Redis nodes. The
// caller owns the clients.
func New(clients []redis.Cmdable, opts ...Option) *Provider {
	p := &Provider{
		clients:    clients,
		quorum:     len(clients)/2 + 1,
		ttl:        defaultTTL,
		retryDelay: defaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// TryAcquire implements lock.Provider.
func (p *Provider) TryAcquire(ctx context.Context, key string, timeout time.Duration) (lock.Handle, error) {
	if len(p.clients) == 0 {
		return nil, fmt.Errorf("chrono/redislock: no redis clients configured")
	}
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("chrono/redislock: token: %w", err)
	}
	rkey := keyPrefix + key
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		start := time.Now()
		n, err := p.lockAll(ctx, rkey, token)
		if err != nil {
			lastErr = err
		}

		// The lease is only useful if we still have most of it left.
		validity := p.ttl - time.Since(start)
		if n >= p.quorum && validity > 0 {
			return &handle{p: p, key: rkey, token: token}, nil
		}
		p.unlockAll(context.WithoutCancel(ctx), rkey, token)

		if !time.Now().Add(p.retryDelay).Before(deadline) {
			if n == 0 && lastErr != nil {
				return nil, lastErr
			}
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
}

func (p *Provider) lockAll(ctx context.Context, key, token string) (int, error) {
	var (
		n       int
		lastErr error
	)
	for _, c := range p.clients {
		ok, err := c.SetNX(ctx, key, token, p.ttl).Result()
		if err != nil {
			p.logger.Warn("redislock: node set failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			lastErr = fmt.Errorf("chrono/redislock: acquire %s: %w", key, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, lastErr
}

func (p *Provider) unlockAll(ctx context.Context, key, token string) {
	for _, c := range p.clients {
		if err := releaseScript.Run(ctx, c, []string{key}, token).Err(); err != nil {
			p.logger.Warn("redislock: node release failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

type handle struct {
	p     *Provider
	key   string
	token string
	once  sync.Once
}

func (h *handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.p.unlockAll(ctx, h.key, h.token)
	})
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
