package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/codec"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/queue"
	"github.com/xraph/chrono/scheduler"
)

// Compile-time interface checks.
var (
	_ scheduler.StateStore = (*Store)(nil)
	_ history.Store        = (*Store)(nil)
	_ queue.Journal        = (*Store)(nil)
	_ dlq.Store            = (*Store)(nil)
	_ chain.Store          = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCodec sets the codec for job inputs and outputs. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	codec  codec.Codec
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, codec: codec.JSON{}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("chrono/redis: ping: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

func (s *Store) encode(v any) ([]byte, error) {
	return codec.Encode(s.codec, v)
}

func (s *Store) wrap(data []byte) any {
	return codec.Wrap(s.codec, data)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
