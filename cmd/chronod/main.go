// Command chronod runs a chrono engine with its HTTP control API and a
// Prometheus /metrics endpoint. Everything is configured from the
// environment (see chrono.Config); jobs are registered by embedding the
// engine in a program of your own, so the daemon only carries an optional
// heartbeat job.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/api"
	audithook "github.com/xraph/chrono/audit_hook"
	"github.com/xraph/chrono/codec"
	"github.com/xraph/chrono/engine"
	"github.com/xraph/chrono/job"
	"github.com/xraph/chrono/lock"
	"github.com/xraph/chrono/lock/pglock"
	"github.com/xraph/chrono/lock/redislock"
	"github.com/xraph/chrono/middleware"
	"github.com/xraph/chrono/observability"
	"github.com/xraph/chrono/store"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/store/postgres"
	redisstore "github.com/xraph/chrono/store/redis"
	"github.com/xraph/chrono/stream"
	"github.com/xraph/chrono/trigger"
)

// Exit codes.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitRuntimeError = 2
)

// daemonConfig holds settings that only matter to this binary.
type daemonConfig struct {
	// Heartbeat registers a job that logs a line at this interval. Zero
	// disables it.
	Heartbeat       time.Duration `env:"CHRONOD_HEARTBEAT"`
	ShutdownTimeout time.Duration `env:"CHRONOD_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MetricsPath     string        `env:"CHRONOD_METRICS_PATH" envDefault:"/metrics"`
	// Events serves lifecycle events as SSE under the API prefix.
	Events bool `env:"CHRONOD_EVENTS" envDefault:"true"`
	// Audit writes an audit line per lifecycle event to the log.
	Audit bool `env:"CHRONOD_AUDIT"`
	// BreakerFailures enables a per-job circuit breaker that opens after
	// this many consecutive errors. Zero disables it.
	BreakerFailures uint32        `env:"CHRONOD_BREAKER_FAILURES"`
	BreakerOpen     time.Duration `env:"CHRONOD_BREAKER_OPEN" envDefault:"30s"`
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := chrono.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronod: %v\n", err)
		return exitConfigError
	}
	dcfg, err := env.ParseAs[daemonConfig]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronod: parse daemon config: %v\n", err)
		return exitConfigError
	}
	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, dcfg, logger); err != nil {
		logger.Error("chronod: exiting", slog.String("error", err.Error()))
		return exitRuntimeError
	}
	return exitOK
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// serve runs the engine and the HTTP server until ctx ends.
func serve(ctx context.Context, cfg chrono.Config, dcfg daemonConfig, logger *slog.Logger) error {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engOpts := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithStore(b.store),
		engine.WithLocks(b.locks),
		engine.WithLogger(logger),
		engine.WithExtension(observability.NewPrometheusExtension(reg, logger)),
	}
	var apiOpts []api.Option
	if dcfg.Events {
		broker := stream.NewBroker(logger)
		engOpts = append(engOpts, engine.WithExtension(broker))
		apiOpts = append(apiOpts, api.WithEvents(broker))
	}
	if dcfg.Audit {
		engOpts = append(engOpts, engine.WithExtension(auditLogger(logger)))
	}
	if dcfg.BreakerFailures > 0 {
		engOpts = append(engOpts, engine.WithMiddleware(middleware.CircuitBreaker(middleware.BreakerConfig{
			ConsecutiveFailures: dcfg.BreakerFailures,
			OpenTimeout:         dcfg.BreakerOpen,
		}, logger)))
	}

	eng, err := engine.New(engOpts...)
	if err != nil {
		return err
	}
	if dcfg.Heartbeat > 0 {
		if err := eng.Register(heartbeat(dcfg.Heartbeat, logger)); err != nil {
			return err
		}
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Handle(dcfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/", api.New(eng, append(apiOpts, api.WithLogger(logger))...).Handler())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("chronod: http server listening",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("prefix", cfg.HTTP.Prefix),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("chronod: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), dcfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			eng.Stop(shutdownCtx),
		)
	})
	return g.Wait()
}

// heartbeat is a liveness job for deployments without embedded jobs.
func heartbeat(every time.Duration, logger *slog.Logger) *job.Definition {
	return job.New("chronod.heartbeat", func(ctx context.Context, _ struct{}) (*job.Result, error) {
		logger.InfoContext(ctx, "chronod: heartbeat")
		return job.Succeeded(nil), nil
	},
		job.WithDescription("Logs a line on every tick"),
		job.WithTrigger(trigger.Every(every)),
	)
}

// auditLogger records audit events as structured log lines.
func auditLogger(logger *slog.Logger) *audithook.Extension {
	audit := logger.With(slog.String("component", "chrono.audit"))
	return audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		audit.InfoContext(ctx, evt.Action,
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("category", evt.Category),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
			slog.String("reason", evt.Reason),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	}), audithook.WithLogger(logger))
}

// ──────────────────────────────────────────────────
// Backends
// ──────────────────────────────────────────────────

type backends struct {
	store  store.Store
	locks  lock.Provider
	closer []func()
}

func (b *backends) close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
}

// openBackends builds the store and lock provider named by cfg.Storage,
// sharing one Redis client or Postgres pool between them when both use it.
func openBackends(ctx context.Context, cfg chrono.Config, logger *slog.Logger) (*backends, error) {
	c, err := codec.ByName(cfg.Storage.Codec)
	if err != nil {
		return nil, err
	}
	b := &backends{}

	var (
		rdb  *redis.Client
		pool *pgxpool.Pool
	)
	redisClient := func() *redis.Client {
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
			b.closer = append(b.closer, func() { _ = rdb.Close() })
		}
		return rdb
	}
	pgPool := func() (*pgxpool.Pool, error) {
		if pool == nil {
			p, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
			if err != nil {
				return nil, fmt.Errorf("chronod: connect postgres: %w", err)
			}
			pool = p
			b.closer = append(b.closer, p.Close)
		}
		return pool, nil
	}

	switch cfg.Storage.Backend {
	case "redis":
		b.store = redisstore.New(redisClient(), redisstore.WithCodec(c), redisstore.WithLogger(logger))
	case "postgres":
		p, err := pgPool()
		if err != nil {
			b.close()
			return nil, err
		}
		b.store = postgres.NewFromPool(p, postgres.WithCodec(c), postgres.WithLogger(logger))
	default:
		b.store = memory.New()
	}

	switch cfg.Storage.Lock {
	case "redis":
		b.locks = redislock.New([]redis.Cmdable{redisClient()}, redislock.WithLogger(logger))
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			b.close()
			return nil, errors.New("chronod: postgres lock needs CHRONO_STORAGE_POSTGRES_DSN")
		}
		p, err := pgPool()
		if err != nil {
			b.close()
			return nil, err
		}
		b.locks = pglock.New(p, pglock.WithLogger(logger))
	default:
		b.locks = lock.NewLocal()
	}

	logger.Info("chronod: backends ready",
		slog.String("store", cfg.Storage.Backend),
		slog.String("lock", cfg.Storage.Lock),
		slog.String("codec", c.Name()),
	)
	return b, nil
}
