//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/codec"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/store"
	"github.com/xraph/chrono/store/postgres"
	"github.com/xraph/chrono/store/storetest"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("chrono_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// freshStore migrates and empties the shared database for one subtest.
func freshStore(t *testing.T, pool *pgxpool.Pool, opts ...postgres.Option) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	s := postgres.NewFromPool(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_, err := pool.Exec(ctx, `TRUNCATE chrono_trigger_states, chrono_logs, chrono_journal,
		chrono_dead_letters, chrono_chain_items`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	pool := setupPool(t)

	t.Run("json", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store { return freshStore(t, pool) })
	})
	t.Run("msgpack", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store {
			return freshStore(t, pool, postgres.WithCodec(codec.Msgpack{}))
		})
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := setupPool(t)
	s := postgres.NewFromPool(pool)
	ctx := context.Background()
	for range 2 {
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}

func TestRecoverChain(t *testing.T) {
	pool := setupPool(t)
	s := freshStore(t, pool)
	ctx := context.Background()

	item := &chain.Item{ID: id.NewChainItemID(), JobID: "notify", EnqueuedAt: time.Now().UTC()}
	if err := s.EnqueueChain(ctx, item); err != nil {
		t.Fatalf("EnqueueChain: %v", err)
	}
	if got, _ := s.DequeueChain(ctx); got == nil {
		t.Fatal("expected an item")
	}

	n, err := s.RecoverChain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverChain = %d, %v; want 1", n, err)
	}
	again, err := s.DequeueChain(ctx)
	if err != nil || again == nil || again.ID.String() != item.ID.String() {
		t.Fatalf("redelivered = %+v, %v", again, err)
	}
}
