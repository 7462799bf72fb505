package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/lock/redislock"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestProvider_AcquireRelease(t *testing.T) {
	mr, client := newClient(t)
	p := redislock.New([]redis.Cmdable{client})
	ctx := context.Background()

	h, err := p.TryAcquire(ctx, "report", time.Second)
	if err != nil || h == nil {
		t.Fatalf("TryAcquire = %v, %v", h, err)
	}
	if !mr.Exists("chrono:lock:report") {
		t.Fatal("expected lock key to exist")
	}
	if ttl := mr.TTL("chrono:lock:report"); ttl <= 0 {
		t.Errorf("lock key TTL = %v, want a lease", ttl)
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists("chrono:lock:report") {
		t.Error("expected lock key to be deleted on release")
	}
}

func TestProvider_HeldElsewhere(t *testing.T) {
	_, client := newClient(t)
	p := redislock.New([]redis.Cmdable{client}, redislock.WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	h, _ := p.TryAcquire(ctx, "report", time.Second)
	defer h.Release(ctx)

	other, err := p.TryAcquire(ctx, "report", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if other != nil {
		t.Fatal("expected nil handle while the lock is held")
	}
}

func TestProvider_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, client := newClient(t)
	p := redislock.New([]redis.Cmdable{client}, redislock.WithTTL(time.Second))
	ctx := context.Background()

	h, _ := p.TryAcquire(ctx, "report", time.Second)

	// Lease expires and another holder takes the key.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("chrono:lock:report", "someone-else"); err != nil {
		t.Fatal(err)
	}

	_ = h.Release(ctx)
	got, err := mr.Get("chrono:lock:report")
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock was touched: %q, %v", got, err)
	}
}

func TestProvider_Quorum(t *testing.T) {
	_, a := newClient(t)
	_, b := newClient(t)
	mrC, c := newClient(t)
	p := redislock.New([]redis.Cmdable{a, b, c}, redislock.WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	// One node already has a foreign lock: 2 of 3 is still a majority.
	_ = mrC.Set("chrono:lock:q", "foreign")
	h, err := p.TryAcquire(ctx, "q", 50*time.Millisecond)
	if err != nil || h == nil {
		t.Fatalf("expected quorum acquisition, got %v, %v", h, err)
	}
	_ = h.Release(ctx)
}

func TestProvider_WaitsForRelease(t *testing.T) {
	_, client := newClient(t)
	p := redislock.New([]redis.Cmdable{client}, redislock.WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	h, _ := p.TryAcquire(ctx, "k", time.Second)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.Release(ctx)
	}()

	h2, err := p.TryAcquire(ctx, "k", time.Second)
	if err != nil || h2 == nil {
		t.Fatalf("expected acquisition after release: %v, %v", h2, err)
	}
	_ = h2.Release(ctx)
}
