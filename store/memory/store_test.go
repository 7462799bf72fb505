package memory_test

import (
	"context"
	"testing"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/store"
	"github.com/xraph/chrono/store/memory"
	"github.com/xraph/chrono/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestPendingChain(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	_ = s.EnqueueChain(ctx, &chain.Item{ID: id.NewChainItemID(), JobID: "a"})
	_ = s.EnqueueChain(ctx, &chain.Item{ID: id.NewChainItemID(), JobID: "b"})
	if s.PendingChain() != 2 {
		t.Fatalf("PendingChain = %d, want 2", s.PendingChain())
	}
	_, _ = s.DequeueChain(ctx)
	if s.PendingChain() != 1 {
		t.Errorf("PendingChain = %d, want 1", s.PendingChain())
	}
}
