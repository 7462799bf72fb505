package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/id"
)

// chainRecord is the stored form of a chain item.
type chainRecord struct {
	Item  chain.Item `json:"item"`
	Input []byte     `json:"input,omitempty"`
}

// EnqueueChain stores the item and appends its ID to the pending list.
func (s *Store) EnqueueChain(ctx context.Context, item *chain.Item) error {
	in, err := s.encode(item.Input)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode chain input: %w", err)
	}
	rec := chainRecord{Item: *item, Input: in}
	rec.Item.Input = nil
	raw, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode chain item: %w", err)
	}
	key := item.ID.String()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, chainItemsKey, key, raw)
		p.RPush(ctx, chainPendingKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: enqueue chain: %w", err)
	}
	return nil
}

// DequeueChain atomically moves the oldest pending ID to the reserved list
// and returns its item.
func (s *Store) DequeueChain(ctx context.Context) (*chain.Item, error) {
	key, err := s.client.LMove(ctx, chainPendingKey, chainReservedKey, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: dequeue chain: %w", err)
	}
	raw, err := s.client.HGet(ctx, chainItemsKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Acked elsewhere between the move and the read.
		s.client.LRem(ctx, chainReservedKey, 1, key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: load chain item: %w", err)
	}
	var rec chainRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("chrono/redis: decode chain item: %w", err)
	}
	item := rec.Item
	item.Input = s.wrap(rec.Input)
	return &item, nil
}

// AckChain drops a reserved item.
func (s *Store) AckChain(ctx context.Context, itemID id.ID) error {
	key := itemID.String()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, chainReservedKey, 1, key)
		p.HDel(ctx, chainItemsKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: ack chain: %w", err)
	}
	return nil
}

// RecoverChain moves every reserved but unacknowledged item back to the
// front of the pending list. Call it before starting a consumer after a
// crash; items are then delivered again (at-least-once).
func (s *Store) RecoverChain(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := s.client.LMove(ctx, chainReservedKey, chainPendingKey, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("chrono/redis: recover chain: %w", err)
		}
		n++
	}
}
