package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/id"
)

// itemRecord is the stored form of a dead letter.
type itemRecord struct {
	Item  dlq.Item `json:"item"`
	Input []byte   `json:"input,omitempty"`
}

// AddDeadLetter persists an item and indexes it by failure time.
func (s *Store) AddDeadLetter(ctx context.Context, item *dlq.Item) error {
	raw, err := s.encodeItem(item)
	if err != nil {
		return err
	}
	key := item.ID.String()
	z := redis.Z{Score: score(item.FailedAt), Member: key}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, deadLettersKey, key, raw)
		p.ZAdd(ctx, deadLetterIndexKey, z)
		p.ZAdd(ctx, deadLetterJobKey(item.JobID), z)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: add dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns items matching opts, most recent first.
func (s *Store) ListDeadLetters(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Item, error) {
	index := deadLetterIndexKey
	if opts.JobID != "" {
		index = deadLetterJobKey(opts.JobID)
	}
	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	keys, err := s.client.ZRevRange(ctx, index, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: list dead letters: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, deadLettersKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: load dead letters: %w", err)
	}
	items := make([]*dlq.Item, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		item, err := s.decodeItem([]byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetDeadLetter returns one item.
func (s *Store) GetDeadLetter(ctx context.Context, itemID id.ID) (*dlq.Item, error) {
	raw, err := s.client.HGet(ctx, deadLettersKey, itemID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, chrono.ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: get dead letter: %w", err)
	}
	return s.decodeItem(raw)
}

// MarkRequeued stamps RequeuedAt on an item.
func (s *Store) MarkRequeued(ctx context.Context, itemID id.ID, at time.Time) error {
	item, err := s.GetDeadLetter(ctx, itemID)
	if err != nil {
		return err
	}
	item.RequeuedAt = &at
	raw, err := s.encodeItem(item)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, deadLettersKey, itemID.String(), raw).Err(); err != nil {
		return fmt.Errorf("chrono/redis: mark requeued: %w", err)
	}
	return nil
}

// DeleteDeadLetters removes every item of jobID.
func (s *Store) DeleteDeadLetters(ctx context.Context, jobID string) (int64, error) {
	keys, err := s.client.ZRange(ctx, deadLetterJobKey(jobID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("chrono/redis: list dead letters of %s: %w", jobID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		deleted = p.HDel(ctx, deadLettersKey, keys...)
		p.ZRem(ctx, deadLetterIndexKey, members...)
		p.Del(ctx, deadLetterJobKey(jobID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("chrono/redis: delete dead letters: %w", err)
	}
	return deleted.Val(), nil
}

func (s *Store) encodeItem(item *dlq.Item) (string, error) {
	in, err := s.encode(item.Input)
	if err != nil {
		return "", fmt.Errorf("chrono/redis: encode dead letter input: %w", err)
	}
	rec := itemRecord{Item: *item, Input: in}
	rec.Item.Input = nil
	raw, err := marshal(rec)
	if err != nil {
		return "", fmt.Errorf("chrono/redis: encode dead letter: %w", err)
	}
	return raw, nil
}

func (s *Store) decodeItem(raw []byte) (*dlq.Item, error) {
	var rec itemRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("chrono/redis: decode dead letter: %w", err)
	}
	item := rec.Item
	item.Input = s.wrap(rec.Input)
	return &item, nil
}
