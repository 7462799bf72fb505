package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/queue"
)

// journalRecord is the stored form of an ad-hoc entry.
type journalRecord struct {
	Job   queue.EnqueuedJob `json:"job"`
	Input []byte            `json:"input,omitempty"`
}

// EnqueueJob appends qj to its job's journal.
func (s *Store) EnqueueJob(ctx context.Context, qj *queue.EnqueuedJob) error {
	in, err := s.encode(qj.Input)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode journal input: %w", err)
	}
	rec := journalRecord{Job: *qj, Input: in}
	rec.Job.Input = nil
	raw, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode journal entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, journalEntriesKey(qj.JobID), qj.RequestID, raw)
		p.RPush(ctx, journalKey(qj.JobID), qj.RequestID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: journal enqueue: %w", err)
	}
	return nil
}

// DequeueJob removes and returns the oldest journal entry of jobID.
// Request IDs whose entry was already acked are skipped.
func (s *Store) DequeueJob(ctx context.Context, jobID string) (*queue.EnqueuedJob, error) {
	for {
		reqID, err := s.client.LPop(ctx, journalKey(jobID)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("chrono/redis: journal dequeue: %w", err)
		}

		var get *redis.StringCmd
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			get = p.HGet(ctx, journalEntriesKey(jobID), reqID)
			p.HDel(ctx, journalEntriesKey(jobID), reqID)
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("chrono/redis: journal dequeue: %w", err)
		}
		raw, err := get.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chrono/redis: journal dequeue: %w", err)
		}

		var rec journalRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("chrono/redis: decode journal entry: %w", err)
		}
		qj := rec.Job
		qj.Input = s.wrap(rec.Input)
		return &qj, nil
	}
}

// AckJob removes the journal entry of jobID stamped with requestID.
func (s *Store) AckJob(ctx context.Context, jobID, requestID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, journalKey(jobID), 1, requestID)
		p.HDel(ctx, journalEntriesKey(jobID), requestID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chrono/redis: journal ack: %w", err)
	}
	return nil
}
