package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/chrono/scheduler"
)

// GetTriggerState returns the job's trigger state, or nil when none exists.
func (s *Store) GetTriggerState(ctx context.Context, jobID string) (*scheduler.State, error) {
	raw, err := s.client.Get(ctx, stateKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/redis: get trigger state: %w", err)
	}
	var st scheduler.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("chrono/redis: decode trigger state: %w", err)
	}
	return &st, nil
}

// SetTriggerState upserts the job's trigger state.
func (s *Store) SetTriggerState(ctx context.Context, st *scheduler.State) error {
	raw, err := marshal(st)
	if err != nil {
		return fmt.Errorf("chrono/redis: encode trigger state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(st.JobID), raw, 0).Err(); err != nil {
		return fmt.Errorf("chrono/redis: set trigger state: %w", err)
	}
	return nil
}

// RemoveTriggerState deletes the job's trigger state.
func (s *Store) RemoveTriggerState(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, stateKey(jobID)).Err(); err != nil {
		return fmt.Errorf("chrono/redis: remove trigger state: %w", err)
	}
	return nil
}
