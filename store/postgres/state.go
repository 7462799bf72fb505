package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/chrono/scheduler"
)

// GetTriggerState returns the persisted state of jobID, or nil when none.
func (s *Store) GetTriggerState(ctx context.Context, jobID string) (*scheduler.State, error) {
	st := &scheduler.State{JobID: jobID}
	err := s.pool.QueryRow(ctx, `
		SELECT last_fired_at, next_due_at, trigger_id
		FROM chrono_trigger_states
		WHERE job_id = $1`, jobID,
	).Scan(&st.LastFiredAt, &st.NextDueAt, &st.TriggerID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: get trigger state: %w", err)
	}
	return st, nil
}

// SetTriggerState upserts st.
func (s *Store) SetTriggerState(ctx context.Context, st *scheduler.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chrono_trigger_states (job_id, last_fired_at, next_due_at, trigger_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			last_fired_at = EXCLUDED.last_fired_at,
			next_due_at   = EXCLUDED.next_due_at,
			trigger_id    = EXCLUDED.trigger_id,
			updated_at    = NOW()`,
		st.JobID, st.LastFiredAt, st.NextDueAt, st.TriggerID,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: set trigger state: %w", err)
	}
	return nil
}

// RemoveTriggerState deletes the state of jobID.
func (s *Store) RemoveTriggerState(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chrono_trigger_states WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("chrono/postgres: remove trigger state: %w", err)
	}
	return nil
}
