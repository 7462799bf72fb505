package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/chrono/queue"
)

// EnqueueJob appends qj to the journal.
func (s *Store) EnqueueJob(ctx context.Context, qj *queue.EnqueuedJob) error {
	in, err := s.encode(qj.Input)
	if err != nil {
		return fmt.Errorf("chrono/postgres: encode journal input: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chrono_journal (request_id, job_id, input, enqueued_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		qj.RequestID, qj.JobID, in, qj.EnqueuedAt, qj.Metadata,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: journal enqueue: %w", err)
	}
	return nil
}

// DequeueJob removes and returns the oldest journal entry of jobID.
func (s *Store) DequeueJob(ctx context.Context, jobID string) (*queue.EnqueuedJob, error) {
	var (
		qj queue.EnqueuedJob
		in []byte
	)
	err := s.pool.QueryRow(ctx, `
		DELETE FROM chrono_journal
		WHERE seq = (
			SELECT seq FROM chrono_journal
			WHERE job_id = $1
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING request_id, job_id, input, enqueued_at, metadata`, jobID,
	).Scan(&qj.RequestID, &qj.JobID, &in, &qj.EnqueuedAt, &qj.Metadata)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: journal dequeue: %w", err)
	}
	qj.EnqueuedAt = qj.EnqueuedAt.UTC()
	qj.Input = s.wrap(in)
	return &qj, nil
}

// AckJob deletes the journal entry of jobID stamped with requestID.
func (s *Store) AckJob(ctx context.Context, jobID, requestID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM chrono_journal
		WHERE job_id = $1 AND request_id = $2`, jobID, requestID,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: journal ack: %w", err)
	}
	return nil
}
