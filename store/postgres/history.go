package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
)

const logColumns = `
	id, job_id, executed_at, success, message, error, duration_ns,
	retry_attempt, retry_count, max_attempts_reached, retry_delay_ns,
	output, trigger_id, instance_id, tags, correlation_id, trigger_source, user_id`

// AppendLog inserts a log row.
func (s *Store) AppendLog(ctx context.Context, l *history.Log) error {
	out, err := s.encode(l.Output)
	if err != nil {
		return fmt.Errorf("chrono/postgres: encode log output: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chrono_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		l.ID.String(), l.JobID, l.ExecutedAt, l.Success, l.Message, l.Error, int64(l.Duration),
		l.RetryAttempt, l.RetryCount, l.MaxAttemptsReached, int64(l.RetryDelay),
		out, l.TriggerID, l.InstanceID, l.Tags, l.CorrelationID, l.TriggerSource, l.UserID,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: append log: %w", err)
	}
	return nil
}

// QueryLogs returns up to take logs of jobID, most recent first.
func (s *Store) QueryLogs(ctx context.Context, jobID string, take int) ([]*history.Log, error) {
	query := `SELECT ` + logColumns + ` FROM chrono_logs WHERE job_id = $1 ORDER BY executed_at DESC, id DESC`
	args := []any{jobID}
	if take > 0 {
		query += ` LIMIT $2`
		args = append(args, take)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: query logs: %w", err)
	}
	logs, err := collect(rows, s.scanLog)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: scan logs: %w", err)
	}
	return logs, nil
}

// ListLogs returns every log, most recent first.
func (s *Store) ListLogs(ctx context.Context) ([]*history.Log, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+logColumns+` FROM chrono_logs ORDER BY executed_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: list logs: %w", err)
	}
	logs, err := collect(rows, s.scanLog)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: scan logs: %w", err)
	}
	return logs, nil
}

// PurgeLogsBefore deletes logs executed before cutoff.
func (s *Store) PurgeLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chrono_logs WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("chrono/postgres: purge logs before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeLogsOverLimit keeps the newest maxPerJob logs of every job.
func (s *Store) PurgeLogsOverLimit(ctx context.Context, maxPerJob int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM chrono_logs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY executed_at DESC, id DESC) AS rn
				FROM chrono_logs
			) ranked
			WHERE rn > $1
		)`, maxPerJob)
	if err != nil {
		return 0, fmt.Errorf("chrono/postgres: purge logs over limit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) scanLog(row scanner) (*history.Log, error) {
	var (
		l               history.Log
		rawID           string
		duration, delay int64
		output          []byte
	)
	err := row.Scan(
		&rawID, &l.JobID, &l.ExecutedAt, &l.Success, &l.Message, &l.Error, &duration,
		&l.RetryAttempt, &l.RetryCount, &l.MaxAttemptsReached, &delay,
		&output, &l.TriggerID, &l.InstanceID, &l.Tags, &l.CorrelationID, &l.TriggerSource, &l.UserID,
	)
	if err != nil {
		return nil, err
	}
	if l.ID, err = id.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse log id %q: %w", rawID, err)
	}
	l.ExecutedAt = l.ExecutedAt.UTC()
	l.Duration = time.Duration(duration)
	l.RetryDelay = time.Duration(delay)
	l.Output = s.wrap(output)
	return &l, nil
}
