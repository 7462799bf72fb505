package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/id"
)

const deadLetterColumns = `
	id, job_id, failed_at, input, error, retry_attempt, max_attempts,
	trigger_id, instance_id, tags, metadata, requeued_at`

// AddDeadLetter inserts a dead-letter row.
func (s *Store) AddDeadLetter(ctx context.Context, item *dlq.Item) error {
	in, err := s.encode(item.Input)
	if err != nil {
		return fmt.Errorf("chrono/postgres: encode dead letter input: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chrono_dead_letters (`+deadLetterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID.String(), item.JobID, item.FailedAt, in, item.Error,
		item.RetryAttempt, item.MaxAttempts, item.TriggerID, item.InstanceID,
		item.Tags, item.Metadata, item.RequeuedAt,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: add dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns items matching opts, most recent first.
func (s *Store) ListDeadLetters(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Item, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM chrono_dead_letters WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, opts.JobID)
		argIdx++
	}

	query += " ORDER BY failed_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: list dead letters: %w", err)
	}
	items, err := collect(rows, s.scanDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: scan dead letters: %w", err)
	}
	return items, nil
}

// GetDeadLetter returns one item.
func (s *Store) GetDeadLetter(ctx context.Context, itemID id.ID) (*dlq.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM chrono_dead_letters WHERE id = $1`, itemID.String())
	item, err := s.scanDeadLetter(row)
	if isNoRows(err) {
		return nil, chrono.ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: get dead letter: %w", err)
	}
	return item, nil
}

// MarkRequeued stamps RequeuedAt on an item.
func (s *Store) MarkRequeued(ctx context.Context, itemID id.ID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chrono_dead_letters SET requeued_at = $2 WHERE id = $1`, itemID.String(), at)
	if err != nil {
		return fmt.Errorf("chrono/postgres: mark requeued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chrono.ErrDeadLetterNotFound
	}
	return nil
}

// DeleteDeadLetters removes every item of jobID.
func (s *Store) DeleteDeadLetters(ctx context.Context, jobID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chrono_dead_letters WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("chrono/postgres: delete dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) scanDeadLetter(row scanner) (*dlq.Item, error) {
	var (
		item  dlq.Item
		rawID string
		in    []byte
	)
	err := row.Scan(
		&rawID, &item.JobID, &item.FailedAt, &in, &item.Error,
		&item.RetryAttempt, &item.MaxAttempts, &item.TriggerID, &item.InstanceID,
		&item.Tags, &item.Metadata, &item.RequeuedAt,
	)
	if err != nil {
		return nil, err
	}
	if item.ID, err = id.ParseDeadLetterID(rawID); err != nil {
		return nil, fmt.Errorf("parse dead letter id %q: %w", rawID, err)
	}
	item.FailedAt = item.FailedAt.UTC()
	item.Input = s.wrap(in)
	return &item, nil
}
