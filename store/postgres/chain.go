package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/id"
)

// EnqueueChain inserts a pending chain item.
func (s *Store) EnqueueChain(ctx context.Context, item *chain.Item) error {
	in, err := s.encode(item.Input)
	if err != nil {
		return fmt.Errorf("chrono/postgres: encode chain input: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chrono_chain_items (id, job_id, input, enqueued_at, source_job_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID.String(), item.JobID, in, item.EnqueuedAt, item.SourceJobID, item.Metadata,
	)
	if err != nil {
		return fmt.Errorf("chrono/postgres: enqueue chain: %w", err)
	}
	return nil
}

// DequeueChain reserves the oldest pending item using SKIP LOCKED so
// concurrent consumers never claim the same row.
func (s *Store) DequeueChain(ctx context.Context) (*chain.Item, error) {
	var (
		item  chain.Item
		rawID string
		in    []byte
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE chrono_chain_items SET reserved_at = NOW()
		WHERE seq = (
			SELECT seq FROM chrono_chain_items
			WHERE reserved_at IS NULL
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, input, enqueued_at, source_job_id, metadata`,
	).Scan(&rawID, &item.JobID, &in, &item.EnqueuedAt, &item.SourceJobID, &item.Metadata)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chrono/postgres: dequeue chain: %w", err)
	}
	if item.ID, err = id.Parse(rawID); err != nil {
		return nil, fmt.Errorf("chrono/postgres: parse chain id %q: %w", rawID, err)
	}
	item.EnqueuedAt = item.EnqueuedAt.UTC()
	item.Input = s.wrap(in)
	return &item, nil
}

// AckChain deletes a reserved item.
func (s *Store) AckChain(ctx context.Context, itemID id.ID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chrono_chain_items WHERE id = $1`, itemID.String()); err != nil {
		return fmt.Errorf("chrono/postgres: ack chain: %w", err)
	}
	return nil
}

// RecoverChain releases every reserved item so it is delivered again.
func (s *Store) RecoverChain(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chrono_chain_items SET reserved_at = NULL WHERE reserved_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("chrono/postgres: recover chain: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
