package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"feed_syncer/internal/domain"
)

// RunStore is the ledger of finished sync runs.
type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

// Record appends a finished run to the ledger.
func (s *RunStore) Record(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			id, source_id, mode, state, existing_count, new_count, written_count,
			backup_path, error, started_at, finished_at
		) VALUES (
			:id, :source_id, :mode, :state, :existing_count, :new_count, :written_count,
			:backup_path, :error, :started_at, :finished_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, run)
	return err
}

// Last returns the most recent run of a source, or nil when it never ran.
func (s *RunStore) Last(ctx context.Context, sourceID string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	query := `
		SELECT id, source_id, mode, state, existing_count, new_count, written_count,
			backup_path, error, started_at, finished_at
		FROM sync_runs
		WHERE source_id = $1
		ORDER BY started_at DESC
		LIMIT 1`

	err := s.db.GetContext(ctx, &run, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
