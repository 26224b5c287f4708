package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// cleanupOldArchivesImpl removes archive audit rows older than age. Archives
// are an audit trail, not load-bearing state: once a run has aged out of the
// window operators care about, the row is safe to drop.
func cleanupOldArchivesImpl(ctx context.Context, pool *pgxpool.Pool, age time.Duration) (int, error) {
	result, err := pool.Exec(ctx, `
		DELETE FROM archives WHERE downloaded_at < $1
	`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old archives: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// cleanupOldIngestionRunsImpl removes completed/failed ingestion runs (and
// their files/errors, via ON DELETE CASCADE) older than age. Running/pending
// runs are never touched regardless of age.
func cleanupOldIngestionRunsImpl(ctx context.Context, pool *pgxpool.Pool, age time.Duration) (int, error) {
	result, err := pool.Exec(ctx, `
		DELETE FROM ingestion_runs
		WHERE status IN ('completed', 'failed')
		  AND created_at < $1
	`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old ingestion runs: %w", err)
	}

	return int(result.RowsAffected()), nil
}
