package pipeline

import (
	"context"
	"time"
)

// ingestionRun tracks one Driver.Run invocation in the ambient
// ingestion_runs/ingestion_errors tables, so operators can see run history
// even though per-(chain,store) failures never abort the batch.
type ingestionRun struct {
	d  *Driver
	id int64
}

func (d *Driver) startRun(ctx context.Context, chains []ChainTarget) *ingestionRun {
	r := &ingestionRun{d: d}
	now := time.Now()

	var chainID *int64
	if len(chains) == 1 {
		chainID = &chains[0].Chain.ID
	}

	err := d.Pool.QueryRow(ctx, `
		INSERT INTO ingestion_runs (chain_id, source, status, started_at, total_files, created_at)
		VALUES ($1, 'cli', 'running', $2, $3, $2)
		RETURNING id
	`, chainID, now, len(chains)).Scan(&r.id)
	if err != nil {
		logf("[WARN] failed to create ingestion run record: %v", err)
		r.id = 0
	}
	return r
}

func (r *ingestionRun) recordError(ctx context.Context, category, message string) {
	if r.id == 0 {
		return
	}
	_, err := r.d.Pool.Exec(ctx, `
		INSERT INTO ingestion_errors (run_id, category, message, severity, created_at)
		VALUES ($1, $2, $3, 'error', $4)
	`, r.id, category, message, time.Now())
	if err != nil {
		logf("[WARN] failed to record ingestion error: %v", err)
	}
}

func (r *ingestionRun) complete(ctx context.Context, result *Result) {
	if r.id == 0 {
		return
	}
	now := time.Now()
	_, err := r.d.Pool.Exec(ctx, `
		UPDATE ingestion_runs
		SET status = 'completed', completed_at = $1, processed_files = $2, processed_entries = $3, error_count = $4
		WHERE id = $5
	`, now, result.ChainsDownloaded, result.StoresProcessed, len(result.Errors), r.id)
	if err != nil {
		logf("[WARN] failed to mark ingestion run completed: %v", err)
	}
}
