package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionConfig configures how long ingestion history is kept around.
type RetentionConfig struct {
	ArchiveRetentionDays      int
	IngestionRunRetentionDays int
}

// DefaultRetentionConfig returns sensible retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ArchiveRetentionDays:      30, // raw files are re-derivable from the chain, keep audit rows a month
		IngestionRunRetentionDays: 90, // run/file/error history kept longer for incident review
	}
}

// CleanupOldArchives removes archive audit rows past the retention window.
func CleanupOldArchives(ctx context.Context, db *pgxpool.Pool, cfg RetentionConfig) error {
	deleted, err := cleanupOldArchivesImpl(ctx, db, time.Duration(cfg.ArchiveRetentionDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("cleanup old archives: %w", err)
	}

	slog.Info("cleaned up old archive records", "rows_deleted", deleted, "retention_days", cfg.ArchiveRetentionDays)
	return nil
}

// CleanupOldIngestionRuns removes completed/failed ingestion runs past the retention window.
func CleanupOldIngestionRuns(ctx context.Context, db *pgxpool.Pool, cfg RetentionConfig) error {
	deleted, err := cleanupOldIngestionRunsImpl(ctx, db, time.Duration(cfg.IngestionRunRetentionDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("cleanup old ingestion runs: %w", err)
	}

	slog.Info("cleaned up old ingestion runs", "rows_deleted", deleted, "retention_days", cfg.IngestionRunRetentionDays)
	return nil
}

// RunAllCleanupJobs runs all retention jobs in sequence.
func RunAllCleanupJobs(ctx context.Context, db *pgxpool.Pool) error {
	cfg := DefaultRetentionConfig()

	slog.Info("starting cleanup jobs")

	if err := CleanupOldArchives(ctx, db, cfg); err != nil {
		slog.Error("failed to cleanup old archives", "error", err)
		// continue with other jobs
	}

	if err := CleanupOldIngestionRuns(ctx, db, cfg); err != nil {
		slog.Error("failed to cleanup old ingestion runs", "error", err)
	}

	slog.Info("cleanup jobs completed")

	return nil
}

// CleanupScheduler runs retention jobs on a daily cadence.
type CleanupScheduler struct {
	db     *pgxpool.Pool
	config RetentionConfig
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(db *pgxpool.Pool, config RetentionConfig) *CleanupScheduler {
	if config.ArchiveRetentionDays == 0 {
		config.ArchiveRetentionDays = 30
	}
	if config.IngestionRunRetentionDays == 0 {
		config.IngestionRunRetentionDays = 90
	}

	return &CleanupScheduler{
		db:     db,
		config: config,
	}
}

// RunDailyCleanup runs all retention jobs. Intended to be called by a
// daily cron trigger.
func (s *CleanupScheduler) RunDailyCleanup(ctx context.Context) error {
	slog.Info("running daily cleanup")

	if err := CleanupOldArchives(ctx, s.db, s.config); err != nil {
		return fmt.Errorf("cleanup archives: %w", err)
	}

	if err := CleanupOldIngestionRuns(ctx, s.db, s.config); err != nil {
		return fmt.Errorf("cleanup ingestion runs: %w", err)
	}

	slog.Info("daily cleanup completed")
	return nil
}

// GetCleanupStats returns counts of rows that would be removed by the
// next cleanup pass, without removing anything.
func GetCleanupStats(ctx context.Context, db *pgxpool.Pool, cfg RetentionConfig) (map[string]int64, error) {
	stats := make(map[string]int64)

	archiveCutoff := time.Now().AddDate(0, 0, -cfg.ArchiveRetentionDays)
	var archiveCount int64
	if err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM archives WHERE downloaded_at < $1
	`, archiveCutoff).Scan(&archiveCount); err != nil {
		return nil, fmt.Errorf("count old archives: %w", err)
	}
	stats["old_archives"] = archiveCount

	runCutoff := time.Now().AddDate(0, 0, -cfg.IngestionRunRetentionDays)
	var runCount int64
	if err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM ingestion_runs WHERE status IN ('completed', 'failed') AND created_at < $1
	`, runCutoff).Scan(&runCount); err != nil {
		return nil, fmt.Errorf("count old ingestion runs: %w", err)
	}
	stats["old_ingestion_runs"] = runCount

	return stats, nil
}
