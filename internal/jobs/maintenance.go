package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/openprices/ingest/internal/reconcile"
)

// MaintenanceConfig holds configuration for the background maintenance jobs.
type MaintenanceConfig struct {
	RetentionInterval time.Duration // how often to sweep archives/runs past retention
	ReconcileInterval time.Duration // how often to run the cross-snapshot item linker
	Retention         RetentionConfig
	Enabled           bool
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		RetentionInterval: 24 * time.Hour,
		ReconcileInterval: 1 * time.Hour,
		Retention:         DefaultRetentionConfig(),
		Enabled:           true,
	}
}

// CleanupManager runs the retention sweep and the item-linking reconciler
// as background tickers for the lifetime of the process.
type CleanupManager struct {
	pool   *pgxpool.Pool
	config MaintenanceConfig
	logger *zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	retentionDone chan struct{}
	reconcileDone chan struct{}
}

// NewCleanupManager creates a new cleanup manager.
func NewCleanupManager(pool *pgxpool.Pool, config MaintenanceConfig, logger *zerolog.Logger) *CleanupManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &CleanupManager{
		pool:          pool,
		config:        config,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		retentionDone: make(chan struct{}),
		reconcileDone: make(chan struct{}),
	}
}

// Start begins all background maintenance jobs.
func (cm *CleanupManager) Start() {
	if !cm.config.Enabled {
		cm.logger.Info().Msg("maintenance jobs are disabled, not starting")
		return
	}

	cm.logger.Info().
		Dur("retention_interval", cm.config.RetentionInterval).
		Dur("reconcile_interval", cm.config.ReconcileInterval).
		Msg("starting cleanup manager")

	go cm.runRetentionSweep()
	go cm.runReconcileSweep()
}

// Stop gracefully stops all background maintenance jobs.
func (cm *CleanupManager) Stop() {
	cm.logger.Info().Msg("stopping cleanup manager...")
	cm.cancel()

	select {
	case <-cm.retentionDone:
		cm.logger.Debug().Msg("retention sweep stopped")
	case <-time.After(5 * time.Second):
		cm.logger.Warn().Msg("retention sweep did not stop gracefully")
	}

	select {
	case <-cm.reconcileDone:
		cm.logger.Debug().Msg("reconcile sweep stopped")
	case <-time.After(5 * time.Second):
		cm.logger.Warn().Msg("reconcile sweep did not stop gracefully")
	}

	cm.logger.Info().Msg("cleanup manager stopped")
}

// runRetentionSweep removes archive and ingestion-run rows past the
// configured retention window.
func (cm *CleanupManager) runRetentionSweep() {
	defer close(cm.retentionDone)

	ticker := time.NewTicker(cm.config.RetentionInterval)
	defer ticker.Stop()

	cm.sweepRetention()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.sweepRetention()
		}
	}
}

func (cm *CleanupManager) sweepRetention() {
	start := time.Now()
	if err := RunAllCleanupJobs(cm.ctx, cm.pool); err != nil {
		cm.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}
	cm.logger.Debug().Dur("duration", time.Since(start)).Msg("retention sweep completed")
}

// runReconcileSweep periodically re-links externally sourced items against
// the catalog, picking up matches that a prior ingestion run left pending.
func (cm *CleanupManager) runReconcileSweep() {
	defer close(cm.reconcileDone)

	ticker := time.NewTicker(cm.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.sweepReconcile()
		}
	}
}

func (cm *CleanupManager) sweepReconcile() {
	start := time.Now()
	linked, err := reconcile.LinkExternalItems(cm.ctx, cm.pool)
	if err != nil {
		cm.logger.Error().Err(err).Msg("reconcile sweep failed")
		return
	}

	duration := time.Since(start)
	if linked > 0 {
		cm.logger.Info().Int("linked", linked).Dur("duration", duration).Msg("reconcile sweep linked items")
	} else {
		cm.logger.Debug().Dur("duration", duration).Msg("reconcile sweep found nothing to link")
	}
}
