package storesparser

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openprices/ingest/internal/database"
)

// PgxPersister is the pgx/v5-backed Persister, grounded on the teacher's
// internal/pipeline/persist.go resolveOrCreateStore transaction idiom.
type PgxPersister struct {
	Pool *pgxpool.Pool
}

func (p *PgxPersister) UpsertStores(ctx context.Context, stores []database.Store) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, s := range stores {
		_, err := tx.Exec(ctx, `
			INSERT INTO stores (chain_id, store_id, name, city, address, type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (chain_id, store_id) DO NOTHING
		`, s.ChainID, s.StoreID, s.Name, s.City, s.Address, s.Type, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *PgxPersister) RenameChain(ctx context.Context, chainID int64, name string) error {
	_, err := p.Pool.Exec(ctx, `UPDATE chains SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now(), chainID)
	return err
}
