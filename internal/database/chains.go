package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UpsertChain inserts or updates the (full_id, subchain_id) row for name,
// returning the surrogate id either way. Matches the ON CONFLICT ...
// RETURNING idiom used throughout this package so callers never need a
// separate existence check.
func UpsertChain(ctx context.Context, pool *pgxpool.Pool, fullID string, subchainID *int, name string) (int64, error) {
	now := time.Now()
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO chains (full_id, subchain_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (full_id, subchain_id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		RETURNING id
	`, fullID, subchainID, name, now).Scan(&id)
	return id, err
}

// UpsertChainWebAccess inserts or replaces the portal credentials for
// chainID.
func UpsertChainWebAccess(ctx context.Context, pool *pgxpool.Pool, access ChainWebAccess) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO chain_web_access (chain_id, url, username, password)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE SET url = EXCLUDED.url, username = EXCLUDED.username, password = EXCLUDED.password
	`, access.ChainID, access.URL, access.Username, access.Password)
	return err
}

// ListChainsWithAccess returns every Chain row paired with its web access
// credentials, for driving a pipeline run over all known chains. A chain
// with no chain_web_access row (never discovered, or discovery dropped it)
// is skipped rather than returned with an empty Access.
func ListChainsWithAccess(ctx context.Context, pool *pgxpool.Pool) ([]Chain, []ChainWebAccess, error) {
	rows, err := pool.Query(ctx, `
		SELECT c.id, c.full_id, c.subchain_id, c.name, c.created_at, c.updated_at,
		       a.chain_id, a.url, a.username, a.password
		FROM chains c
		JOIN chain_web_access a ON a.chain_id = c.id
		ORDER BY c.id
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var chains []Chain
	var accesses []ChainWebAccess
	for rows.Next() {
		var c Chain
		var a ChainWebAccess
		if err := rows.Scan(&c.ID, &c.FullID, &c.SubchainID, &c.Name, &c.CreatedAt, &c.UpdatedAt,
			&a.ChainID, &a.URL, &a.Username, &a.Password); err != nil {
			return nil, nil, err
		}
		chains = append(chains, c)
		accesses = append(accesses, a)
	}
	return chains, accesses, rows.Err()
}
