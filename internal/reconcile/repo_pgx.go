package reconcile

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openprices/ingest/internal/database"
)

// PgxRepo is the pgx/v5-backed Repo. It favors one statement (or one small
// transaction) per call over a single long-lived transaction spanning all
// four stages, matching the spec's "each stage commits before the next
// reads" contract directly rather than simulating it with savepoints.
type PgxRepo struct {
	Pool *pgxpool.Pool
}

func (r *PgxRepo) ExistingItemCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	rows, err := r.Pool.Query(ctx, `SELECT code FROM items WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool, len(codes))
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[code] = true
	}
	return out, rows.Err()
}

func (r *PgxRepo) InsertItems(ctx context.Context, items []database.Item) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO items (code, name, quantity, unit, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO NOTHING
		`, it.Code, it.Name, it.Quantity, it.Unit, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PgxRepo) ExistingStoreProducts(ctx context.Context, storeID int64) (map[database.StoreProductKey]database.StoreProduct, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, store_id, code, external, name, raw_qty, raw_unit, item_id, created_at, updated_at
		FROM store_products WHERE store_id = $1
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[database.StoreProductKey]database.StoreProduct)
	for rows.Next() {
		var sp database.StoreProduct
		if err := rows.Scan(&sp.ID, &sp.StoreID, &sp.Code, &sp.External, &sp.Name, &sp.RawQty, &sp.RawUnit, &sp.ItemID, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		out[sp.Key()] = sp
	}
	return out, rows.Err()
}

// InsertStoreProducts upserts on (store_id, code) and always returns the
// persisted row (with its real id) via the EXCLUDED-column trick, since a
// bare ON CONFLICT DO NOTHING would suppress RETURNING on the conflict path.
func (r *PgxRepo) InsertStoreProducts(ctx context.Context, products []database.StoreProduct) (map[database.StoreProductKey]database.StoreProduct, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	out := make(map[database.StoreProductKey]database.StoreProduct, len(products))
	for _, p := range products {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO store_products (store_id, code, external, name, raw_qty, raw_unit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (store_id, code) DO UPDATE SET store_id = EXCLUDED.store_id
			RETURNING id
		`, p.StoreID, p.Code, p.External, p.Name, p.RawQty, p.RawUnit, now).Scan(&id)
		if err != nil {
			return nil, err
		}
		p.ID = id
		p.CreatedAt = now
		p.UpdatedAt = now
		out[p.Key()] = p
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgxRepo) OpenHistory(ctx context.Context, storeID int64) ([]database.PriceHistory, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT ph.id, ph.store_product_id, ph.start_date, ph.end_date, ph.price
		FROM price_history ph
		JOIN store_products sp ON sp.id = ph.store_product_id
		WHERE sp.store_id = $1 AND ph.end_date IS NULL
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.PriceHistory
	for rows.Next() {
		var h database.PriceHistory
		if err := rows.Scan(&h.ID, &h.StoreProductID, &h.StartDate, &h.EndDate, &h.Price); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PgxRepo) InsertHistory(ctx context.Context, rows []database.PriceHistory) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, h := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_history (store_product_id, start_date, end_date, price)
			VALUES ($1, $2, NULL, $3)
		`, h.StoreProductID, h.StartDate, h.Price); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PgxRepo) CloseHistory(ctx context.Context, ids []int64, endDate time.Time) error {
	_, err := r.Pool.Exec(ctx, `
		UPDATE price_history SET end_date = $1 WHERE id = ANY($2) AND end_date IS NULL
	`, endDate, ids)
	return err
}

func (r *PgxRepo) ReplaceCurrentPrices(ctx context.Context, storeID int64, rows []database.CurrentPrice) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM current_prices
		WHERE store_product_id IN (SELECT id FROM store_products WHERE store_id = $1)
	`, storeID); err != nil {
		return err
	}

	for _, c := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO current_prices (store_product_id, price) VALUES ($1, $2)
		`, c.StoreProductID, c.Price); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
