package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/jobs"
	"github.com/openprices/ingest/internal/reconcile"
	"github.com/openprices/ingest/internal/storage"
)

// TestE2EReconciliationAndArchiving runs the catalog/reconciliation/archive
// pieces of the pipeline against a real Postgres instance, skipping the
// network-facing scraper stage (covered separately by internal/scrapers'
// own tests against fixture servers).
func TestE2EReconciliationAndArchiving(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := setupTestDatabase(ctx)
	require.NoError(t, err)
	defer postgresContainer.Terminate(ctx)

	connStr, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, database.Connect(ctx, connStr, 10, 2, 0, 0))
	defer database.Close()

	setupTestSchema(ctx, t)

	pool := database.Pool()
	chainID := insertTestChain(ctx, t, pool)
	storeID := insertTestStore(ctx, t, pool, chainID)

	t.Run("ReconcileFirstSnapshot", func(t *testing.T) {
		repo := &reconcile.PgxRepo{Pool: pool}
		day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		parsed := []reconcile.ParsedProduct{
			{StoreID: storeID, Code: "1001", External: false, Name: "Milk 1L", Quantity: 1, Unit: database.UnitLiter, Price: 150},
			{StoreID: storeID, Code: "3858881234567", External: true, Name: "Branded Cereal", Quantity: 500, Unit: database.UnitGram, Price: 420},
		}

		stats, err := reconcile.Reconcile(ctx, repo, storeID, parsed, day1, day1)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NewItems) // only the external product creates an Item row
		assert.Equal(t, 2, stats.NewStoreProducts)
		assert.Equal(t, 2, stats.NewIntervals)
		assert.Equal(t, 2, stats.CurrentPriceRows)
	})

	t.Run("ReconcileSecondSnapshotPriceChangeAndDisappearance", func(t *testing.T) {
		repo := &reconcile.PgxRepo{Pool: pool}
		day2 := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)

		// Milk's price moved, and cereal no longer appears in this snapshot.
		parsed := []reconcile.ParsedProduct{
			{StoreID: storeID, Code: "1001", External: false, Name: "Milk 1L", Quantity: 1, Unit: database.UnitLiter, Price: 165},
		}

		stats, err := reconcile.Reconcile(ctx, repo, storeID, parsed, day2, day2)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.ClosedChanged)
		assert.Equal(t, 1, stats.ClosedDisappeared)
		assert.Equal(t, 1, stats.NewIntervals)

		var currentMilkPrice int64
		err = pool.QueryRow(ctx, `
			SELECT cp.price FROM current_prices cp
			JOIN store_products sp ON sp.id = cp.store_product_id
			WHERE sp.store_id = $1 AND sp.code = '1001'
		`, storeID).Scan(&currentMilkPrice)
		require.NoError(t, err)
		assert.Equal(t, int64(165), currentMilkPrice)

		var cerealCurrentRows int
		err = pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM current_prices cp
			JOIN store_products sp ON sp.id = cp.store_product_id
			WHERE sp.store_id = $1 AND sp.code = '3858881234567'
		`, storeID).Scan(&cerealCurrentRows)
		require.NoError(t, err)
		assert.Equal(t, 0, cerealCurrentRows, "disappeared product should have no open current price")
	})

	t.Run("LinkExternalItems", func(t *testing.T) {
		// Seed an external store product whose Item doesn't exist yet at
		// reconcile time (simulating an Item inserted by a later run).
		var productID int64
		err := pool.QueryRow(ctx, `
			INSERT INTO store_products (store_id, code, external, name, raw_qty, raw_unit)
			VALUES ($1, '3858887654321', true, 'Late-Linked Juice', '1', 'l')
			RETURNING id
		`, storeID).Scan(&productID)
		require.NoError(t, err)

		_, err = pool.Exec(ctx, `
			INSERT INTO items (code, name, quantity, unit) VALUES ('3858887654321', 'Late-Linked Juice', 1, 'liter')
		`)
		require.NoError(t, err)

		linked, err := reconcile.LinkExternalItems(ctx, pool)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, linked, 1)

		var itemID *int64
		err = pool.QueryRow(ctx, `SELECT item_id FROM store_products WHERE id = $1`, productID).Scan(&itemID)
		require.NoError(t, err)
		require.NotNil(t, itemID)
	})

	t.Run("ArchiveAuditTrail", func(t *testing.T) {
		content := []byte("<xml>fixture</xml>")
		checksum := database.CalculateChecksum(content)
		size := int64(len(content))

		archive := &database.Archive{
			ID:             database.GenerateArchiveID(),
			ChainID:        chainID,
			SourceURL:      "http://example.com/prices.xml",
			Filename:       "prices.xml",
			OriginalFormat: "xml",
			ArchivePath:    "archives/test-chain/prices.xml",
			ArchiveType:    "local",
			FileSize:       &size,
			Checksum:       checksum,
			DownloadedAt:   time.Now(),
		}

		require.NoError(t, database.CreateArchive(ctx, pool, archive))

		byChecksum, err := database.GetArchiveByChecksum(ctx, pool, checksum)
		require.NoError(t, err)
		assert.Equal(t, archive.ID, byChecksum.ID)

		byID, err := database.GetArchiveByID(ctx, pool, archive.ID)
		require.NoError(t, err)
		assert.Equal(t, checksum, byID.Checksum)

		byChain, err := database.GetArchivesByChain(ctx, pool, chainID, 10, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, byChain)
	})

	t.Run("CleanupOldArchives", func(t *testing.T) {
		stale := &database.Archive{
			ID:             database.GenerateArchiveID(),
			ChainID:        chainID,
			SourceURL:      "http://example.com/old.xml",
			Filename:       "old.xml",
			OriginalFormat: "xml",
			ArchivePath:    "archives/test-chain/old.xml",
			ArchiveType:    "local",
			Checksum:       "stale-checksum",
			DownloadedAt:   time.Now().AddDate(0, 0, -60),
		}
		require.NoError(t, database.CreateArchive(ctx, pool, stale))

		cfg := jobs.RetentionConfig{ArchiveRetentionDays: 30, IngestionRunRetentionDays: 90}
		require.NoError(t, jobs.CleanupOldArchives(ctx, pool, cfg))

		_, err := database.GetArchiveByID(ctx, pool, stale.ID)
		assert.Error(t, err, "stale archive should have been removed")
	})

	t.Run("StorageOperations", func(t *testing.T) {
		tempDir := t.TempDir()
		storageBackend, err := storage.NewLocalStorage(filepath.Join(tempDir, "archives"))
		require.NoError(t, err)
		testStorageOperations(ctx, t, storageBackend)
	})
}

func setupTestDatabase(ctx context.Context) (*postgres.PostgresContainer, error) {
	return postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(60*time.Second),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(1).
					WithStartupTimeout(60*time.Second),
			),
		),
	)
}

// setupTestSchema creates a minimal schema mirroring the shape of the
// ambient/domain tables internal/database's types describe.
func setupTestSchema(ctx context.Context, t *testing.T) {
	pool := database.Pool()

	schema := `
		CREATE TABLE IF NOT EXISTS chains (
			id bigserial PRIMARY KEY,
			full_id text NOT NULL,
			subchain_id int,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (full_id, subchain_id)
		);

		CREATE TABLE IF NOT EXISTS stores (
			id bigserial PRIMARY KEY,
			chain_id bigint NOT NULL REFERENCES chains(id),
			store_id int NOT NULL,
			name text NOT NULL,
			city text,
			address text,
			type text NOT NULL DEFAULT 'unknown',
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (chain_id, store_id)
		);

		CREATE TABLE IF NOT EXISTS items (
			id bigserial PRIMARY KEY,
			code text NOT NULL UNIQUE,
			name text NOT NULL,
			quantity double precision NOT NULL,
			unit text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS store_products (
			id bigserial PRIMARY KEY,
			store_id bigint NOT NULL REFERENCES stores(id),
			code text NOT NULL,
			external boolean NOT NULL DEFAULT false,
			name text NOT NULL,
			raw_qty text NOT NULL DEFAULT '',
			raw_unit text NOT NULL DEFAULT '',
			item_id bigint REFERENCES items(id),
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (store_id, code)
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id bigserial PRIMARY KEY,
			store_product_id bigint NOT NULL REFERENCES store_products(id),
			start_date date NOT NULL,
			end_date date,
			price bigint NOT NULL
		);

		CREATE TABLE IF NOT EXISTS current_prices (
			store_product_id bigint PRIMARY KEY REFERENCES store_products(id),
			price bigint NOT NULL
		);

		CREATE TABLE IF NOT EXISTS archives (
			id text PRIMARY KEY,
			chain_id bigint NOT NULL REFERENCES chains(id),
			source_url text NOT NULL,
			filename text NOT NULL,
			original_format text NOT NULL,
			archive_path text NOT NULL,
			archive_type text NOT NULL,
			content_type text,
			file_size bigint,
			checksum text NOT NULL UNIQUE,
			downloaded_at timestamptz NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS ingestion_runs (
			id bigserial PRIMARY KEY,
			chain_id bigint REFERENCES chains(id),
			source text NOT NULL,
			status text NOT NULL,
			started_at timestamptz,
			completed_at timestamptz,
			total_files int NOT NULL DEFAULT 0,
			processed_files int NOT NULL DEFAULT 0,
			total_entries int NOT NULL DEFAULT 0,
			processed_entries int NOT NULL DEFAULT 0,
			error_count int NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS ingestion_files (
			id bigserial PRIMARY KEY,
			run_id bigint NOT NULL REFERENCES ingestion_runs(id) ON DELETE CASCADE,
			filename text NOT NULL,
			file_type text NOT NULL,
			file_size bigint NOT NULL DEFAULT 0,
			sha256 text NOT NULL DEFAULT '',
			status text NOT NULL,
			entry_count int NOT NULL DEFAULT 0,
			processed_at timestamptz,
			created_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS ingestion_errors (
			id bigserial PRIMARY KEY,
			run_id bigint NOT NULL REFERENCES ingestion_runs(id) ON DELETE CASCADE,
			file_id bigint REFERENCES ingestion_files(id),
			category text NOT NULL,
			message text NOT NULL,
			severity text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		);
	`

	_, err := pool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}
}

func insertTestChain(ctx context.Context, t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var chainID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO chains (full_id, name) VALUES ('1234567890123', 'Test Chain') RETURNING id
	`).Scan(&chainID)
	require.NoError(t, err)
	return chainID
}

func insertTestStore(ctx context.Context, t *testing.T, pool *pgxpool.Pool, chainID int64) int64 {
	t.Helper()
	var storeID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO stores (chain_id, store_id, name) VALUES ($1, 1, 'Test Store') RETURNING id
	`, chainID).Scan(&storeID)
	require.NoError(t, err)
	return storeID
}

func testStorageOperations(ctx context.Context, t *testing.T, storageBackend storage.Storage) {
	testKey := "test/test-file.txt"
	testContent := []byte("test content")

	err := storageBackend.Put(ctx, testKey, testContent, nil)
	require.NoError(t, err)

	retrieved, err := storageBackend.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, testContent, retrieved)

	exists, err := storageBackend.Exists(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := storageBackend.GetInfo(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, testKey, info.Key)
	assert.Equal(t, int64(len(testContent)), info.Size)

	err = storageBackend.Delete(ctx, testKey)
	require.NoError(t, err)

	exists, _ = storageBackend.Exists(ctx, testKey)
	assert.False(t, exists)
}
