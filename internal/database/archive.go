package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Archive is the content-addressed audit record of one downloaded chain
// file. downloadPhase writes one per file after caching it, keyed by its
// SHA-256 checksum, so later runs can tell whether a chain republished the
// same bytes under a new filename.
type Archive struct {
	ID             string    `json:"id"` // arc_{uuid}, human-scannable in logs
	ChainID        int64     `json:"chain_id"`
	SourceURL      string    `json:"source_url"`
	Filename       string    `json:"filename"`
	OriginalFormat string    `json:"original_format"` // 'xml'
	ArchivePath    string    `json:"archive_path"`    // storage key under internal/storage
	ArchiveType    string    `json:"archive_type"`    // 'local', 's3'
	ContentType    *string   `json:"content_type"`
	FileSize       *int64    `json:"file_size"`
	Checksum       string    `json:"checksum"` // SHA-256 hex digest
	DownloadedAt   time.Time `json:"downloaded_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ArchiveFilterOptions describes archive listing filters. No function in this
// package takes it; GetArchivesByChain takes its chain id, limit and offset
// directly.
type ArchiveFilterOptions struct {
	ChainID   *int64
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// CreateArchive inserts or refreshes an archive record, keyed by its ID.
func CreateArchive(ctx context.Context, pool *pgxpool.Pool, archive *Archive) error {
	now := time.Now()
	archive.CreatedAt = now
	archive.UpdatedAt = now

	query := `
		INSERT INTO archives (
			id, chain_id, source_url, filename, original_format,
			archive_path, archive_type, content_type, file_size,
			checksum, downloaded_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			filename = EXCLUDED.filename,
			archive_path = EXCLUDED.archive_path,
			original_format = EXCLUDED.original_format,
			archive_type = EXCLUDED.archive_type,
			content_type = EXCLUDED.content_type,
			file_size = EXCLUDED.file_size,
			checksum = EXCLUDED.checksum,
			downloaded_at = EXCLUDED.downloaded_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := pool.Exec(ctx, query,
		archive.ID, archive.ChainID, archive.SourceURL, archive.Filename,
		archive.OriginalFormat, archive.ArchivePath, archive.ArchiveType,
		archive.ContentType, archive.FileSize,
		archive.Checksum, archive.DownloadedAt,
		archive.CreatedAt, archive.UpdatedAt,
	)

	return err
}

func scanArchive(row rowScanner) (*Archive, error) {
	var archive Archive
	err := row.Scan(
		&archive.ID, &archive.ChainID, &archive.SourceURL, &archive.Filename,
		&archive.OriginalFormat, &archive.ArchivePath, &archive.ArchiveType,
		&archive.ContentType, &archive.FileSize,
		&archive.Checksum, &archive.DownloadedAt,
		&archive.CreatedAt, &archive.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

const archiveColumns = `id, chain_id, source_url, filename, original_format,
	archive_path, archive_type, content_type, file_size,
	checksum, downloaded_at, created_at, updated_at`

// GetArchiveByChecksum looks up an archive by its checksum, used to detect
// when a chain republished identical file content across runs.
func GetArchiveByChecksum(ctx context.Context, pool *pgxpool.Pool, checksum string) (*Archive, error) {
	row := pool.QueryRow(ctx, `SELECT `+archiveColumns+` FROM archives WHERE checksum = $1 LIMIT 1`, checksum)
	return scanArchive(row)
}

// GetArchiveByID retrieves an archive by its ID.
func GetArchiveByID(ctx context.Context, pool *pgxpool.Pool, id string) (*Archive, error) {
	row := pool.QueryRow(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = $1`, id)
	return scanArchive(row)
}

// GetArchivesByChain retrieves archives for a chain with pagination.
func GetArchivesByChain(ctx context.Context, pool *pgxpool.Pool, chainID int64, limit, offset int) ([]Archive, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+archiveColumns+`
		FROM archives
		WHERE chain_id = $1
		ORDER BY downloaded_at DESC
		LIMIT $2 OFFSET $3
	`, chainID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	archives := make([]Archive, 0)
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, *archive)
	}

	return archives, rows.Err()
}

// CalculateChecksum calculates SHA-256 checksum for data
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// GenerateArchiveID generates a new archive ID with arc_ prefix
func GenerateArchiveID() string {
	return fmt.Sprintf("arc_%s", uuid.New().String())
}
