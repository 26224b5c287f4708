package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/openprices/ingest/internal/database"
)

// ListRunsRequest represents query parameters for listing ingestion runs
type ListRunsRequest struct {
	ChainID int64  `form:"chainId" json:"chainId"`
	Status  string `form:"status" json:"status" jsonschema:"enum=pending,enum=running,enum=completed,enum=failed"`
	Limit   int    `form:"limit" json:"limit" binding:"min=1,max=100" jsonschema:"minimum=1,maximum=100"`
	Offset  int    `form:"offset" json:"offset" binding:"min=0" jsonschema:"minimum=0"`
}

// ListRunsResponse represents the response for listing ingestion runs
type ListRunsResponse struct {
	Runs  []database.IngestionRun `json:"runs" jsonschema:"required"`
	Total int                     `json:"total" jsonschema:"required"`
}

// ListRuns returns a paginated list of ingestion runs with optional filters
// @Summary List ingestion runs
// @Description Returns a paginated list of ingestion runs with optional chain and status filters
// @Tags ingestion
// @Accept json
// @Produce json
// @Param chainId query int false "Filter by chain id"
// @Param status query string false "Filter by status" Enums(pending, running, completed, failed)
// @Param limit query int false "Number of items to return" default(20) minimum(1) maximum(100)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListRunsResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/runs [get]
func ListRuns(c *gin.Context) {
	var req ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	query := `
		SELECT id, chain_id, source, status, started_at, completed_at,
		       total_files, processed_files, total_entries, processed_entries,
		       error_count, created_at
		FROM ingestion_runs
		WHERE 1=1
	`
	countQuery := "SELECT COUNT(*) FROM ingestion_runs WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if req.ChainID != 0 {
		query += fmt.Sprintf(" AND chain_id = $%d", argIdx)
		countQuery += fmt.Sprintf(" AND chain_id = $%d", argIdx)
		args = append(args, req.ChainID)
		argIdx++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		countQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, req.Status)
		argIdx++
	}

	var total int
	if err := pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count runs"})
		return
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
		return
	}
	defer rows.Close()

	runs := []database.IngestionRun{}
	for rows.Next() {
		var run database.IngestionRun
		if err := rows.Scan(
			&run.ID, &run.ChainID, &run.Source, &run.Status,
			&run.StartedAt, &run.CompletedAt, &run.TotalFiles, &run.ProcessedFiles,
			&run.TotalEntries, &run.ProcessedEntries, &run.ErrorCount, &run.CreatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan run"})
			return
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating runs"})
		return
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Total: total})
}

// GetRun returns a single ingestion run by ID
// @Summary Get ingestion run
// @Description Returns a single ingestion run by its ID
// @Tags ingestion
// @Accept json
// @Produce json
// @Param runId path int true "Run ID"
// @Success 200 {object} database.IngestionRun
// @Failure 404 {object} map[string]string "Run not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/runs/{runId} [get]
func GetRun(c *gin.Context) {
	runID := c.Param("runId")

	pool := database.Pool()
	ctx := c.Request.Context()

	query := `
		SELECT id, chain_id, source, status, started_at, completed_at,
		       total_files, processed_files, total_entries, processed_entries,
		       error_count, created_at
		FROM ingestion_runs
		WHERE id = $1
	`

	var run database.IngestionRun
	err := pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.ChainID, &run.Source, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.TotalFiles, &run.ProcessedFiles,
		&run.TotalEntries, &run.ProcessedEntries, &run.ErrorCount, &run.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListFilesRequest represents query parameters for listing ingestion files
type ListFilesRequest struct {
	Limit  int `form:"limit" json:"limit" binding:"min=1,max=100" jsonschema:"minimum=1,maximum=100"`
	Offset int `form:"offset" json:"offset" binding:"min=0" jsonschema:"minimum=0"`
}

// ListFilesResponse represents the response for listing ingestion files
type ListFilesResponse struct {
	Files []database.IngestionFile `json:"files" jsonschema:"required"`
	Total int                      `json:"total" jsonschema:"required"`
}

// ListFiles returns a paginated list of files for a run
// @Summary List ingestion files
// @Description Returns a paginated list of files for a specific ingestion run
// @Tags ingestion
// @Accept json
// @Produce json
// @Param runId path int true "Run ID"
// @Param limit query int false "Number of items to return" default(50) minimum(1) maximum(100)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListFilesResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/runs/{runId}/files [get]
func ListFiles(c *gin.Context) {
	runID := c.Param("runId")

	var req ListFilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	var total int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM ingestion_files WHERE run_id = $1", runID).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count files"})
		return
	}

	query := `
		SELECT id, run_id, filename, file_type, file_size, sha256, status,
		       entry_count, processed_at, created_at
		FROM ingestion_files
		WHERE run_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := pool.Query(ctx, query, runID, req.Limit, req.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch files"})
		return
	}
	defer rows.Close()

	files := []database.IngestionFile{}
	for rows.Next() {
		var file database.IngestionFile
		if err := rows.Scan(
			&file.ID, &file.RunID, &file.Filename, &file.FileType, &file.FileSize,
			&file.SHA256, &file.Status, &file.EntryCount, &file.ProcessedAt, &file.CreatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan file"})
			return
		}
		files = append(files, file)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating files"})
		return
	}

	c.JSON(http.StatusOK, ListFilesResponse{Files: files, Total: total})
}

// ListErrorsRequest represents query parameters for listing ingestion errors
type ListErrorsRequest struct {
	Limit  int `form:"limit" json:"limit" binding:"min=1,max=100" jsonschema:"minimum=1,maximum=100"`
	Offset int `form:"offset" json:"offset" binding:"min=0" jsonschema:"minimum=0"`
}

// ListErrorsResponse represents the response for listing ingestion errors
type ListErrorsResponse struct {
	Errors []database.IngestionError `json:"errors" jsonschema:"required"`
	Total  int                       `json:"total" jsonschema:"required"`
}

// ListErrors returns a paginated list of errors for a run
// @Summary List ingestion errors
// @Description Returns a paginated list of errors for a specific ingestion run
// @Tags ingestion
// @Accept json
// @Produce json
// @Param runId path int true "Run ID"
// @Param limit query int false "Number of items to return" default(50) minimum(1) maximum(100)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListErrorsResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/runs/{runId}/errors [get]
func ListErrors(c *gin.Context) {
	runID := c.Param("runId")

	var req ListErrorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	var total int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM ingestion_errors WHERE run_id = $1", runID).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count errors"})
		return
	}

	query := `
		SELECT id, run_id, file_id, category, message, severity, created_at
		FROM ingestion_errors
		WHERE run_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := pool.Query(ctx, query, runID, req.Limit, req.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch errors"})
		return
	}
	defer rows.Close()

	errs := []database.IngestionError{}
	for rows.Next() {
		var e database.IngestionError
		if err := rows.Scan(&e.ID, &e.RunID, &e.FileID, &e.Category, &e.Message, &e.Severity, &e.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan error"})
			return
		}
		errs = append(errs, e)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating errors"})
		return
	}

	c.JSON(http.StatusOK, ListErrorsResponse{Errors: errs, Total: total})
}

// GetStatsRequest represents query parameters for getting ingestion stats
type GetStatsRequest struct {
	From string `form:"from" json:"from" binding:"required" jsonschema:"required"`
	To   string `form:"to" json:"to" binding:"required" jsonschema:"required"`
}

// StatsBucket represents a single time bucket in stats
type StatsBucket struct {
	Label       string `json:"label" jsonschema:"required"` // "24h", "7d", "30d"
	TotalRuns   int    `json:"totalRuns" jsonschema:"required"`
	Completed   int    `json:"completed" jsonschema:"required"`
	Failed      int    `json:"failed" jsonschema:"required"`
	Running     int    `json:"running" jsonschema:"required"`
	Pending     int    `json:"pending" jsonschema:"required"`
	TotalFiles  int    `json:"totalFiles" jsonschema:"required"`
	TotalErrors int    `json:"totalErrors" jsonschema:"required"`
}

// GetStatsResponse represents the response for ingestion stats
type GetStatsResponse struct {
	Buckets []StatsBucket `json:"buckets" jsonschema:"required"`
}

// GetStats returns aggregated statistics for a time range, bucketed at
// 24h/7d/30d trailing the "to" date (clamped to "from" if that's sooner).
// @Summary Get ingestion stats
// @Description Returns aggregated statistics for ingestion runs within a time range (24h/7d/30d buckets)
// @Tags ingestion
// @Accept json
// @Produce json
// @Param from query string true "Start date (RFC3339 format)"
// @Param to query string true "End date (RFC3339 format)"
// @Success 200 {object} GetStatsResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/stats [get]
func GetStats(c *gin.Context) {
	var req GetStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date format, use RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date format, use RFC3339"})
		return
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	buckets := []StatsBucket{{Label: "24h"}, {Label: "7d"}, {Label: "30d"}}
	windows := map[string]time.Duration{"24h": 24 * time.Hour, "7d": 7 * 24 * time.Hour, "30d": 30 * 24 * time.Hour}

	for i := range buckets {
		bucketFrom := to.Add(-windows[buckets[i].Label])
		if bucketFrom.Before(from) {
			bucketFrom = from
		}

		err := pool.QueryRow(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'completed'),
				COUNT(*) FILTER (WHERE status = 'failed'),
				COUNT(*) FILTER (WHERE status = 'running'),
				COUNT(*) FILTER (WHERE status = 'pending'),
				COALESCE(SUM(total_files), 0)
			FROM ingestion_runs
			WHERE created_at >= $1 AND created_at <= $2
		`, bucketFrom, to).Scan(
			&buckets[i].TotalRuns, &buckets[i].Completed, &buckets[i].Failed,
			&buckets[i].Running, &buckets[i].Pending, &buckets[i].TotalFiles,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
			return
		}

		err = pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM ingestion_errors WHERE created_at >= $1 AND created_at <= $2
		`, bucketFrom, to).Scan(&buckets[i].TotalErrors)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch error stats"})
			return
		}
	}

	c.JSON(http.StatusOK, GetStatsResponse{Buckets: buckets})
}

// ListChainsResponse represents the response for listing known chains
type ListChainsResponse struct {
	Chains []database.Chain `json:"chains" jsonschema:"required"`
}

// ListChains returns every chain discovered so far (see internal/catalog).
// @Summary List known chains
// @Description Returns every chain the catalog scraper has discovered
// @Tags ingestion
// @Produce json
// @Success 200 {object} ListChainsResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/chains [get]
func ListChains(c *gin.Context) {
	pool := database.Pool()
	ctx := c.Request.Context()

	rows, err := pool.Query(ctx, `SELECT id, full_id, subchain_id, name, created_at, updated_at FROM chains ORDER BY name`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch chains"})
		return
	}
	defer rows.Close()

	result := []database.Chain{}
	for rows.Next() {
		var ch database.Chain
		if err := rows.Scan(&ch.ID, &ch.FullID, &ch.SubchainID, &ch.Name, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan chain"})
			return
		}
		result = append(result, ch)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating chains"})
		return
	}

	c.JSON(http.StatusOK, ListChainsResponse{Chains: result})
}
