package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openprices/ingest/internal/database"
)

// ErrorSummary is an aggregate error-rate view over a trailing window,
// broken down by the error taxonomy category tagged in internal/pipeline
// (download, parsing, reconciliation).
type ErrorSummary struct {
	ErrorRate float64          `json:"errorRate"`
	TotalRuns int              `json:"totalRuns"`
	Errors    int              `json:"errors"`
	Categories []CategoryError `json:"categories"`
	TimeRange  string          `json:"timeRange"`
}

// CategoryError is the error count for one taxonomy category.
type CategoryError struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// GetErrorSummary returns ingestion error statistics for a trailing window.
// @Summary Get ingestion error summary
// @Description Returns error counts by taxonomy category over a trailing window
// @Tags ingestion
// @Produce json
// @Param hours query int false "Trailing window size in hours" default(24)
// @Success 200 {object} ErrorSummary
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/ingestion/error-summary [get]
func GetErrorSummary(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	pool := database.Pool()
	ctx := c.Request.Context()

	rows, err := pool.Query(ctx, `
		SELECT category, COUNT(*)
		FROM ingestion_errors
		WHERE created_at >= $1
		GROUP BY category
		ORDER BY category
	`, since)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to query error statistics"})
		return
	}
	defer rows.Close()

	categories := make([]CategoryError, 0)
	var totalErrors int
	for rows.Next() {
		var ce CategoryError
		if err := rows.Scan(&ce.Category, &ce.Count); err != nil {
			c.JSON(500, gin.H{"error": "failed to scan category"})
			return
		}
		categories = append(categories, ce)
		totalErrors += ce.Count
	}
	if rows.Err() != nil {
		c.JSON(500, gin.H{"error": "error iterating categories"})
		return
	}

	var totalRuns int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM ingestion_runs WHERE created_at >= $1`, since).Scan(&totalRuns); err != nil {
		c.JSON(500, gin.H{"error": "failed to count runs"})
		return
	}

	errorRate := 0.0
	if totalRuns > 0 {
		errorRate = float64(totalErrors) / float64(totalRuns)
	}

	c.JSON(200, ErrorSummary{
		ErrorRate:  errorRate,
		TotalRuns:  totalRuns,
		Errors:     totalErrors,
		Categories: categories,
		TimeRange:  strconv.Itoa(hours) + "h",
	})
}
