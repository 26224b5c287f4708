package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openprices/ingest/internal/database"
)

// GetStorePricesRequest represents query parameters for getting store prices
type GetStorePricesRequest struct {
	Limit  int `form:"limit" binding:"min=1,max=500"`
	Offset int `form:"offset" binding:"min=0"`
}

// StorePrice is one StoreProduct's current price, as returned by the
// read-only prices API.
type StorePrice struct {
	StoreProductID int64  `json:"storeProductId"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	RawQty         string `json:"rawQuantity"`
	RawUnit        string `json:"rawUnit"`
	Price          *int64 `json:"price"` // cents; nil if no open PriceHistory interval
}

// GetStorePricesResponse represents the response for store prices
type GetStorePricesResponse struct {
	Prices []StorePrice `json:"prices"`
	Total  int          `json:"total"`
}

// GetStorePrices returns the current price of every product carried by a
// store.
// @Summary Get store prices
// @Description Returns the current price of every product known for a store
// @Tags prices
// @Produce json
// @Param storeId path int true "Store ID"
// @Param limit query int false "Number of items to return" default(100) minimum(1) maximum(500)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} GetStorePricesResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/prices/{storeId} [get]
func GetStorePrices(c *gin.Context) {
	storeID := c.Param("storeId")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "storeId is required"})
		return
	}

	var req GetStorePricesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 100
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM store_products WHERE store_id = $1`, storeID).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count prices"})
		return
	}

	rows, err := pool.Query(ctx, `
		SELECT sp.id, sp.code, sp.name, sp.raw_qty, sp.raw_unit, cp.price
		FROM store_products sp
		LEFT JOIN current_prices cp ON cp.store_product_id = sp.id
		WHERE sp.store_id = $1
		ORDER BY sp.name
		LIMIT $2 OFFSET $3
	`, storeID, req.Limit, req.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch prices"})
		return
	}
	defer rows.Close()

	prices := []StorePrice{}
	for rows.Next() {
		var p StorePrice
		if err := rows.Scan(&p.StoreProductID, &p.Code, &p.Name, &p.RawQty, &p.RawUnit, &p.Price); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan price"})
			return
		}
		prices = append(prices, p)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating prices"})
		return
	}

	c.JSON(http.StatusOK, GetStorePricesResponse{Prices: prices, Total: total})
}

// SearchItemsRequest represents query parameters for searching items
type SearchItemsRequest struct {
	Query   string `form:"q" binding:"required,min=3"`
	StoreID int64  `form:"storeId"`
	Limit   int    `form:"limit" binding:"min=1,max=100"`
}

// SearchItem is one StoreProduct search hit, with its current price if one
// is in effect.
type SearchItem struct {
	StoreProductID int64  `json:"storeProductId"`
	StoreID        int64  `json:"storeId"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Price          *int64 `json:"price"`
}

// SearchItemsResponse represents the response for item search
type SearchItemsResponse struct {
	Items []SearchItem `json:"items"`
	Total int          `json:"total"`
	Query string       `json:"query"`
}

// SearchItems searches for store products by name. The 3-character floor
// on q is required: name has no trigram index, and an ILIKE scan against
// every store product in the database is too expensive below that length.
// @Summary Search store products
// @Description Searches store products by name (minimum 3 characters)
// @Tags prices
// @Produce json
// @Param q query string true "Search term, minimum 3 characters"
// @Param storeId query int false "Restrict to one store"
// @Param limit query int false "Number of items to return" default(20) minimum(1) maximum(100)
// @Success 200 {object} SearchItemsResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/items/search [get]
func SearchItems(c *gin.Context) {
	var req SearchItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Query) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q must be at least 3 characters long"})
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	pool := database.Pool()
	ctx := c.Request.Context()

	countQuery := `SELECT COUNT(*) FROM store_products sp WHERE sp.name ILIKE $1`
	searchQuery := `
		SELECT sp.id, sp.store_id, sp.code, sp.name, cp.price
		FROM store_products sp
		LEFT JOIN current_prices cp ON cp.store_product_id = sp.id
		WHERE sp.name ILIKE $1
	`
	args := []interface{}{"%" + req.Query + "%"}
	argIdx := 2

	if req.StoreID != 0 {
		countQuery += " AND sp.store_id = $" + strconv.Itoa(argIdx)
		searchQuery += " AND sp.store_id = $" + strconv.Itoa(argIdx)
		args = append(args, req.StoreID)
		argIdx++
	}

	var total int
	if err := pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count items"})
		return
	}

	searchQuery += " ORDER BY sp.name LIMIT $" + strconv.Itoa(argIdx)
	args = append(args, req.Limit)

	rows, err := pool.Query(ctx, searchQuery, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search items"})
		return
	}
	defer rows.Close()

	items := []SearchItem{}
	for rows.Next() {
		var item SearchItem
		if err := rows.Scan(&item.StoreProductID, &item.StoreID, &item.Code, &item.Name, &item.Price); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan item"})
			return
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error iterating items"})
		return
	}

	c.JSON(http.StatusOK, SearchItemsResponse{Items: items, Total: total, Query: req.Query})
}
