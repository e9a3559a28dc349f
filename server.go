package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/models/reports"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// companyMiddleware resolves the tenant for the request. Authentication proper is
// handled by the gateway; this service trusts the forwarded company header.
func companyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := strconv.Atoi(c.GetHeader("x-company-id"))
		if err != nil || companyId <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid x-company-id header"})
			return
		}
		c.Request = c.Request.WithContext(utils.SetCompanyIdInContext(c.Request.Context(), companyId))
		c.Next()
	}
}

func writeError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var stockErr *utils.InsufficientStockError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     stockErr.Error(),
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	case errors.Is(err, utils.ErrItemNotTrackable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "server.go", "writeError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func recordMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.StockMovementInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		movement, err := workflow.RecordMovement(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, movement)
	}
}

func getItemStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		itemId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
			return
		}
		warehouseId, _ := strconv.Atoi(c.Query("warehouse_id"))

		var stock *models.ItemStock
		if warehouseId > 0 {
			stock, err = models.GetItemStockForWarehouse(c.Request.Context(), companyId, warehouseId, itemId)
		} else {
			stock, err = models.GetItemStock(c.Request.Context(), companyId, itemId)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	}
}

func movementHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		itemId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
			return
		}
		warehouseId, _ := strconv.Atoi(c.Query("warehouse_id"))
		limit, _ := strconv.Atoi(c.Query("limit"))

		var from, to time.Time
		if v := c.Query("from"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
				return
			}
			from = parsed
		}
		if v := c.Query("to"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
				return
			}
			// Include the whole business day.
			to = parsed.AddDate(0, 0, 1).Add(-time.Second)
		}

		movements, err := models.GetMovementHistory(c.Request.Context(), companyId, warehouseId, itemId, from, to, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

func transferStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.StockTransferInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := workflow.TransferStock(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func reverseMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		movementId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
			return
		}
		var body struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)

		reversal, err := workflow.ReverseMovement(c.Request.Context(), movementId, body.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reversal)
	}
}

func adjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ItemId      int             `json:"item_id" binding:"required"`
			WarehouseId int             `json:"warehouse_id"`
			Qty         decimal.Decimal `json:"qty" binding:"required"`
			UnitCost    *int64          `json:"unit_cost"`
			Note        string          `json:"note"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		movement, err := workflow.RecordAdjustment(c.Request.Context(), input.ItemId, input.WarehouseId, input.Qty, input.UnitCost, input.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, movement)
	}
}

func postBillStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		billId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bill id"})
			return
		}
		bill, err := models.GetBill(c.Request.Context(), companyId, billId)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := workflow.ProcessStockFromBill(c.Request.Context(), bill); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func postInvoiceStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}
		invoice, err := models.GetInvoice(c.Request.Context(), companyId, invoiceId)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := workflow.ProcessStockFromInvoice(c.Request.Context(), invoice); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func invoiceProfitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}
		profit, err := workflow.GetInvoiceProfit(c.Request.Context(), invoiceId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, profit)
	}
}

func stockValuationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		warehouseId, _ := strconv.Atoi(c.Query("warehouse_id"))
		asOf := time.Now().UTC()
		if v := c.Query("as_of"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be YYYY-MM-DD"})
				return
			}
			// Value the whole business day.
			asOf = parsed.AddDate(0, 0, 1).Add(-time.Second)
		}

		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=stock-valuation.xlsx")
			if err := reports.ExportStockValuationXlsx(c.Request.Context(), companyId, asOf, warehouseId, c.Writer); err != nil {
				writeError(c, err)
			}
			return
		}

		records, err := reports.GetStockValuationReport(c.Request.Context(), companyId, asOf, warehouseId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func lowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		records, err := models.GetLowStockItems(c.Request.Context(), companyId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// Ops tooling: replay a company's ledger and rewrite derived balances.
func stockRebuildHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, _ := utils.GetCompanyIdFromContext(c.Request.Context())
		if err := workflow.RebuildStockForCompany(c.Request.Context(), companyId); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-company-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api", companyMiddleware())
	api.POST("/stock/movements", recordMovementHandler())
	api.POST("/stock/adjustments", adjustmentHandler())
	api.POST("/stock/transfers", transferStockHandler())
	api.POST("/stock/movements/:id/reverse", reverseMovementHandler())
	api.GET("/stock/items/:id", getItemStockHandler())
	api.GET("/stock/items/:id/movements", movementHistoryHandler())
	api.POST("/bills/:id/post-stock", postBillStockHandler())
	api.POST("/invoices/:id/post-stock", postInvoiceStockHandler())
	api.GET("/invoices/:id/profit", invoiceProfitHandler())
	api.GET("/reports/stock-valuation", stockValuationHandler())
	api.GET("/reports/low-stock", lowStockHandler())
	api.POST("/internal/ops/stock/rebuild", stockRebuildHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
