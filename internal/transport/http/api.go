package tradehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tradefan/internal/store/orderlog"
	"tradefan/internal/types"

	"github.com/gin-gonic/gin"
)

// QueryStore backs the read-only API.
type QueryStore interface {
	ListRecentSignals(ctx context.Context, limit int) ([]types.Signal, error)
	ListPositions(ctx context.Context, symbol, status string, limit, offset int) ([]types.Position, error)
	ListExecutionLogs(ctx context.Context, signalLogID int64, limit int) ([]types.ExecutionLogEntry, error)
}

// OrderStore backs the order audit queries.
type OrderStore interface {
	List(ctx context.Context, userID int64, limit int) ([]orderlog.Record, error)
}

type apiRouter struct {
	queries QueryStore
	orders  OrderStore
}

func newAPIRouter(queries QueryStore, orders OrderStore) *apiRouter {
	return &apiRouter{queries: queries, orders: orders}
}

func (r *apiRouter) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/signals", r.handleSignals)
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/open", r.handleOpenPositions)
	group.GET("/executions", r.handleExecutions)
	group.GET("/orders", r.handleOrders)
}

func (r *apiRouter) handleSignals(c *gin.Context) {
	if r.queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "query store not available"})
		return
	}
	signals, err := r.queries.ListRecentSignals(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (r *apiRouter) handlePositions(c *gin.Context) {
	r.listPositions(c, strings.ToUpper(strings.TrimSpace(c.Query("status"))))
}

func (r *apiRouter) handleOpenPositions(c *gin.Context) {
	r.listPositions(c, string(types.PositionOpen))
}

func (r *apiRouter) listPositions(c *gin.Context, status string) {
	if r.queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "query store not available"})
		return
	}
	symbol := strings.TrimSpace(c.Query("symbol"))
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)
	positions, err := r.queries.ListPositions(c.Request.Context(), symbol, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *apiRouter) handleExecutions(c *gin.Context) {
	if r.queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "query store not available"})
		return
	}
	signalLogID, _ := strconv.ParseInt(strings.TrimSpace(c.Query("signalLogId")), 10, 64)
	entries, err := r.queries.ListExecutionLogs(c.Request.Context(), signalLogID, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": entries, "count": len(entries)})
}

func (r *apiRouter) handleOrders(c *gin.Context) {
	if r.orders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order log not available"})
		return
	}
	userID, _ := strconv.ParseInt(strings.TrimSpace(c.Query("userId")), 10, 64)
	records, err := r.orders.List(c.Request.Context(), userID, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": records, "count": len(records)})
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil || v < 0 {
		return def
	}
	return v
}
