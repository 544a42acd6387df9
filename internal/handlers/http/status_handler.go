package http

import (
	"net/http"

	"weallmesh/internal/core/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusHandler exposes local diagnostics over the agent's status
// server: pool contents, active rules and the purpose switch.
type StatusHandler struct {
	pool   ports.PoolManager
	logger *zap.SugaredLogger
}

func NewStatusHandler(pool ports.PoolManager, logger *zap.SugaredLogger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StatusHandler{pool: pool, logger: logger}
}

func (h *StatusHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/pool", h.Pool)
		v1.GET("/rules", h.Rules)
		v1.POST("/purpose", h.SetPurpose)
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"pool_size": h.pool.Size(),
	})
}

func (h *StatusHandler) Pool(c *gin.Context) {
	snap := h.pool.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"purpose":         snap.Purpose,
		"last_refresh_at": snap.LastRefreshAt,
		"pool":            snap.Pool,
	})
}

func (h *StatusHandler) Rules(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Rules())
}

type setPurposeRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

// SetPurpose mirrors the pool's forward-compatibility policy: unknown
// tags are accepted and ignored rather than rejected.
func (h *StatusHandler) SetPurpose(c *gin.Context) {
	var req setPurposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purpose is required"})
		return
	}

	h.pool.SetPurpose(req.Purpose)
	c.JSON(http.StatusOK, gin.H{
		"purpose": h.pool.Purpose(),
	})
}
