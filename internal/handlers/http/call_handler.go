package http

import (
	"context"
	"encoding/json"
	"net/http"

	"weallmesh/internal/core/ports"
	"weallmesh/internal/core/services"
	apperrors "weallmesh/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallHandler lets page code route one logical mesh operation through
// the resilient dispatcher: the agent picks the endpoint, retries by
// rotation and reports the first success.
type CallHandler struct {
	dispatcher *services.Dispatcher
	retries    int
	logger     *zap.SugaredLogger
}

func NewCallHandler(dispatcher *services.Dispatcher, retries int, logger *zap.SugaredLogger) *CallHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CallHandler{dispatcher: dispatcher, retries: retries, logger: logger}
}

func (h *CallHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/v1/call", h.Call)
}

type callRequest struct {
	Method  string          `json:"method"`
	Path    string          `json:"path" binding:"required"`
	Body    json.RawMessage `json:"body,omitempty"`
	Retries *int            `json:"retries,omitempty"`
}

func (h *CallHandler) Call(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	retries := h.retries
	if req.Retries != nil {
		retries = *req.Retries
	}

	var body any
	if len(req.Body) > 0 {
		body = req.Body
	}

	result, err := services.Dispatch(c.Request.Context(), h.dispatcher, retries,
		func(ctx context.Context, client ports.MeshClient) (json.RawMessage, error) {
			var out json.RawMessage
			if err := client.Do(ctx, req.Method, req.Path, body, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
	if err != nil {
		status := http.StatusBadGateway
		if apperrors.IsNoPeers(err) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warnw("proxied call failed", "path", req.Path, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
