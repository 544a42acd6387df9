package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/services"
	"weallmesh/internal/infrastructure/repositories/memory"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStatusRouter(t *testing.T, seeds []string) (*gin.Engine, *StatusHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := services.NewPoolService(memory.NewSnapshotStore(), seeds, domain.DefaultRules(), clock.NewMock(), zaptest.NewLogger(t).Sugar(), nil)
	pool.Load(context.Background())

	handler := NewStatusHandler(pool, zaptest.NewLogger(t).Sugar())
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, handler
}

func TestStatusHandler_Health(t *testing.T) {
	router, _ := newStatusRouter(t, []string{"https://a.example"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["pool_size"])
}

func TestStatusHandler_Pool(t *testing.T) {
	router, _ := newStatusRouter(t, []string{"https://a.example", "https://b.example"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pool", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Purpose string              `json:"purpose"`
		Pool    []domain.PeerRecord `json:"pool"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "feed", body.Purpose)
	assert.Len(t, body.Pool, 2)
}

func TestStatusHandler_Rules(t *testing.T) {
	router, _ := newStatusRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var rules domain.Rules
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Equal(t, domain.DefaultRules(), rules)
}

func TestStatusHandler_SetPurpose(t *testing.T) {
	router, handler := newStatusRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purpose", strings.NewReader(`{"purpose":"webrtc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PurposeWebRTC, handler.pool.Purpose())

	// Unknown tags are accepted and ignored.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/purpose", strings.NewReader(`{"purpose":"telemetry"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PurposeWebRTC, handler.pool.Purpose())
}

func TestStatusHandler_SetPurposeRequiresBody(t *testing.T) {
	router, _ := newStatusRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purpose", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
