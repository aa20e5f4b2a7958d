package respcache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-service/internal/config"
	ristrettobackend "github.com/recallhq/recall-service/internal/plugin/respcache/ristretto"
	"github.com/recallhq/recall-service/internal/respcache"
	"github.com/recallhq/recall-service/internal/security"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	backend, err := ristrettobackend.New(1 << 20)
	require.NoError(t, err)
	cache := respcache.New(backend, "1", time.Minute)
	cfg := config.DefaultConfig()

	r := gin.New()
	MountRoutes(r, cache, security.AuthMiddleware(&cfg))
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCacheRoutes_StoreAndLookup(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/v1/cache", map[string]any{
		"conversationId": "conv-1",
		"prompt":         "What's the capital of France?",
		"value":          "Paris.",
		"ttlSeconds":     30,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/v1/cache/lookup", map[string]any{
		"conversationId": "conv-1",
		"prompt":         "What's the capital of France?",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, true, out["hit"])
	require.Equal(t, "Paris.", out["value"])
}

func TestCacheRoutes_MissReturnsNotFound(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/cache/lookup", map[string]any{
		"conversationId": "conv-1",
		"prompt":         "never stored",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheRoutes_StructuredValueIsNotStored(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/v1/cache", map[string]any{
		"conversationId": "conv-1",
		"prompt":         "q",
		"value":          `{"tool_call": true}`,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/v1/cache/lookup", map[string]any{
		"conversationId": "conv-1",
		"prompt":         "q",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheRoutes_Invalidate(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPut, "/v1/cache", map[string]any{
		"conversationId": "conv-1", "prompt": "q", "value": "a",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/cache", map[string]any{
		"conversationId": "conv-1", "prompt": "q",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/v1/cache/lookup", map[string]any{
		"conversationId": "conv-1", "prompt": "q",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}
