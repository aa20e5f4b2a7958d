package memories

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-service/internal/config"
	"github.com/recallhq/recall-service/internal/memory"
	"github.com/recallhq/recall-service/internal/memtest"
	chromemstore "github.com/recallhq/recall-service/internal/plugin/longterm/chromem"
	"github.com/recallhq/recall-service/internal/plugin/shortterm/memdb"
	"github.com/recallhq/recall-service/internal/security"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := memory.NewService(memdb.New(), chromemstore.New(), memtest.NewEmbedder(), nil, memory.Options{})
	cfg := config.DefaultConfig()
	cfg.APIKeys = map[string]string{"test-key": "test-client"}

	r := gin.New()
	MountRoutes(r, svc, security.AuthMiddleware(&cfg))
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set("Authorization", "Bearer alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRoutes_RequireAuth(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	req.Header.Set("Authorization", "Bearer alice")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_InteractionRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/interactions", map[string]any{
		"conversationId": "conv-1",
		"userMessage":    "My name is Ada. I love hiking.",
		"assistantReply": "Nice to meet you!",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode(t, w)["created"])

	w = do(t, r, http.MethodGet, "/v1/memories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode(t, w)["count"])
}

func TestRoutes_ExplicitSaveAndRetrieve(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/memories", map[string]any{"content": "I live in Paris"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotEmpty(t, decode(t, w)["id"])

	w = do(t, r, http.MethodPost, "/v1/memories/retrieve", map[string]any{"query": "Paris", "limit": 5})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	memories := out["memories"].([]any)
	require.Len(t, memories, 1)
	require.Equal(t, false, out["degraded"])
}

func TestRoutes_RetrieveHonorsExplicitZeroThreshold(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/memories", map[string]any{"content": "I live in Paris"})
	require.Equal(t, http.StatusCreated, w.Code)

	// Omitted threshold applies the default, dropping an unrelated record.
	w = do(t, r, http.MethodPost, "/v1/memories/retrieve", map[string]any{"query": "quantum chromodynamics"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode(t, w)["memories"])

	// An explicit zero threshold returns everything.
	w = do(t, r, http.MethodPost, "/v1/memories/retrieve", map[string]any{"query": "quantum chromodynamics", "threshold": 0})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode(t, w)["memories"].([]any), 1)
}

func TestRoutes_ExplicitSaveRejectsEmptyContent(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/memories", map[string]any{"content": "  "})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_DeleteRequiresExactlyOneSelector(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodDelete, "/v1/memories", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/memories?content=a&fragment=b", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_DeleteByFragment(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/memories", map[string]any{"content": "I live in Paris"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/memories?fragment=paris", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w)["deleted"])
}

func TestRoutes_ClearAllRequiresConfirm(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodDelete, "/v1/memories/all", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/memories/all?confirm=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
