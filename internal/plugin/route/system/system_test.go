package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	registryroute "github.com/recallhq/recall-service/internal/registry/route"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, loader := range registryroute.Loaders() {
		require.NoError(t, loader(r))
	}
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSystemRoutes_ReadinessLifecycle(t *testing.T) {
	r := newTestRouter(t)

	require.Equal(t, http.StatusOK, get(r, "/health").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(r, "/ready").Code)

	MarkReady()
	require.Equal(t, http.StatusOK, get(r, "/ready").Code)
}

func TestSystemRoutes_MetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.String())
}
