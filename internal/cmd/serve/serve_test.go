package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestAPIKeysFromEnv(t *testing.T) {
	keys := apiKeysFromEnv([]string{
		"RECALL_SERVICE_API_KEYS_CHAT_HOST=secret-1",
		"RECALL_SERVICE_API_KEYS_ADMIN=secret-2",
		"RECALL_SERVICE_API_KEYS_EMPTY=",
		"RECALL_SERVICE_PORT=8080",
		"PATH=/usr/bin",
	})
	require.Equal(t, map[string]string{
		"secret-1": "chat-host",
		"secret-2": "admin",
	}, keys)
}

func TestCORSMiddleware_AllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware("https://chat.example.com"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware(""))

	req := httptest.NewRequest(http.MethodOptions, "/v1/memories", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}
