package respcache

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/recallhq/recall-service/internal/respcache"
)

// MountRoutes mounts the response-cache endpoints on the given router.
// Cache entries are keyed by conversation, not user, so handlers never
// consult the user identity beyond passing auth.
func MountRoutes(r *gin.Engine, cache *respcache.Cache, auth gin.HandlerFunc) {
	if cache == nil || !cache.Available() {
		return
	}
	g := r.Group("/v1/cache", auth)

	g.POST("/lookup", func(c *gin.Context) { lookup(c, cache) })
	g.PUT("", func(c *gin.Context) { store(c, cache) })
	g.DELETE("", func(c *gin.Context) { invalidate(c, cache) })
}

type lookupRequest struct {
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
}

func lookup(c *gin.Context, cache *respcache.Cache) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, ok := cache.Get(c.Request.Context(), req.ConversationID, req.Prompt)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"hit": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hit": true, "value": value})
}

type storeRequest struct {
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	Value          string `json:"value"`

	// TTLSeconds overrides the configured expiry for this entry when
	// positive.
	TTLSeconds int `json:"ttlSeconds"`
}

func store(c *gin.Context, cache *respcache.Cache) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Uncacheable values (empty, structured payloads) are skipped
	// silently; the caller gets 204 either way.
	cache.Set(c.Request.Context(), req.ConversationID, req.Prompt, req.Value, time.Duration(req.TTLSeconds)*time.Second)
	c.Status(http.StatusNoContent)
}

func invalidate(c *gin.Context, cache *respcache.Cache) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cache.Invalidate(c.Request.Context(), req.ConversationID, req.Prompt)
	c.Status(http.StatusNoContent)
}
