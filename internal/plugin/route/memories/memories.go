package memories

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/recallhq/recall-service/internal/memory"
	"github.com/recallhq/recall-service/internal/security"
)

// MountRoutes mounts the memory REST endpoints on the given router.
func MountRoutes(r *gin.Engine, svc *memory.Service, auth gin.HandlerFunc) {
	if svc == nil {
		return
	}
	g := r.Group("/v1", auth)

	g.POST("/interactions", func(c *gin.Context) { postInteraction(c, svc) })
	g.POST("/memories", func(c *gin.Context) { postMemory(c, svc) })
	g.POST("/memories/retrieve", func(c *gin.Context) { retrieveMemories(c, svc) })
	g.GET("/memories", func(c *gin.Context) { listMemories(c, svc) })
	g.DELETE("/memories", func(c *gin.Context) { deleteMemories(c, svc) })
	g.DELETE("/memories/all", func(c *gin.Context) { clearMemories(c, svc) })
}

type interactionRequest struct {
	ConversationID string `json:"conversationId"`
	UserMessage    string `json:"userMessage"`
	AssistantReply string `json:"assistantReply"`
}

func postInteraction(c *gin.Context, svc *memory.Service) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := svc.SaveInteraction(c.Request.Context(), security.UserID(c), req.ConversationID, req.UserMessage, req.AssistantReply)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

type saveMemoryRequest struct {
	Content string `json:"content"`
}

func postMemory(c *gin.Context, svc *memory.Service) {
	var req saveMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := svc.SaveExplicit(c.Request.Context(), security.UserID(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

type retrieveRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`

	// Threshold is a pointer so an explicit 0 ("return everything") is
	// distinguishable from an omitted field ("use the default").
	Threshold *float64 `json:"threshold"`
}

func retrieveMemories(c *gin.Context, svc *memory.Service) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	threshold := -1.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	result, err := svc.Retrieve(c.Request.Context(), security.UserID(c), req.Query, req.Limit, threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listMemories(c *gin.Context, svc *memory.Service) {
	records, err := svc.ListMemories(c.Request.Context(), security.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": records, "count": len(records)})
}

// deleteMemories handles both exact-content deletion (?content=) and
// partial-match forgetting (?fragment=). Exactly one must be given.
func deleteMemories(c *gin.Context, svc *memory.Service) {
	content := c.Query("content")
	fragment := c.Query("fragment")
	if (content == "") == (fragment == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of content or fragment is required"})
		return
	}

	var deleted int
	var err error
	if content != "" {
		deleted, err = svc.DeleteMemory(c.Request.Context(), security.UserID(c), content)
	} else {
		deleted, err = svc.ForgetByPartialMatch(c.Request.Context(), security.UserID(c), fragment)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func clearMemories(c *gin.Context, svc *memory.Service) {
	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	deleted, err := svc.ClearAll(c.Request.Context(), security.UserID(c), confirm)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func writeError(c *gin.Context, err error) {
	switch {
	case memory.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, memory.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
