package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeys.List(c.Request.Context(), orgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

// CreateAPIKey returns the raw key exactly once; afterwards only the mask
// is ever shown again.
func (s *Server) CreateAPIKey(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "unparseable JSON"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "name is required"))
		return
	}

	key, raw, err := s.apiKeys.Create(c.Request.Context(), orgID(c), strings.TrimSpace(req.Name))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"api_key": key,
		"key":     raw,
	})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	if err := s.apiKeys.Revoke(c.Request.Context(), orgID(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
