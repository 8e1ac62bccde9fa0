package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/aggregator"
	"github.com/kexi/pypi-cache-proxy/internal/model"
)

// CacheHandler serves the cache-invalidation endpoints under /cache/.
type CacheHandler struct {
	agg    *aggregator.Aggregator
	logger *zap.Logger
}

// NewCacheHandler creates a CacheHandler.
func NewCacheHandler(agg *aggregator.Aggregator, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{agg: agg, logger: logger}
}

// HandleInvalidateList serves DELETE /cache/list.
func (h *CacheHandler) HandleInvalidateList(c *gin.Context) {
	h.agg.InvalidateList()
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": nil})
}

// HandleInvalidateProject serves DELETE /cache/<project>.
func (h *CacheHandler) HandleInvalidateProject(c *gin.Context) {
	project := model.NormalizeName(c.Param("project"))
	h.agg.InvalidateProject(project)
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": nil})
}
