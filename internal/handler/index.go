// Package handler implements the Simple Repository API's HTTP
// surface: project listing, file listing, file download, and the
// cache-invalidation and health endpoints.
package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/aggregator"
	"github.com/kexi/pypi-cache-proxy/internal/model"
	"github.com/kexi/pypi-cache-proxy/internal/negotiate"
)

// IndexHandler serves the project listing at /index/.
type IndexHandler struct {
	agg    *aggregator.Aggregator
	logger *zap.Logger
}

// NewIndexHandler creates an IndexHandler.
func NewIndexHandler(agg *aggregator.Aggregator, logger *zap.Logger) *IndexHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexHandler{agg: agg, logger: logger}
}

// Handle serves GET /index/.
func (h *IndexHandler) Handle(c *gin.Context) {
	names, err := h.agg.ListProjects()
	if err != nil {
		h.logger.Error("listing projects", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "data": nil})
		return
	}

	rep, negErr := negotiate.NegotiateRepresentation(c.GetHeader("Accept"), c.Query("format"))
	if negErr != nil {
		c.JSON(http.StatusNotAcceptable, gin.H{"status": "error", "data": nil})
		return
	}

	writeNegotiated(c, rep, func(buf *bytes.Buffer) error {
		if rep == negotiate.RepresentationJSON {
			c.Header("Content-Type", "application/vnd.pypi.simple.v1+json")
			return model.SerializeProjectListJSON(buf, names)
		}
		c.Header("Content-Type", "text/html")
		return model.SerializeProjectListHTML(buf, names)
	})
}
