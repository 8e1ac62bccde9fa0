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

// FilesHandler serves the per-project file listing at /index/<project>/.
type FilesHandler struct {
	agg    *aggregator.Aggregator
	logger *zap.Logger
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(agg *aggregator.Aggregator, logger *zap.Logger) *FilesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilesHandler{agg: agg, logger: logger}
}

// Handle serves GET /index/<project>/.
func (h *FilesHandler) Handle(c *gin.Context) {
	project := model.NormalizeName(c.Param("project"))

	files, err := h.agg.ListFiles(project)
	if err != nil {
		if _, ok := err.(*aggregator.NotFound); ok {
			c.Status(http.StatusNotFound)
			return
		}
		h.logger.Error("listing files", zap.String("project", project), zap.Error(err))
		c.Status(http.StatusBadGateway)
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
			return model.SerializeJSON(buf, project, files, true)
		}
		c.Header("Content-Type", "text/html")
		return model.SerializeHTML(buf, files)
	})
}
