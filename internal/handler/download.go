package handler

import (
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/aggregator"
	"github.com/kexi/pypi-cache-proxy/internal/model"
	"github.com/kexi/pypi-cache-proxy/internal/util"
)

// downloadBufferPool reuses copy buffers across concurrent distribution
// file downloads instead of allocating one per request.
var downloadBufferPool = util.NewBufferPool(64 * 1024)

// DownloadHandler serves distribution file bytes at
// /index/<project>/<filename>, either from the local cache or via a
// redirect to the upstream URL.
type DownloadHandler struct {
	agg            *aggregator.Aggregator
	logger         *zap.Logger
	binaryMIMEType bool
}

// NewDownloadHandler creates a DownloadHandler. When binaryMIMEType is
// set, cached files are served with Content-Type
// application/octet-stream regardless of their extension.
func NewDownloadHandler(agg *aggregator.Aggregator, binaryMIMEType bool, logger *zap.Logger) *DownloadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadHandler{agg: agg, binaryMIMEType: binaryMIMEType, logger: logger}
}

// Handle serves GET /index/<project>/<filename>.
func (h *DownloadHandler) Handle(c *gin.Context) {
	project := model.NormalizeName(c.Param("project"))
	filename := c.Param("filename")

	path, err := h.agg.GetFile(project, filename)
	if err != nil {
		if _, ok := err.(*aggregator.NotFound); ok {
			c.Status(http.StatusNotFound)
			return
		}
		h.logger.Error("resolving file", zap.String("project", project), zap.String("file", filename), zap.Error(err))
		c.Status(http.StatusBadGateway)
		return
	}

	// FileCache.Get returns the upstream URL itself, rather than a local
	// path, when caching is disabled or the download failed: redirect
	// the client straight to the origin in that case.
	if u, parseErr := url.Parse(path); parseErr == nil && u.Scheme != "" {
		c.Redirect(http.StatusFound, path)
		return
	}

	h.serveLocalFile(c, path, filename)
}

// serveLocalFile streams a cached distribution file from disk using a
// pooled copy buffer.
func (h *DownloadHandler) serveLocalFile(c *gin.Context, path, filename string) {
	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("opening cached file", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "data": nil})
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "data": nil})
		return
	}

	contentType := "application/octet-stream"
	if !h.binaryMIMEType {
		if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
			contentType = guessed
		}
	}

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(filename)+`"`)
	c.Header("Content-Length", strconv.FormatInt(stat.Size(), 10))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)

	buf := downloadBufferPool.Get()
	defer downloadBufferPool.Put(buf)
	if _, err := util.CopyBuffer(c.Writer, f, *buf); err != nil {
		h.logger.Error("streaming cached file", zap.String("path", path), zap.Error(err))
	}
}
