package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kexi/pypi-cache-proxy/internal/negotiate"
)

// writeNegotiated renders a representation through render into a
// buffer, negotiates a response content-coding from Accept-Encoding,
// and streams the (possibly compressed) result to the client.
func writeNegotiated(c *gin.Context, rep negotiate.Representation, render func(*bytes.Buffer) error) {
	c.Header("Vary", "Accept-Encoding, Accept")

	enc, err := negotiate.NegotiateEncoding(c.GetHeader("Accept-Encoding"))
	if err != nil {
		c.JSON(http.StatusNotAcceptable, gin.H{"status": "error", "data": nil})
		return
	}

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "data": nil})
		return
	}

	if enc != negotiate.EncodingIdentity {
		c.Header("Content-Encoding", enc.HeaderValue())
	}
	c.Status(http.StatusOK)

	encoder, err := negotiate.NewEncoder(c.Writer, enc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "data": nil})
		return
	}
	defer encoder.Close()

	if _, err := encoder.Write(buf.Bytes()); err != nil {
		c.Error(err)
	}
}
