package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealth serves GET /health.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": nil})
}
