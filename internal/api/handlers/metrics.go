package handlers

import (
	"github.com/gin-gonic/gin"
)

// Metrics serves the Prometheus exposition of the engine's collector.
func (h *Handler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
