package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leozw/uptime-pulse/internal/scheduler"
	"go.uber.org/zap"
)

// RunCheckCycle runs one check cycle synchronously and reports what was
// recorded. The cycle outlives a disconnecting caller; it is bounded by the
// engine's cycle timeout instead.
func (h *Handler) RunCheckCycle(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())

	summary, err := h.cycles.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		h.logger.Error("Check cycle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"checked":  summary.Checked,
		"recorded": summary.Recorded,
		"results":  summary.Results,
	})
}
