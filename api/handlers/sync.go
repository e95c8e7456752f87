package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

func StartSync(manager interfaces.SynchronizationManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "StartSync")
		defer span.Finish()

		if err := manager.Start(ctx); err != nil {
			respondErr(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"running": manager.IsRunning()})
	}
}

// StopSync blocks until every synchronizer has stopped.
func StopSync(manager interfaces.SynchronizationManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		manager.Stop()
		c.JSON(http.StatusOK, gin.H{"running": manager.IsRunning()})
	}
}
