package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-fiscal-service/internal/reconcile"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SyncHandler struct {
	loop   *reconcile.Loop
	logger logger.ZapLogger
}

func NewSyncHandler(loop *reconcile.Loop, log logger.ZapLogger) *SyncHandler {
	return &SyncHandler{
		loop:   loop,
		logger: log,
	}
}

func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/sync/status", h.Status)
	rg.POST("/sync/run", h.Run)
}

// Status returns the result of the last reconciliation pass.
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.loop.Last())
}

// Run triggers a pass and waits for it.
func (h *SyncHandler) Run(c *gin.Context) {
	st, err := h.loop.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.Error("manual reconciliation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, st)
}
