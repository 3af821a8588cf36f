package handler

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-fiscal-service/internal/settings"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsHandler struct {
	provider *settings.Provider
	logger   logger.ZapLogger
}

func NewSettingsHandler(provider *settings.Provider, log logger.ZapLogger) *SettingsHandler {
	return &SettingsHandler{
		provider: provider,
		logger:   log,
	}
}

func (h *SettingsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/settings/environment", h.GetEnvironment)
	rg.PUT("/settings/environment", h.SetEnvironment)
}

type setEnvironmentRequest struct {
	Name     string `json:"name" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

func (h *SettingsHandler) GetEnvironment(c *gin.Context) {
	env, err := h.provider.Active(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load active environment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":    env.Name,
		"usin":      env.USIN,
		"available": h.provider.Environments(),
	})
}

func (h *SettingsHandler) SetEnvironment(c *gin.Context) {
	var req setEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provider.SetActive(c.Request.Context(), req.Name, req.Operator); err != nil {
		if errors.Is(err, settings.ErrUnknownEnvironment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to switch environment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": req.Name})
}
