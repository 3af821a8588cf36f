package handler

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *InventoryHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/inventory", h.ReceiveUnit)
	rg.GET("/inventory", h.ListUnits)
	rg.GET("/inventory/:chassis", h.GetUnit)
}

func (h *InventoryHandler) ReceiveUnit(c *gin.Context) {
	var req dto.ReceiveUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	unit, err := h.uc.ReceiveUnit(c.Request.Context(), req.ToInput())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

func (h *InventoryHandler) GetUnit(c *gin.Context) {
	unit, err := h.uc.FindByChassis(c.Request.Context(), c.Param("chassis"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

func (h *InventoryHandler) ListUnits(c *gin.Context) {
	var q dto.ListUnitsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, count, err := h.uc.ListUnits(c.Request.Context(), &dto.UnitFilters{
		Status:   q.Status,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": count})
}

func (h *InventoryHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, inventory.ErrChassisRequired), errors.Is(err, inventory.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, inventory.ErrDuplicateUnit), errors.Is(err, inventory.ErrNotInStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("inventory request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
