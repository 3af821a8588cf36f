package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/catalog"
	"github.com/fekuna/omnipos-fiscal-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	uc     catalog.UseCase
	logger logger.ZapLogger
}

func NewCatalogHandler(uc catalog.UseCase, log logger.ZapLogger) *CatalogHandler {
	return &CatalogHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *CatalogHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/models", h.ImportModel)
	rg.POST("/prices", h.AddPrice)
	rg.GET("/prices/active", h.GetActivePrice)
	rg.GET("/prices/at", h.GetPriceAt)
	rg.GET("/prices/history", h.ListPriceHistory)
}

func (h *CatalogHandler) ImportModel(c *gin.Context) {
	var req dto.ImportModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.uc.ImportModel(c.Request.Context(), &dto.ImportModelInput{
		Name:    req.Name,
		Make:    req.Make,
		TaxCode: req.TaxCode,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *CatalogHandler) AddPrice(c *gin.Context) {
	var req dto.AddPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.uc.AddPrice(c.Request.Context(), req.ToInput())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *CatalogHandler) GetActivePrice(c *gin.Context) {
	var q dto.PriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.uc.GetActivePriceForColor(c.Request.Context(), q.Model, q.Color)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) GetPriceAt(c *gin.Context) {
	var q dto.PriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}

	p, err := h.uc.GetPriceAt(c.Request.Context(), q.Model, q.At)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) ListPriceHistory(c *gin.Context) {
	var q dto.PriceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prices, err := h.uc.ListPriceHistory(c.Request.Context(), q.Model)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": prices, "total": len(prices)})
}

func (h *CatalogHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrModelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrInvalidAmount), errors.Is(err, catalog.ErrModelRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrPriceContended):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("catalog request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
