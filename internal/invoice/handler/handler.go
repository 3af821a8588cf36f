package handler

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	uc     invoice.UseCase
	logger logger.ZapLogger
}

func NewInvoiceHandler(uc invoice.UseCase, log logger.ZapLogger) *InvoiceHandler {
	return &InvoiceHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *InvoiceHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/invoices", h.CreateInvoice)
	rg.POST("/invoices/override", h.CreateWithOverride)
	rg.GET("/invoices", h.ListPending)
	rg.GET("/invoices/next-number", h.NextNumber)
	rg.GET("/invoices/:id", h.GetInvoice)
	rg.POST("/invoices/:id/sync", h.SyncInvoice)
	rg.POST("/invoices/:id/retry", h.RetryFailed)
	rg.GET("/chassis/:chassis/posted", h.ChassisPosted)
}

// CreateInvoice answers 201 once the invoice is stored locally. Callers read
// sync_status to learn whether it was also fiscalized.
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.uc.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// OverrideKeyHeader carries the operator credential for CreateWithOverride.
const OverrideKeyHeader = "X-Override-Key"

// CreateWithOverride invoices a chassis already on another invoice. Only
// configured operators presenting their key get through.
func (h *InvoiceHandler) CreateWithOverride(c *gin.Context) {
	var req dto.OverrideInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.uc.CreateInvoiceWithOverride(c.Request.Context(), &req.Sale, dto.OverrideGrant{
		AuthorizedBy: req.AuthorizedBy,
		Reason:       req.Reason,
		Credential:   c.GetHeader(OverrideKeyHeader),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	inv, err := h.uc.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) ListPending(c *gin.Context) {
	var q dto.ListInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}

	items, err := h.uc.ListPending(c.Request.Context(), q.Limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	total, err := h.uc.CountPending(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *InvoiceHandler) NextNumber(c *gin.Context) {
	number, err := h.uc.GenerateNextInvoiceNumber(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice_number": number})
}

func (h *InvoiceHandler) SyncInvoice(c *gin.Context) {
	inv, err := h.uc.SyncInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) RetryFailed(c *gin.Context) {
	var req dto.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.uc.RetryFailed(c.Request.Context(), c.Param("id"), req.Operator)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) ChassisPosted(c *gin.Context) {
	posted, err := h.uc.IsChassisUsedInPostedInvoice(c.Request.Context(), c.Param("chassis"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chassis_number": inventory.NormalizeChassis(c.Param("chassis")),
		"posted":         posted,
	})
}

func (h *InvoiceHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, invoice.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, invoice.ErrInvalidSale), errors.Is(err, inventory.ErrChassisRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, invoice.ErrUnitUnavailable),
		errors.Is(err, invoice.ErrDuplicateChassis),
		errors.Is(err, invoice.ErrDuplicateInvoiceNumber),
		errors.Is(err, invoice.ErrNotRetryable),
		errors.Is(err, invoice.ErrSyncInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, invoice.ErrOverrideNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, invoice.ErrChassisBusy):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	default:
		h.logger.Error("invoice request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
