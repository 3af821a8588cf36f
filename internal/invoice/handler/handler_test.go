package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/handler"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInvoices struct {
	invoice.UseCase
	createErr error
	retryOp   string
	grant     dto.OverrideGrant
}

func (s *stubInvoices) CreateInvoiceWithOverride(_ context.Context, req *dto.SaleRequest, grant dto.OverrideGrant) (*model.Invoice, error) {
	s.grant = grant
	if grant.Credential != "mgr-key" {
		return nil, fmt.Errorf("%w: bad credential for %s", invoice.ErrOverrideNotAuthorized, grant.AuthorizedBy)
	}
	return &model.Invoice{ID: "inv-2", InvoiceNumber: req.InvoiceNumber, OverrideReason: grant.AuthorizedBy + ": " + grant.Reason}, nil
}

func (s *stubInvoices) CreateInvoice(_ context.Context, req *dto.SaleRequest) (*model.Invoice, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &model.Invoice{ID: "inv-1", InvoiceNumber: req.InvoiceNumber, SyncStatus: model.SyncStatusPending}, nil
}

func (s *stubInvoices) RetryFailed(_ context.Context, id, operator string) (*model.Invoice, error) {
	s.retryOp = operator
	return &model.Invoice{ID: id, SyncStatus: model.SyncStatusSynced}, nil
}

func (s *stubInvoices) GetInvoice(_ context.Context, id string) (*model.Invoice, error) {
	return nil, invoice.ErrNotFound
}

func newRouter(uc invoice.UseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler.NewInvoiceHandler(uc, logger.NewNop()).Register(r.Group("/api/v1"))
	return r
}

const sale = `{"invoice_number":"U1-0001","lines":[{"chassis_number":"ch-1","model_name":"CD70"}]}`

func TestCreateInvoice_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"unit unavailable", fmt.Errorf("%w: chassis CH-1 is SOLD", invoice.ErrUnitUnavailable), http.StatusConflict},
		{"duplicate chassis", invoice.ErrDuplicateChassis, http.StatusConflict},
		{"duplicate number", invoice.ErrDuplicateInvoiceNumber, http.StatusConflict},
		{"invalid", invoice.ErrInvalidSale, http.StatusBadRequest},
		{"busy", invoice.ErrChassisBusy, http.StatusLocked},
		{"unexpected", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&stubInvoices{createErr: tt.err})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(sale))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateInvoice_RequiresLines(t *testing.T) {
	r := newRouter(&stubInvoices{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(`{"invoice_number":"U1-0001","lines":[]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetry_RequiresOperator(t *testing.T) {
	uc := &stubInvoices{}
	r := newRouter(uc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/inv-1/retry", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/inv-1/retry", strings.NewReader(`{"operator":"ayesha"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ayesha", uc.retryOp)
}

func TestGetInvoice_NotFound(t *testing.T) {
	r := newRouter(&stubInvoices{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateWithOverride(t *testing.T) {
	body := `{"sale":` + sale + `,"authorized_by":"manager","reason":"re-issue"}`

	uc := &stubInvoices{}
	r := newRouter(uc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/override", strings.NewReader(body))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices/override", strings.NewReader(body))
	req.Header.Set(handler.OverrideKeyHeader, "mgr-key")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "manager", uc.grant.AuthorizedBy)
	assert.Equal(t, "re-issue", uc.grant.Reason)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices/override", strings.NewReader(`{"sale":`+sale+`}`))
	req.Header.Set(handler.OverrideKeyHeader, "mgr-key")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
