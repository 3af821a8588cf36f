package dto

import (
	"strings"

	customerdto "github.com/fekuna/omnipos-fiscal-service/internal/customer/dto"
	"github.com/shopspring/decimal"
)

// SaleRequest is a completed sale handed over by the point of sale. It never
// carries an override; see OverrideGrant.
type SaleRequest struct {
	InvoiceNumber string       `json:"invoice_number"`
	Buyer         BuyerRequest `json:"buyer"`
	PaymentMode   int          `json:"payment_mode"`
	Lines         []SaleLine   `json:"lines" binding:"required,min=1,dive"`
}

type BuyerRequest struct {
	NationalID   string `json:"cnic"`
	Name         string `json:"name"`
	BusinessName string `json:"business_name"`
	NTN          string `json:"ntn"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	IsDealer     bool   `json:"is_dealer"`
}

func (b *BuyerRequest) ToInput() *customerdto.BuyerInput {
	return &customerdto.BuyerInput{
		NationalID:   b.NationalID,
		Name:         b.Name,
		BusinessName: b.BusinessName,
		NTN:          b.NTN,
		Phone:        b.Phone,
		Address:      b.Address,
		IsDealer:     b.IsDealer,
	}
}

// SaleLine is one invoice line. Amounts left nil are filled from the catalog when a
// model is named, and from the active environment defaults otherwise.
type SaleLine struct {
	ItemCode      string           `json:"item_code"`
	ItemName      string           `json:"item_name"`
	Quantity      decimal.Decimal  `json:"quantity"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
	SaleValue     *decimal.Decimal `json:"sale_value"`
	TaxCharged    *decimal.Decimal `json:"tax_charged"`
	FurtherTax    *decimal.Decimal `json:"further_tax"`
	Discount      *decimal.Decimal `json:"discount"`
	PCTCode       string           `json:"pct_code"`
	ChassisNumber string           `json:"chassis_number"`
	EngineNumber  string           `json:"engine_number"`
	ModelName     string           `json:"model_name"`
	Color         string           `json:"color"`
}

// OverrideGrant asks to invoice a chassis that already appears on an invoice.
// Credential is checked against the configured operator keys.
type OverrideGrant struct {
	AuthorizedBy string
	Reason       string
	Credential   string
}

// Normalize trims the operator-supplied fields.
func (g *OverrideGrant) Normalize() {
	g.AuthorizedBy = strings.TrimSpace(g.AuthorizedBy)
	g.Reason = strings.TrimSpace(g.Reason)
}

// OverrideInvoiceRequest is the body of the operator override route. The
// credential travels in the X-Override-Key header.
type OverrideInvoiceRequest struct {
	Sale         SaleRequest `json:"sale" binding:"required"`
	AuthorizedBy string      `json:"authorized_by" binding:"required"`
	Reason       string      `json:"reason" binding:"required"`
}

type RetryRequest struct {
	Operator string `json:"operator" binding:"required"`
}

type ListInvoicesQuery struct {
	Limit int `form:"limit"`
}
