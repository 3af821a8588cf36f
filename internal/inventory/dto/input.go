package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiveUnitInput struct {
	ChassisNumber string
	EngineNumber  string
	ModelName     string
	Color         string
	CostPrice     decimal.Decimal
	SalePrice     decimal.Decimal
	PurchaseDate  *time.Time
}

type ImplicitReceiptInput struct {
	ChassisNumber string
	EngineNumber  string
	ModelName     string
	Color         string
	InvoiceID     string
	InvoiceNumber string
}
