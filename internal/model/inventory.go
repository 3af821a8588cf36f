package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type UnitStatus string

const (
	UnitStatusInStock UnitStatus = "IN_STOCK"
	UnitStatusSold    UnitStatus = "SOLD"
)

// ReceiptKind tells a formal intake apart from a unit first recorded at sale time.
type ReceiptKind string

const (
	ReceiptKindIntake   ReceiptKind = "INTAKE"
	ReceiptKindImplicit ReceiptKind = "IMPLICIT"
)

// InventoryUnit is one physical vehicle, keyed by its chassis number.
type InventoryUnit struct {
	ID             string          `db:"id" json:"id"`
	ChassisNumber  string          `db:"chassis_number" json:"chassis_number"`
	EngineNumber   *string         `db:"engine_number" json:"engine_number"`
	ProductModelID *string         `db:"product_model_id" json:"product_model_id"`
	Color          string          `db:"color" json:"color"`
	Status         UnitStatus      `db:"status" json:"status"`
	CostPrice      decimal.Decimal `db:"cost_price" json:"cost_price"`
	SalePrice      decimal.Decimal `db:"sale_price" json:"sale_price"`
	PurchaseDate   *time.Time      `db:"purchase_date" json:"purchase_date"`
	ReceiptKind    ReceiptKind     `db:"receipt_kind" json:"receipt_kind"`
	SoldInvoiceID  *string         `db:"sold_invoice_id" json:"sold_invoice_id"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

func (u *InventoryUnit) IsSellable() bool {
	return u.Status == UnitStatusInStock
}
