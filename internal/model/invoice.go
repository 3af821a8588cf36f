package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus is the fiscalization state of an invoice. Draft exists only in memory;
// the persisted states are Pending, Synced and Failed.
type SyncStatus string

const (
	SyncStatusDraft   SyncStatus = "DRAFT"
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusFailed  SyncStatus = "FAILED"
)

func ParseSyncStatus(s string) (SyncStatus, error) {
	switch st := SyncStatus(s); st {
	case SyncStatusDraft, SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown sync status %q", s)
	}
}

// IsTerminal reports whether the background loop must leave the invoice alone.
func (s SyncStatus) IsTerminal() bool {
	switch s {
	case SyncStatusSynced, SyncStatusFailed:
		return true
	case SyncStatusDraft, SyncStatusPending:
		return false
	default:
		panic(fmt.Sprintf("unhandled sync status %q", string(s)))
	}
}

type Invoice struct {
	ID              string          `db:"id" json:"id"`
	InvoiceNumber   string          `db:"invoice_number" json:"invoice_number"`
	USIN            string          `db:"usin" json:"usin"`
	CustomerID      *string         `db:"customer_id" json:"customer_id"`
	PaymentMode     int             `db:"payment_mode" json:"payment_mode"`
	InvoiceType     int             `db:"invoice_type" json:"invoice_type"`
	TotalQuantity   decimal.Decimal `db:"total_quantity" json:"total_quantity"`
	SaleValue       decimal.Decimal `db:"sale_value" json:"sale_value"`
	TaxCharged      decimal.Decimal `db:"tax_charged" json:"tax_charged"`
	FurtherTax      decimal.Decimal `db:"further_tax" json:"further_tax"`
	Discount        decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	SyncStatus      SyncStatus      `db:"sync_status" json:"sync_status"`
	FiscalID        *string         `db:"fiscal_id" json:"fiscal_id"`
	SyncMessage     string          `db:"sync_message" json:"sync_message"`
	RawResponse     *string         `db:"raw_response" json:"raw_response,omitempty"`
	SyncAttempts    int             `db:"sync_attempts" json:"sync_attempts"`
	SyncToken       *string         `db:"sync_token" json:"-"`
	SyncClaimedAt   *time.Time      `db:"sync_claimed_at" json:"-"`
	StatusUpdatedAt time.Time       `db:"status_updated_at" json:"status_updated_at"`
	OverrideReason  string          `db:"override_reason" json:"override_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	Items    []InvoiceLineItem `db:"-" json:"items"`
	Customer *Customer         `db:"-" json:"customer,omitempty"`

	// AuthorityReached is set on the invoice returned by a sync that contacted the
	// authority. It stays nil when nothing was sent.
	AuthorityReached *bool `db:"-" json:"-"`
}

func (i *Invoice) IsSynced() bool {
	return i.SyncStatus == SyncStatusSynced && i.FiscalID != nil && *i.FiscalID != ""
}

// ComputeTotals sums line values into the invoice header. No rounding is applied.
func (i *Invoice) ComputeTotals() {
	var qty, sale, tax, further, discount, total decimal.Decimal
	for _, item := range i.Items {
		qty = qty.Add(item.Quantity)
		sale = sale.Add(item.SaleValue)
		tax = tax.Add(item.TaxCharged)
		further = further.Add(item.FurtherTax)
		discount = discount.Add(item.Discount)
		total = total.Add(item.LineTotal())
	}
	i.TotalQuantity = qty
	i.SaleValue = sale
	i.TaxCharged = tax
	i.FurtherTax = further
	i.Discount = discount
	i.TotalAmount = total
}

// ChassisNumbers returns the chassis referenced by the invoice lines, in line order.
func (i *Invoice) ChassisNumbers() []string {
	var out []string
	for _, item := range i.Items {
		if item.ChassisNumber != nil && *item.ChassisNumber != "" {
			out = append(out, *item.ChassisNumber)
		}
	}
	return out
}

type InvoiceLineItem struct {
	ID              string          `db:"id" json:"id"`
	InvoiceID       string          `db:"invoice_id" json:"invoice_id"`
	LineNo          int             `db:"line_no" json:"line_no"`
	ItemCode        string          `db:"item_code" json:"item_code"`
	ItemName        string          `db:"item_name" json:"item_name"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	TaxRate         decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	SaleValue       decimal.Decimal `db:"sale_value" json:"sale_value"`
	TaxCharged      decimal.Decimal `db:"tax_charged" json:"tax_charged"`
	FurtherTax      decimal.Decimal `db:"further_tax" json:"further_tax"`
	Discount        decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	PCTCode         string          `db:"pct_code" json:"pct_code"`
	ChassisNumber   *string         `db:"chassis_number" json:"chassis_number"`
	EngineNumber    *string         `db:"engine_number" json:"engine_number"`
	InventoryUnitID *string         `db:"inventory_unit_id" json:"inventory_unit_id"`
}

// LineTotal is sale value plus tax charged plus further tax.
func (li *InvoiceLineItem) LineTotal() decimal.Decimal {
	return li.SaleValue.Add(li.TaxCharged).Add(li.FurtherTax)
}
