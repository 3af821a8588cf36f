package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductModel struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Make      string    `db:"make" json:"make"`
	TaxCode   string    `db:"tax_code" json:"tax_code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Price is an immutable quotation. It is soft-closed by setting ExpiresAt, never deleted.
type Price struct {
	ID             string          `db:"id" json:"id"`
	ProductModelID string          `db:"product_model_id" json:"product_model_id"`
	ModelName      string          `db:"model_name" json:"model_name"` // joined
	BaseAmount     decimal.Decimal `db:"base_amount" json:"base_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	LevyAmount     decimal.Decimal `db:"levy_amount" json:"levy_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Colors         string          `db:"colors" json:"colors"`
	ColorKey       string          `db:"color_key" json:"-"`
	EffectiveAt    time.Time       `db:"effective_at" json:"effective_at"`
	ExpiresAt      *time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

func (p *Price) IsActive() bool {
	return p.ExpiresAt == nil
}

// CoversAt reports whether t falls in [EffectiveAt, ExpiresAt).
func (p *Price) CoversAt(t time.Time) bool {
	if t.Before(p.EffectiveAt) {
		return false
	}
	return p.ExpiresAt == nil || t.Before(*p.ExpiresAt)
}
