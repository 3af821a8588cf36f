package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ImportModelRequest struct {
	Name    string `json:"name" binding:"required"`
	Make    string `json:"make"`
	TaxCode string `json:"tax_code"`
}

type AddPriceRequest struct {
	ModelName   string          `json:"model_name" binding:"required"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	LevyAmount  decimal.Decimal `json:"levy_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Colors      string          `json:"colors"`
}

func (r *AddPriceRequest) ToInput() *AddPriceInput {
	return &AddPriceInput{
		ModelName:   r.ModelName,
		BaseAmount:  r.BaseAmount,
		TaxAmount:   r.TaxAmount,
		LevyAmount:  r.LevyAmount,
		TotalAmount: r.TotalAmount,
		Colors:      r.Colors,
	}
}

type PriceQuery struct {
	Model string    `form:"model" binding:"required"`
	Color string    `form:"color"`
	At    time.Time `form:"at" time_format:"2006-01-02T15:04:05Z07:00"`
}
