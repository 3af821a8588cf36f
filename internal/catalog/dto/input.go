package dto

import "github.com/shopspring/decimal"

type ImportModelInput struct {
	Name    string
	Make    string
	TaxCode string
}

type AddPriceInput struct {
	ModelName   string
	BaseAmount  decimal.Decimal
	TaxAmount   decimal.Decimal
	LevyAmount  decimal.Decimal
	TotalAmount decimal.Decimal
	Colors      string
}
