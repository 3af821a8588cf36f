package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type UnitFilters struct {
	Status         string
	ProductModelID string
	ReceiptKind    string
	Page           int
	PageSize       int
}

type ReceiveUnitRequest struct {
	ChassisNumber string          `json:"chassis_number" binding:"required"`
	EngineNumber  string          `json:"engine_number"`
	ModelName     string          `json:"model_name" binding:"required"`
	Color         string          `json:"color"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PurchaseDate  *time.Time      `json:"purchase_date"`
}

func (r *ReceiveUnitRequest) ToInput() *ReceiveUnitInput {
	return &ReceiveUnitInput{
		ChassisNumber: r.ChassisNumber,
		EngineNumber:  r.EngineNumber,
		ModelName:     r.ModelName,
		Color:         r.Color,
		CostPrice:     r.CostPrice,
		SalePrice:     r.SalePrice,
		PurchaseDate:  r.PurchaseDate,
	}
}

type ListUnitsQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
