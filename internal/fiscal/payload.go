package fiscal

import (
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/shopspring/decimal"
)

const payloadTimeLayout = "2006-01-02 15:04:05"

// Payload is the invoice document posted to the fiscal authority.
type Payload struct {
	InvoiceNumber    string        `json:"InvoiceNumber"`
	POSID            int64         `json:"POSID"`
	USIN             string        `json:"USIN"`
	DateTime         string        `json:"DateTime"`
	BuyerNTN         string        `json:"BuyerNTN,omitempty"`
	BuyerCNIC        string        `json:"BuyerCNIC,omitempty"`
	BuyerName        string        `json:"BuyerName,omitempty"`
	BuyerPhoneNumber string        `json:"BuyerPhoneNumber,omitempty"`
	TotalBillAmount  float64       `json:"TotalBillAmount"`
	TotalQuantity    float64       `json:"TotalQuantity"`
	TotalSaleValue   float64       `json:"TotalSaleValue"`
	TotalTaxCharged  float64       `json:"TotalTaxCharged"`
	Discount         float64       `json:"Discount"`
	FurtherTax       float64       `json:"FurtherTax"`
	PaymentMode      int           `json:"PaymentMode"`
	InvoiceType      int           `json:"InvoiceType"`
	Items            []PayloadItem `json:"Items"`
}

type PayloadItem struct {
	ItemCode    string  `json:"ItemCode"`
	ItemName    string  `json:"ItemName"`
	Quantity    float64 `json:"Quantity"`
	PCTCode     string  `json:"PCTCode"`
	TaxRate     float64 `json:"TaxRate"`
	SaleValue   float64 `json:"SaleValue"`
	TotalAmount float64 `json:"TotalAmount"`
	TaxCharged  float64 `json:"TaxCharged"`
	Discount    float64 `json:"Discount"`
	FurtherTax  float64 `json:"FurtherTax"`
	InvoiceType int     `json:"InvoiceType"`
}

// BuildPayload maps a persisted invoice and its buyer onto the wire document.
// Amounts are converted to floats here and nowhere earlier.
func BuildPayload(inv *model.Invoice, buyer *model.Customer, env EnvironmentConfig) *Payload {
	p := &Payload{
		InvoiceNumber:   inv.InvoiceNumber,
		POSID:           env.POSID,
		USIN:            inv.USIN,
		DateTime:        inv.CreatedAt.UTC().Format(payloadTimeLayout),
		TotalBillAmount: wire(inv.TotalAmount),
		TotalQuantity:   wire(inv.TotalQuantity),
		TotalSaleValue:  wire(inv.SaleValue),
		TotalTaxCharged: wire(inv.TaxCharged),
		Discount:        wire(inv.Discount),
		FurtherTax:      wire(inv.FurtherTax),
		PaymentMode:     inv.PaymentMode,
		InvoiceType:     inv.InvoiceType,
		Items:           make([]PayloadItem, 0, len(inv.Items)),
	}
	if buyer != nil {
		p.BuyerName = buyer.Name
		p.BuyerNTN = buyer.NTN
		p.BuyerPhoneNumber = buyer.Phone
		if buyer.NationalID != nil {
			p.BuyerCNIC = *buyer.NationalID
		}
	}

	for _, item := range inv.Items {
		p.Items = append(p.Items, PayloadItem{
			ItemCode:    item.ItemCode,
			ItemName:    item.ItemName,
			Quantity:    wire(item.Quantity),
			PCTCode:     item.PCTCode,
			TaxRate:     wire(item.TaxRate),
			SaleValue:   wire(item.SaleValue),
			TotalAmount: wire(item.TotalAmount),
			TaxCharged:  wire(item.TaxCharged),
			Discount:    wire(item.Discount),
			FurtherTax:  wire(item.FurtherTax),
			InvoiceType: inv.InvoiceType,
		})
	}
	return p
}

func wire(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
