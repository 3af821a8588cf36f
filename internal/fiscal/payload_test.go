package fiscal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() *model.Invoice {
	chassis := "CH-001"
	inv := &model.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "USIN0-0001",
		USIN:          "USIN0",
		PaymentMode:   1,
		InvoiceType:   1,
		CreatedAt:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		Items: []model.InvoiceLineItem{{
			LineNo:        1,
			ItemCode:      "MC",
			ItemName:      "CD-70 Red",
			Quantity:      decimal.NewFromInt(1),
			TaxRate:       decimal.NewFromInt(18),
			SaleValue:     decimal.NewFromInt(100000),
			TaxCharged:    decimal.NewFromInt(18000),
			FurtherTax:    decimal.Zero,
			Discount:      decimal.Zero,
			TotalAmount:   decimal.NewFromInt(118000),
			PCTCode:       "87112010",
			ChassisNumber: &chassis,
		}},
	}
	inv.ComputeTotals()
	return inv
}

func TestBuildPayload_Golden(t *testing.T) {
	cnic := "35202-1234567-1"
	buyer := &model.Customer{Name: "Ali Raza", NationalID: &cnic, Phone: "03001111111"}

	p := BuildPayload(sampleInvoice(), buyer, EnvironmentConfig{POSID: 123456})

	data, err := json.MarshalIndent(p, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "payload", append(data, '\n'))
}
