package catalog

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type Repository interface {
	// Product models
	FindModelByName(ctx context.Context, name string) (*model.ProductModel, error)
	CreateModel(ctx context.Context, m *model.ProductModel) error

	// Prices
	FindActivePrices(ctx context.Context, modelID string) ([]model.Price, error)
	FindPriceAt(ctx context.Context, modelID string, at time.Time) (*model.Price, error)
	ListPrices(ctx context.Context, modelID string) ([]model.Price, error)
	CreatePrice(ctx context.Context, p *model.Price) error
	ExpireActivePrice(ctx context.Context, modelID, colorKey string, at time.Time) (int64, error)
}
