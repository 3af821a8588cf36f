package catalog

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type UseCase interface {
	ImportModel(ctx context.Context, input *dto.ImportModelInput) (*model.ProductModel, error)
	EnsureModel(ctx context.Context, name string) (*model.ProductModel, error)
	AddPrice(ctx context.Context, input *dto.AddPriceInput) (*model.Price, error)
	GetActivePrice(ctx context.Context, modelName string) (*model.Price, error)
	GetActivePriceForColor(ctx context.Context, modelName, color string) (*model.Price, error)
	GetPriceAt(ctx context.Context, modelName string, at time.Time) (*model.Price, error)
	ListPriceHistory(ctx context.Context, modelName string) ([]model.Price, error)
}
