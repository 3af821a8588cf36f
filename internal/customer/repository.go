package customer

import (
	"context"

	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type Repository interface {
	FindByID(ctx context.Context, id string) (*model.Customer, error)
	FindByNationalID(ctx context.Context, nationalID string) (*model.Customer, error)
	FindByBusinessNameKey(ctx context.Context, key string) (*model.Customer, error)
	Create(ctx context.Context, c *model.Customer) error
	Update(ctx context.Context, c *model.Customer) error
}
