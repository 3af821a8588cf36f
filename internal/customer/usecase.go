package customer

import (
	"context"

	"github.com/fekuna/omnipos-fiscal-service/internal/customer/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
)

type UseCase interface {
	// Resolve finds the buyer by national id (or dealer business name) and creates it
	// when unknown. Non-empty incoming fields overwrite stored ones.
	Resolve(ctx context.Context, input *dto.BuyerInput) (*model.Customer, error)
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}
