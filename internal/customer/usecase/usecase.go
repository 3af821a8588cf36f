package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/customer"
	"github.com/fekuna/omnipos-fiscal-service/internal/customer/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type customerUseCase struct {
	repo   customer.Repository
	logger logger.ZapLogger
	now    func() time.Time
}

func NewCustomerUseCase(repo customer.Repository, log logger.ZapLogger) customer.UseCase {
	return &customerUseCase{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
}

func (uc *customerUseCase) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (uc *customerUseCase) Resolve(ctx context.Context, input *dto.BuyerInput) (*model.Customer, error) {
	if input.IsEmpty() {
		return nil, nil
	}

	nationalID := strings.TrimSpace(input.NationalID)
	businessKey := BusinessNameKey(input.BusinessName)

	var existing *model.Customer
	var err error
	if nationalID != "" {
		if existing, err = uc.repo.FindByNationalID(ctx, nationalID); err != nil {
			return nil, err
		}
	}
	if existing == nil && input.IsDealer && businessKey != "" {
		if existing, err = uc.repo.FindByBusinessNameKey(ctx, businessKey); err != nil {
			return nil, err
		}
	}

	now := uc.now().UTC()

	if existing == nil {
		c := &model.Customer{
			ID:           uuid.New().String(),
			CustomerType: model.CustomerTypeIndividual,
			Name:         strings.TrimSpace(input.Name),
			NTN:          strings.TrimSpace(input.NTN),
			Phone:        strings.TrimSpace(input.Phone),
			Address:      strings.TrimSpace(input.Address),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if nationalID != "" {
			c.NationalID = &nationalID
		}
		if input.IsDealer {
			c.CustomerType = model.CustomerTypeDealer
			if businessKey != "" {
				c.BusinessNameKey = &businessKey
			}
			if c.Name == "" {
				c.Name = strings.TrimSpace(input.BusinessName)
			}
		}
		if err := uc.repo.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		uc.logger.Debug("customer created", zap.String("customer_id", c.ID))
		return c, nil
	}

	if applyNonEmpty(existing, input) {
		existing.UpdatedAt = now
		if err := uc.repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update customer: %w", err)
		}
	}
	return existing, nil
}

// BusinessNameKey folds a dealer name to its lookup key.
func BusinessNameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func applyNonEmpty(c *model.Customer, in *dto.BuyerInput) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&c.Name, in.Name)
	set(&c.NTN, in.NTN)
	set(&c.Phone, in.Phone)
	set(&c.Address, in.Address)
	return changed
}
