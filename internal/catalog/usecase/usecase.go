package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/catalog"
	"github.com/fekuna/omnipos-fiscal-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxPriceAttempts = 3

type catalogUseCase struct {
	repo   catalog.Repository
	tx     database.Transactor
	logger logger.ZapLogger
	now    func() time.Time
}

type Option func(*catalogUseCase)

// WithClock overrides the time source used for effective/expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(uc *catalogUseCase) { uc.now = now }
}

func NewCatalogUseCase(repo catalog.Repository, tx database.Transactor, log logger.ZapLogger, opts ...Option) catalog.UseCase {
	uc := &catalogUseCase{
		repo:   repo,
		tx:     tx,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *catalogUseCase) ImportModel(ctx context.Context, input *dto.ImportModelInput) (*model.ProductModel, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, catalog.ErrModelRequired
	}

	existing, err := uc.repo.FindModelByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Models are immutable once created.
		return existing, nil
	}

	m := &model.ProductModel{
		ID:        uuid.New().String(),
		Name:      name,
		Make:      input.Make,
		TaxCode:   input.TaxCode,
		CreatedAt: uc.now().UTC(),
	}
	// A concurrent import of the same name is absorbed by the insert; re-read the winner.
	if err := uc.repo.CreateModel(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create product model: %w", err)
	}
	created, err := uc.repo.FindModelByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, catalog.ErrModelNotFound
	}

	uc.logger.Info("product model imported", zap.String("model", name), zap.String("id", created.ID))
	return created, nil
}

func (uc *catalogUseCase) EnsureModel(ctx context.Context, name string) (*model.ProductModel, error) {
	return uc.ImportModel(ctx, &dto.ImportModelInput{Name: name})
}

func (uc *catalogUseCase) AddPrice(ctx context.Context, input *dto.AddPriceInput) (*model.Price, error) {
	amounts := map[string]decimal.Decimal{
		"base":  input.BaseAmount,
		"tax":   input.TaxAmount,
		"levy":  input.LevyAmount,
		"total": input.TotalAmount,
	}
	for name, amt := range amounts {
		if amt.IsNegative() {
			return nil, fmt.Errorf("%w: %s amount %s", catalog.ErrInvalidAmount, name, amt)
		}
	}

	m, err := uc.EnsureModel(ctx, input.ModelName)
	if err != nil {
		return nil, err
	}

	colorKey := catalog.ColorKey(input.Colors)

	// A concurrent writer can take the active slot between our expire and insert;
	// the partial unique index rejects the loser, which then retries.
	for attempt := 1; ; attempt++ {
		now := uc.now().UTC()
		price := &model.Price{
			ID:             uuid.New().String(),
			ProductModelID: m.ID,
			ModelName:      m.Name,
			BaseAmount:     input.BaseAmount,
			TaxAmount:      input.TaxAmount,
			LevyAmount:     input.LevyAmount,
			TotalAmount:    input.TotalAmount,
			Colors:         strings.TrimSpace(input.Colors),
			ColorKey:       colorKey,
			EffectiveAt:    now,
			CreatedAt:      now,
		}

		err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			expired, err := uc.repo.ExpireActivePrice(ctx, m.ID, colorKey, now)
			if err != nil {
				return fmt.Errorf("failed to expire active price: %w", err)
			}
			if err := uc.repo.CreatePrice(ctx, price); err != nil {
				return err
			}
			if expired > 0 {
				uc.logger.Debug("superseded active price",
					zap.String("model", m.Name),
					zap.String("colors", colorKey),
				)
			}
			return nil
		})
		if err == nil {
			return price, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to add price: %w", err)
		}
		if attempt >= maxPriceAttempts {
			return nil, catalog.ErrPriceContended
		}
		uc.logger.Warn("active price contended, retrying",
			zap.String("model", m.Name),
			zap.Int("attempt", attempt),
		)
	}
}

func (uc *catalogUseCase) GetActivePrice(ctx context.Context, modelName string) (*model.Price, error) {
	return uc.GetActivePriceForColor(ctx, modelName, "")
}

// GetActivePriceForColor prefers an active price whose color list contains color
// and otherwise falls back to the first active price of the model.
func (uc *catalogUseCase) GetActivePriceForColor(ctx context.Context, modelName, color string) (*model.Price, error) {
	m, err := uc.findModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	prices, err := uc.repo.FindActivePrices(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, catalog.ErrNotFound
	}

	if strings.TrimSpace(color) != "" {
		for i := range prices {
			if catalog.MatchesColor(prices[i].Colors, color) {
				return &prices[i], nil
			}
		}
		uc.logger.Debug("no price for color, using first active price",
			zap.String("model", m.Name),
			zap.String("color", color),
		)
	}
	return &prices[0], nil
}

func (uc *catalogUseCase) GetPriceAt(ctx context.Context, modelName string, at time.Time) (*model.Price, error) {
	m, err := uc.findModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	p, err := uc.repo.FindPriceAt(ctx, m.ID, at)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (uc *catalogUseCase) ListPriceHistory(ctx context.Context, modelName string) ([]model.Price, error) {
	m, err := uc.findModel(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return uc.repo.ListPrices(ctx, m.ID)
}

func (uc *catalogUseCase) findModel(ctx context.Context, name string) (*model.ProductModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, catalog.ErrModelRequired
	}
	m, err := uc.repo.FindModelByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, catalog.ErrNotFound
	}
	return m, nil
}
