package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/catalog"
	"github.com/fekuna/omnipos-fiscal-service/internal/customer"
	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	inventorydto "github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/cache"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	lockAttempts   = 3
	lockRetryDelay = 100 * time.Millisecond
	lockKeyPrefix  = "fiscal:chassis:"
)

// PriceLookup supplies catalog prices for lines that name a model without amounts.
type PriceLookup interface {
	GetActivePriceForColor(ctx context.Context, modelName, color string) (*model.Price, error)
}

type Submitter interface {
	Submit(ctx context.Context, p *fiscal.Payload, env fiscal.EnvironmentConfig) (*fiscal.Response, error)
}

// EnvironmentSource loads the active fiscal environment once per operation.
type EnvironmentSource interface {
	Active(ctx context.Context) (fiscal.EnvironmentConfig, error)
}

type invoiceUseCase struct {
	repo       invoice.Repository
	units      inventory.UseCase
	prices     PriceLookup
	customers  customer.UseCase
	submitter  Submitter
	envs       EnvironmentSource
	tx         database.Transactor
	locker     cache.Locker
	publishers []invoice.EventPublisher
	logger     logger.ZapLogger
	now        func() time.Time
	leaseTTL   time.Duration
	lockTTL    time.Duration
	operators  map[string]string
}

type Option func(*invoiceUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *invoiceUseCase) { uc.now = now }
}

// WithLocker sets the per-chassis lock. Redis serializes sales across processes.
func WithLocker(l cache.Locker) Option {
	return func(uc *invoiceUseCase) { uc.locker = l }
}

// WithLeaseTTL sets how long a sync claim is honoured before another worker may take it over.
func WithLeaseTTL(d time.Duration) Option {
	return func(uc *invoiceUseCase) { uc.leaseTTL = d }
}

func WithLockTTL(d time.Duration) Option {
	return func(uc *invoiceUseCase) { uc.lockTTL = d }
}

// WithOverrideOperators sets the operators allowed to bypass the duplicate
// chassis guard, keyed by name with their credential as value.
func WithOverrideOperators(operators map[string]string) Option {
	return func(uc *invoiceUseCase) { uc.operators = operators }
}

func WithPublishers(p ...invoice.EventPublisher) Option {
	return func(uc *invoiceUseCase) { uc.publishers = append(uc.publishers, p...) }
}

func NewInvoiceUseCase(
	repo invoice.Repository,
	units inventory.UseCase,
	prices PriceLookup,
	customers customer.UseCase,
	submitter Submitter,
	envs EnvironmentSource,
	tx database.Transactor,
	log logger.ZapLogger,
	opts ...Option,
) invoice.UseCase {
	uc := &invoiceUseCase{
		repo:      repo,
		units:     units,
		prices:    prices,
		customers: customers,
		submitter: submitter,
		envs:      envs,
		tx:        tx,
		locker:    cache.NewMemoryLocker(),
		logger:    log,
		now:       time.Now,
		leaseTTL:  2 * time.Minute,
		lockTTL:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *invoiceUseCase) CreateInvoice(ctx context.Context, req *dto.SaleRequest) (*model.Invoice, error) {
	return uc.create(ctx, req, nil)
}

func (uc *invoiceUseCase) CreateInvoiceWithOverride(ctx context.Context, req *dto.SaleRequest, grant dto.OverrideGrant) (*model.Invoice, error) {
	grant.Normalize()
	if err := uc.authorizeOverride(grant); err != nil {
		uc.logger.Warn("duplicate chassis override refused",
			zap.String("authorized_by", grant.AuthorizedBy),
			zap.Error(err),
		)
		return nil, err
	}
	return uc.create(ctx, req, &grant)
}

func (uc *invoiceUseCase) authorizeOverride(grant dto.OverrideGrant) error {
	if grant.AuthorizedBy == "" || grant.Reason == "" {
		return fmt.Errorf("%w: operator and reason are required", invoice.ErrOverrideNotAuthorized)
	}
	want, ok := uc.operators[grant.AuthorizedBy]
	if !ok || want == "" {
		return fmt.Errorf("%w: %s may not override", invoice.ErrOverrideNotAuthorized, grant.AuthorizedBy)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(grant.Credential)) != 1 {
		return fmt.Errorf("%w: bad credential for %s", invoice.ErrOverrideNotAuthorized, grant.AuthorizedBy)
	}
	return nil
}

// create is the single creation path. grant is non-nil only once authorized.
func (uc *invoiceUseCase) create(ctx context.Context, req *dto.SaleRequest, grant *dto.OverrideGrant) (*model.Invoice, error) {
	if req == nil || len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", invoice.ErrInvalidSale)
	}

	env, err := uc.envs.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fiscal environment: %w", err)
	}

	items, err := uc.buildLines(ctx, req.Lines, env)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		if number, err = uc.nextNumber(ctx, env.USIN); err != nil {
			return nil, err
		}
	}

	now := uc.now().UTC()
	inv := &model.Invoice{
		ID:              uuid.New().String(),
		InvoiceNumber:   number,
		USIN:            env.USIN,
		PaymentMode:     req.PaymentMode,
		InvoiceType:     env.InvoiceType,
		SyncStatus:      model.SyncStatusDraft,
		SyncMessage:     invoice.MessageQueued,
		StatusUpdatedAt: now,
		CreatedAt:       now,
		Items:           items,
	}
	if inv.PaymentMode == 0 {
		inv.PaymentMode = 1
	}
	if grant != nil {
		inv.OverrideReason = fmt.Sprintf("%s: %s", grant.AuthorizedBy, grant.Reason)
	}
	for i := range inv.Items {
		inv.Items[i].InvoiceID = inv.ID
	}
	inv.ComputeTotals()

	release, err := uc.lockChassis(ctx, inv.ChassisNumbers())
	if err != nil {
		return nil, err
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := range inv.Items {
			if err := uc.allocate(ctx, inv, &inv.Items[i], req.Lines[i], grant); err != nil {
				return err
			}
		}

		buyer, err := uc.customers.Resolve(ctx, req.Buyer.ToInput())
		if err != nil {
			return fmt.Errorf("failed to resolve customer: %w", err)
		}
		if buyer != nil {
			inv.CustomerID = &buyer.ID
			inv.Customer = buyer
		}

		inv.SyncStatus = model.SyncStatusPending
		if err := uc.repo.Create(ctx, inv); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", invoice.ErrDuplicateInvoiceNumber, number)
			}
			return err
		}
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	uc.logger.Info("invoice saved locally",
		zap.String("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("total_amount", inv.TotalAmount.String()),
		zap.Strings("chassis", inv.ChassisNumbers()),
	)
	uc.publish(ctx, invoice.EventCreated, inv)

	// The invoice is durable from here on; sync problems only show in its status.
	if _, err := uc.sync(ctx, inv.ID, env); err != nil {
		uc.logger.Warn("inline fiscal sync did not complete",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Error(err),
		)
	}

	synced, err := uc.GetInvoice(context.WithoutCancel(ctx), inv.ID)
	if err != nil {
		uc.logger.Error("failed to reload invoice after sync", zap.String("invoice_id", inv.ID), zap.Error(err))
		return inv, nil
	}
	return synced, nil
}

// buildLines validates the requested lines and fills missing amounts from the
// catalog and the environment defaults.
func (uc *invoiceUseCase) buildLines(ctx context.Context, lines []dto.SaleLine, env fiscal.EnvironmentConfig) ([]model.InvoiceLineItem, error) {
	hundred := decimal.NewFromInt(100)
	seen := make(map[string]int, len(lines))
	items := make([]model.InvoiceLineItem, 0, len(lines))

	for i, line := range lines {
		lineNo := i + 1

		qty := line.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive", invoice.ErrInvalidSale, lineNo)
		}

		item := model.InvoiceLineItem{
			ID:       uuid.New().String(),
			LineNo:   lineNo,
			ItemCode: firstNonEmpty(line.ItemCode, env.DefaultItemCode),
			ItemName: firstNonEmpty(line.ItemName, line.ModelName),
			Quantity: qty,
			TaxRate:  env.TaxRate,
			Discount: env.Discount,
			PCTCode:  firstNonEmpty(line.PCTCode, env.DefaultPCTCode),
		}
		if line.TaxRate != nil {
			item.TaxRate = *line.TaxRate
		}
		if line.Discount != nil {
			item.Discount = *line.Discount
		}

		if chassis := inventory.NormalizeChassis(line.ChassisNumber); chassis != "" {
			if prev, dup := seen[chassis]; dup {
				return nil, fmt.Errorf("%w: chassis %s appears on lines %d and %d", invoice.ErrInvalidSale, chassis, prev, lineNo)
			}
			seen[chassis] = lineNo
			item.ChassisNumber = &chassis
		}
		if engine := strings.ToUpper(strings.TrimSpace(line.EngineNumber)); engine != "" {
			item.EngineNumber = &engine
		}

		if line.SaleValue != nil {
			item.SaleValue = *line.SaleValue
			item.TaxCharged = item.SaleValue.Mul(item.TaxRate).Div(hundred)
			item.FurtherTax = decimal.Zero
		} else {
			if strings.TrimSpace(line.ModelName) == "" {
				return nil, fmt.Errorf("%w: line %d: sale value or model name is required", invoice.ErrInvalidSale, lineNo)
			}
			price, err := uc.prices.GetActivePriceForColor(ctx, line.ModelName, line.Color)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return nil, fmt.Errorf("%w: line %d: no active price for model %s", invoice.ErrInvalidSale, lineNo, line.ModelName)
				}
				return nil, fmt.Errorf("failed to price line %d: %w", lineNo, err)
			}
			item.SaleValue = price.BaseAmount.Mul(qty)
			item.TaxCharged = price.TaxAmount.Mul(qty)
			item.FurtherTax = price.LevyAmount.Mul(qty)
		}
		if line.TaxCharged != nil {
			item.TaxCharged = *line.TaxCharged
		}
		if line.FurtherTax != nil {
			item.FurtherTax = *line.FurtherTax
		}

		for name, amt := range map[string]decimal.Decimal{
			"sale value":  item.SaleValue,
			"tax charged": item.TaxCharged,
			"further tax": item.FurtherTax,
			"discount":    item.Discount,
			"tax rate":    item.TaxRate,
		} {
			if amt.IsNegative() {
				return nil, fmt.Errorf("%w: line %d: %s must not be negative", invoice.ErrInvalidSale, lineNo, name)
			}
		}

		item.TotalAmount = item.LineTotal()
		items = append(items, item)
	}
	return items, nil
}

// allocate stages the inventory side of one line inside the creation transaction.
func (uc *invoiceUseCase) allocate(ctx context.Context, inv *model.Invoice, item *model.InvoiceLineItem, line dto.SaleLine, grant *dto.OverrideGrant) error {
	if item.ChassisNumber == nil {
		return nil
	}
	chassis := *item.ChassisNumber

	if err := uc.repo.LockChassis(ctx, chassis); err != nil {
		return err
	}

	unit, err := uc.units.ReserveForSale(ctx, chassis, inv.ID)
	switch {
	case err == nil:
	case errors.Is(err, inventory.ErrNotInStock):
		return fmt.Errorf("%w: %v", invoice.ErrUnitUnavailable, err)
	case errors.Is(err, inventory.ErrNotFound):
		unit = nil
	default:
		return fmt.Errorf("failed to reserve %s: %w", chassis, err)
	}

	if err := uc.checkChassisHistory(ctx, chassis, inv, grant); err != nil {
		return err
	}

	if unit == nil {
		if strings.TrimSpace(line.ModelName) == "" || strings.TrimSpace(line.Color) == "" {
			uc.logger.Warn("chassis not in inventory, invoicing without inventory link",
				zap.String("chassis", chassis),
				zap.String("invoice_number", inv.InvoiceNumber),
			)
			return nil
		}
		unit, err = uc.units.RecordImplicitReceipt(ctx, &inventorydto.ImplicitReceiptInput{
			ChassisNumber: chassis,
			EngineNumber:  line.EngineNumber,
			ModelName:     line.ModelName,
			Color:         line.Color,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
		})
		if err != nil {
			return err
		}
	}

	item.InventoryUnitID = &unit.ID
	if item.EngineNumber == nil && unit.EngineNumber != nil {
		item.EngineNumber = unit.EngineNumber
	}
	return nil
}

// checkChassisHistory rejects a chassis already on a fiscalized invoice or on one
// still waiting for the authority. An authorized override lets it through, loudly.
func (uc *invoiceUseCase) checkChassisHistory(ctx context.Context, chassis string, inv *model.Invoice, grant *dto.OverrideGrant) error {
	posted, err := uc.units.IsChassisEverInvoiced(ctx, chassis)
	if err != nil {
		return fmt.Errorf("failed to check chassis history: %w", err)
	}
	pending, err := uc.repo.CountChassisInvoices(ctx, chassis, []model.SyncStatus{model.SyncStatusPending}, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to check pending invoices: %w", err)
	}
	if !posted && pending == 0 {
		return nil
	}

	if grant == nil {
		return fmt.Errorf("%w: %s", invoice.ErrDuplicateChassis, chassis)
	}
	uc.logger.Warn("duplicate chassis guard bypassed by override",
		zap.String("chassis", chassis),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Bool("posted", posted),
		zap.Int("pending_invoices", pending),
		zap.String("authorized_by", grant.AuthorizedBy),
		zap.String("reason", grant.Reason),
	)
	return nil
}

func (uc *invoiceUseCase) SyncInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	env, err := uc.envs.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fiscal environment: %w", err)
	}
	return uc.sync(ctx, invoiceID, env)
}

// sync performs one submission attempt under the invoice's sync lease and records
// the outcome. It is the only code path that moves an invoice out of PENDING.
// It ignores caller cancellation: an abandoned request must not drop a response
// the authority already produced. The client's timeout and retry budget bound it.
func (uc *invoiceUseCase) sync(ctx context.Context, invoiceID string, env fiscal.EnvironmentConfig) (*model.Invoice, error) {
	ctx = context.WithoutCancel(ctx)
	now := uc.now().UTC()
	token := uuid.New().String()

	claimed, err := uc.repo.ClaimSync(ctx, invoiceID, token, now, now.Add(-uc.leaseTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to claim invoice for sync: %w", err)
	}
	if !claimed {
		inv, err := uc.GetInvoice(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.SyncStatus == model.SyncStatusPending {
			return inv, invoice.ErrSyncInFlight
		}
		return inv, nil
	}

	inv, err := uc.repo.FindByID(ctx, invoiceID)
	if err != nil || inv == nil {
		// Release the claim so the loop can pick the invoice up again.
		o := invoice.Outcome{Status: model.SyncStatusPending, Message: invoice.MessageQueued, At: now}
		if _, rerr := uc.repo.RecordOutcome(ctx, invoiceID, token, o); rerr != nil {
			uc.logger.Error("failed to release sync claim", zap.String("invoice_id", invoiceID), zap.Error(rerr))
		}
		if err == nil {
			err = invoice.ErrNotFound
		}
		return nil, err
	}

	outcome := uc.attempt(ctx, inv, env)

	recorded, err := uc.repo.RecordOutcome(ctx, inv.ID, token, outcome)
	if err != nil && database.IsUniqueViolation(err) && outcome.FiscalID != nil {
		outcome = invoice.Outcome{
			Status:  model.SyncStatusFailed,
			Message: fmt.Sprintf("fiscal id %s is already recorded on another invoice", *outcome.FiscalID),
			Raw:     outcome.Raw,
			At:      outcome.At,
			Contact: outcome.Contact,
		}
		recorded, err = uc.repo.RecordOutcome(ctx, inv.ID, token, outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record sync outcome: %w", err)
	}
	if !recorded {
		uc.logger.Warn("sync lease expired before outcome was recorded",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("outcome", string(outcome.Status)),
		)
		return uc.GetInvoice(ctx, inv.ID)
	}

	updated, err := uc.GetInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	updated.AuthorityReached = outcome.Contact.Reached()
	uc.logOutcome(updated, env)
	uc.publish(ctx, invoice.EventTypeFor(updated.SyncStatus), updated)
	return updated, nil
}

// attempt builds and submits the payload. Any failure along the way is folded
// into the returned outcome.
func (uc *invoiceUseCase) attempt(ctx context.Context, inv *model.Invoice, env fiscal.EnvironmentConfig) (o invoice.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("panic during fiscal submission",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.Any("panic", r),
			)
			o = invoice.Decide(nil, fmt.Errorf("panic: %v", r), uc.now().UTC())
		}
	}()

	if inv.OverrideReason == "" {
		for _, chassis := range inv.ChassisNumbers() {
			n, err := uc.repo.CountChassisInvoices(ctx, chassis, []model.SyncStatus{model.SyncStatusSynced}, inv.ID)
			if err != nil {
				return invoice.Decide(nil, err, uc.now().UTC())
			}
			if n > 0 {
				return invoice.Outcome{
					Status:  model.SyncStatusFailed,
					Message: fmt.Sprintf("duplicate chassis: %s is already on a fiscalized invoice", chassis),
					At:      uc.now().UTC(),
				}
			}
		}
	}

	var buyer *model.Customer
	if inv.CustomerID != nil {
		c, err := uc.customers.GetCustomer(ctx, *inv.CustomerID)
		if err != nil && !errors.Is(err, customer.ErrNotFound) {
			return invoice.Decide(nil, err, uc.now().UTC())
		}
		buyer = c
	}

	resp, err := uc.submitter.Submit(ctx, fiscal.BuildPayload(inv, buyer, env), env)
	return invoice.Decide(resp, err, uc.now().UTC())
}

func (uc *invoiceUseCase) logOutcome(inv *model.Invoice, env fiscal.EnvironmentConfig) {
	fields := []zap.Field{
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("environment", env.Name),
		zap.String("sync_status", string(inv.SyncStatus)),
		zap.Int("sync_attempts", inv.SyncAttempts),
		zap.String("message", inv.SyncMessage),
	}
	switch inv.SyncStatus {
	case model.SyncStatusSynced:
		uc.logger.Info("invoice fiscalized", append(fields, zap.Stringp("fiscal_id", inv.FiscalID))...)
	case model.SyncStatusPending:
		uc.logger.Warn("fiscal authority unreachable, invoice queued", fields...)
	case model.SyncStatusFailed:
		uc.logger.Error("invoice rejected by fiscal authority", fields...)
	case model.SyncStatusDraft:
		uc.logger.Error("unsaved invoice reached sync", fields...)
	default:
		panic("unhandled sync status " + string(inv.SyncStatus))
	}
}

func (uc *invoiceUseCase) RetryFailed(ctx context.Context, invoiceID, operator string) (*model.Invoice, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, fmt.Errorf("%w: operator is required", invoice.ErrInvalidSale)
	}

	inv, err := uc.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.SyncStatus != model.SyncStatusFailed {
		return nil, fmt.Errorf("%w: invoice %s is %s", invoice.ErrNotRetryable, inv.InvoiceNumber, inv.SyncStatus)
	}

	if inv.OverrideReason == "" {
		active := []model.SyncStatus{model.SyncStatusPending, model.SyncStatusSynced}
		for _, chassis := range inv.ChassisNumbers() {
			n, err := uc.repo.CountChassisInvoices(ctx, chassis, active, inv.ID)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				return nil, fmt.Errorf("%w: %s", invoice.ErrDuplicateChassis, chassis)
			}
		}
	}

	reset, err := uc.repo.ResetToPending(ctx, inv.ID, "retry requested by "+operator, uc.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to requeue invoice: %w", err)
	}
	if !reset {
		return nil, fmt.Errorf("%w: invoice %s changed state", invoice.ErrNotRetryable, inv.InvoiceNumber)
	}

	uc.logger.Info("failed invoice requeued by operator",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("operator", operator),
		zap.String("previous_message", inv.SyncMessage),
	)
	inv.SyncStatus = model.SyncStatusPending
	inv.SyncMessage = "retry requested by " + operator
	uc.publish(ctx, invoice.EventRetryRequested, inv)

	return uc.SyncInvoice(ctx, inv.ID)
}

func (uc *invoiceUseCase) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	inv, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoice.ErrNotFound
	}
	if inv.CustomerID != nil {
		c, err := uc.customers.GetCustomer(ctx, *inv.CustomerID)
		if err != nil && !errors.Is(err, customer.ErrNotFound) {
			return nil, err
		}
		inv.Customer = c
	}
	return inv, nil
}

func (uc *invoiceUseCase) ListPending(ctx context.Context, limit int) ([]model.Invoice, error) {
	return uc.repo.ListByStatus(ctx, model.SyncStatusPending, limit)
}

func (uc *invoiceUseCase) CountPending(ctx context.Context) (int, error) {
	return uc.repo.CountByStatus(ctx, model.SyncStatusPending)
}

func (uc *invoiceUseCase) GenerateNextInvoiceNumber(ctx context.Context) (string, error) {
	env, err := uc.envs.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load fiscal environment: %w", err)
	}
	return uc.nextNumber(ctx, env.USIN)
}

// nextNumber returns {usin}-{seq} with seq one past the highest existing number
// under that prefix, zero padded to four digits.
func (uc *invoiceUseCase) nextNumber(ctx context.Context, usin string) (string, error) {
	prefix := strings.TrimSpace(usin) + "-"

	last, err := uc.repo.FindLastNumber(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to read last invoice number: %w", err)
	}

	seq := 1
	if last != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if err != nil || n < 0 {
			uc.logger.Warn("unparseable invoice number, restarting sequence",
				zap.String("last", last),
				zap.String("prefix", prefix),
			)
		} else {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func (uc *invoiceUseCase) IsChassisUsedInPostedInvoice(ctx context.Context, chassis string) (bool, error) {
	return uc.units.IsChassisEverInvoiced(ctx, chassis)
}

// lockChassis takes the per-chassis locks in sorted order and returns a release func.
func (uc *invoiceUseCase) lockChassis(ctx context.Context, chassis []string) (func(), error) {
	keys := make([]string, 0, len(chassis))
	for _, c := range chassis {
		keys = append(keys, lockKeyPrefix+c)
	}
	sort.Strings(keys)

	owner := uuid.New().String()
	var held []string
	release := func() {
		for _, key := range held {
			if err := uc.locker.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
				uc.logger.Warn("failed to release chassis lock", zap.String("key", key), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		acquired := false
		for attempt := 0; attempt < lockAttempts; attempt++ {
			ok, err := uc.locker.AcquireLock(ctx, key, owner, uc.lockTTL)
			if err != nil {
				release()
				return nil, fmt.Errorf("failed to lock %s: %w", key, err)
			}
			if ok {
				acquired = true
				break
			}
			select {
			case <-ctx.Done():
				release()
				return nil, ctx.Err()
			case <-time.After(lockRetryDelay):
			}
		}
		if !acquired {
			release()
			return nil, fmt.Errorf("%w: %s", invoice.ErrChassisBusy, strings.TrimPrefix(key, lockKeyPrefix))
		}
		held = append(held, key)
	}
	return release, nil
}

func (uc *invoiceUseCase) publish(ctx context.Context, t invoice.EventType, inv *model.Invoice) {
	if len(uc.publishers) == 0 {
		return
	}
	ev := invoice.NewEvent(t, inv, uc.now().UTC())
	for _, p := range uc.publishers {
		if err := p.PublishInvoiceEvent(context.WithoutCancel(ctx), ev); err != nil {
			uc.logger.Warn("failed to publish invoice event",
				zap.String("type", string(t)),
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.Error(err),
			)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
