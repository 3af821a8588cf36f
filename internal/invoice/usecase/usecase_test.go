package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/catalog"
	catalogdto "github.com/fekuna/omnipos-fiscal-service/internal/catalog/dto"
	catalogrepo "github.com/fekuna/omnipos-fiscal-service/internal/catalog/repository"
	catalogusecase "github.com/fekuna/omnipos-fiscal-service/internal/catalog/usecase"
	customerrepo "github.com/fekuna/omnipos-fiscal-service/internal/customer/repository"
	customerusecase "github.com/fekuna/omnipos-fiscal-service/internal/customer/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	inventorydto "github.com/fekuna/omnipos-fiscal-service/internal/inventory/dto"
	inventoryrepo "github.com/fekuna/omnipos-fiscal-service/internal/inventory/repository"
	inventoryusecase "github.com/fekuna/omnipos-fiscal-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/dto"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/repository"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/internal/testutil"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
)

type submitFunc func(ctx context.Context, p *fiscal.Payload, env fiscal.EnvironmentConfig) (*fiscal.Response, error)

// authority is a scripted fiscal authority whose behaviour can be swapped mid-test.
type authority struct {
	mu    sync.Mutex
	next  submitFunc
	calls int
}

func (a *authority) Submit(ctx context.Context, p *fiscal.Payload, env fiscal.EnvironmentConfig) (*fiscal.Response, error) {
	a.mu.Lock()
	a.calls++
	fn := a.next
	a.mu.Unlock()
	return fn(ctx, p, env)
}

func (a *authority) set(fn submitFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = fn
}

func (a *authority) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func issuing() submitFunc {
	var n int32
	return func(_ context.Context, p *fiscal.Payload, _ fiscal.EnvironmentConfig) (*fiscal.Response, error) {
		id := fmt.Sprintf("FBR-%04d", atomic.AddInt32(&n, 1))
		return &fiscal.Response{FiscalID: id, Code: "100", Raw: `{"InvoiceNumber":"` + id + `","Code":"100"}`, StatusCode: 200}, nil
	}
}

func unreachable(context.Context, *fiscal.Payload, fiscal.EnvironmentConfig) (*fiscal.Response, error) {
	return nil, &fiscal.Error{Kind: fiscal.KindTransport, Message: "fiscal authority unreachable after 3 attempt(s)"}
}

func rejecting(context.Context, *fiscal.Payload, fiscal.EnvironmentConfig) (*fiscal.Response, error) {
	return nil, &fiscal.Error{Kind: fiscal.KindProtocol, Message: "Invalid BuyerCNIC", StatusCode: 200, Raw: `{"Code":"401","Response":"Invalid BuyerCNIC"}`}
}

type staticEnv struct {
	env fiscal.EnvironmentConfig
}

func (s staticEnv) Active(context.Context) (fiscal.EnvironmentConfig, error) {
	return s.env, nil
}

type recorder struct {
	mu     sync.Mutex
	events []invoice.Event
}

func (r *recorder) PublishInvoiceEvent(_ context.Context, ev invoice.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []invoice.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]invoice.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	uc      invoice.UseCase
	repo    *repository.SQLRepository
	units   inventory.UseCase
	catalog catalog.UseCase
	db      *sqlx.DB
	clock   *testutil.StepClock
	logs    *observer.ObservedLogs
	events  *recorder
}

func testEnv(baseURL string) fiscal.EnvironmentConfig {
	return fiscal.EnvironmentConfig{
		Name:            fiscal.EnvSandbox,
		BaseURL:         baseURL,
		POSID:           123456,
		USIN:            "U1",
		TaxRate:         decimal.NewFromInt(18),
		InvoiceType:     1,
		Discount:        decimal.Zero,
		DefaultPCTCode:  "87112010",
		DefaultItemCode: "MC",
		Timeout:         time.Second,
		MaxAttempts:     2,
	}
}

const managerKey = "mgr-7731"

func newHarness(t *testing.T, sub usecase.Submitter, env fiscal.EnvironmentConfig) *harness {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	tx := database.NewTxManager(db)
	clock := testutil.NewStepClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	log, logs := testutil.ObservedLogger()
	events := &recorder{}

	cat := catalogusecase.NewCatalogUseCase(catalogrepo.NewSQLRepository(db), tx, log, catalogusecase.WithClock(clock.Now))
	units := inventoryusecase.NewInventoryUseCase(inventoryrepo.NewSQLRepository(db), cat, tx, log)
	customers := customerusecase.NewCustomerUseCase(customerrepo.NewSQLRepository(db), log)
	repo := repository.NewSQLRepository(db)

	uc := usecase.NewInvoiceUseCase(repo, units, cat, customers, sub, staticEnv{env: env}, tx, log,
		usecase.WithClock(clock.Now),
		usecase.WithLeaseTTL(2*time.Minute),
		usecase.WithPublishers(events),
		usecase.WithOverrideOperators(map[string]string{"manager": managerKey}),
	)

	return &harness{uc: uc, repo: repo, units: units, catalog: cat, db: db, clock: clock, logs: logs, events: events}
}

func (h *harness) receive(t *testing.T, chassis string) {
	t.Helper()
	_, err := h.units.ReceiveUnit(context.Background(), &inventorydto.ReceiveUnitInput{
		ChassisNumber: chassis,
		ModelName:     "CD-70",
		Color:         "Red",
		CostPrice:     decimal.NewFromInt(95000),
		SalePrice:     decimal.NewFromInt(110000),
	})
	require.NoError(t, err)
}

func (h *harness) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func sale(number string, lines ...dto.SaleLine) *dto.SaleRequest {
	return &dto.SaleRequest{
		InvoiceNumber: number,
		Buyer:         dto.BuyerRequest{NationalID: "35202-1234567-1", Name: "Ali Raza", Phone: "03001111111"},
		Lines:         lines,
	}
}

func line(chassis string, value int64) dto.SaleLine {
	v := decimal.NewFromInt(value)
	return dto.SaleLine{
		ItemName:      "CD-70 Red",
		Quantity:      decimal.NewFromInt(1),
		SaleValue:     &v,
		ChassisNumber: chassis,
	}
}

func TestCreateInvoice_ChassisScenario(t *testing.T) {
	ctx := context.Background()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fiscal_id": "9991", "code": 100}`))
	}))
	defer srv.Close()

	client := fiscal.NewClient(logger.NewNop(), fiscal.WithSleep(func(context.Context, time.Duration) error { return nil }))
	h := newHarness(t, client, testEnv(srv.URL))
	h.receive(t, "CH-001")

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("ch-001", 100000)))
	require.NoError(t, err)

	assert.Equal(t, model.SyncStatusSynced, inv.SyncStatus)
	require.NotNil(t, inv.FiscalID)
	assert.Equal(t, "9991", *inv.FiscalID)
	assert.Equal(t, invoice.MessageSynced, inv.SyncMessage)
	assert.Equal(t, 1, inv.SyncAttempts)
	require.NotNil(t, inv.RawResponse)
	assert.JSONEq(t, `{"fiscal_id": "9991", "code": 100}`, *inv.RawResponse)

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "CH-001", *inv.Items[0].ChassisNumber)
	assert.NotNil(t, inv.Items[0].InventoryUnitID)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(118000)))
	require.NotNil(t, inv.Customer)
	assert.Equal(t, "Ali Raza", inv.Customer.Name)

	unit, err := h.units.FindByChassis(ctx, "CH-001")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusSold, unit.Status)

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0002", line("CH-001", 100000)))
	require.ErrorIs(t, err, invoice.ErrUnitUnavailable)
	assert.Contains(t, err.Error(), "SOLD")

	assert.Equal(t, 1, h.count(t, "invoices"))
	assert.Equal(t, 1, h.count(t, "invoice_line_items"))
	assert.Equal(t, 1, h.count(t, "inventory_units"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	posted, err := h.uc.IsChassisUsedInPostedInvoice(ctx, "ch-001")
	require.NoError(t, err)
	assert.True(t, posted)

	assert.Equal(t, []invoice.EventType{invoice.EventCreated, invoice.EventSynced}, h.events.types())
}

func TestCreateInvoice_OfflineDurability(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: unreachable}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))
	h.receive(t, "CH-100")

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-100", 100000)))
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, inv.SyncStatus)
	assert.Nil(t, inv.FiscalID)
	assert.Contains(t, inv.SyncMessage, invoice.MessageRetrying)

	unit, err := h.units.FindByChassis(ctx, "CH-100")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusSold, unit.Status)

	pending, err := h.uc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, inv.ID, pending[0].ID)

	auth.set(issuing())
	h.clock.Advance(time.Minute)

	synced, err := h.uc.SyncInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, synced.AuthorityReached)
	assert.True(t, *synced.AuthorityReached)
	assert.Equal(t, model.SyncStatusSynced, synced.SyncStatus)
	assert.Equal(t, "FBR-0001", *synced.FiscalID)
	assert.Equal(t, 2, synced.SyncAttempts)
	assert.True(t, synced.StatusUpdatedAt.After(inv.StatusUpdatedAt))

	assert.Equal(t, 1, h.count(t, "invoices"))
	assert.Equal(t, 1, h.count(t, "invoice_line_items"))

	n, err := h.uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A synced invoice is left alone.
	again, err := h.uc.SyncInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, again.SyncStatus)
	assert.Equal(t, 2, auth.count())
}

func TestSyncInvoice_EchoAnomalyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"InvoiceNumber": "U1-0001", "Code": "100"}`))
	}))
	defer srv.Close()

	h := newHarness(t, fiscal.NewClient(logger.NewNop()), testEnv(srv.URL))

	inv, err := h.uc.CreateInvoice(context.Background(), sale("U1-0001", line("", 5000)))
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, inv.SyncStatus)
	assert.Nil(t, inv.FiscalID)
	assert.Contains(t, inv.SyncMessage, "echo")

	pending, err := h.uc.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, h.events.types(), invoice.EventFailed)
}

func TestCreateInvoice_ProtocolRejectionIsTerminal(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: rejecting}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	inv, err := h.uc.CreateInvoice(ctx, sale("", line("", 5000)))
	require.NoError(t, err)
	assert.Equal(t, "U1-0001", inv.InvoiceNumber)
	assert.Equal(t, model.SyncStatusFailed, inv.SyncStatus)
	assert.Contains(t, inv.SyncMessage, "Invalid BuyerCNIC")
	require.NotNil(t, inv.RawResponse)

	// FAILED is never claimed by a plain sync.
	again, err := h.uc.SyncInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, again.SyncStatus)
	assert.Equal(t, 1, auth.count())
}

func TestCreateInvoice_UnexpectedErrorFails(t *testing.T) {
	auth := &authority{next: func(context.Context, *fiscal.Payload, fiscal.EnvironmentConfig) (*fiscal.Response, error) {
		panic("payload encoder exploded")
	}}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	inv, err := h.uc.CreateInvoice(context.Background(), sale("U1-0001", line("", 5000)))
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, inv.SyncStatus)
	assert.Contains(t, inv.SyncMessage, "unexpected error")
	assert.Equal(t, 1, h.logs.FilterMessage("panic during fiscal submission").Len())
}

func TestGenerateNextInvoiceNumber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	next, err := h.uc.GenerateNextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "U1-0001", next)

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0007", line("", 1000)))
	require.NoError(t, err)
	_, err = h.uc.CreateInvoice(ctx, sale("U10-0050", line("", 1000)))
	require.NoError(t, err)

	next, err = h.uc.GenerateNextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "U1-0008", next)

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0007", line("", 1000)))
	assert.ErrorIs(t, err, invoice.ErrDuplicateInvoiceNumber)
}

func TestGenerateNextInvoiceNumber_UnparseableFallsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	_, err := h.uc.CreateInvoice(ctx, sale("U1-MANUAL", line("", 1000)))
	require.NoError(t, err)

	next, err := h.uc.GenerateNextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "U1-0001", next)
}

func TestCreateInvoice_DuplicateChassisRejectedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	// Sold once without an inventory record, then the unit shows up in stock.
	first, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-010", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusSynced, first.SyncStatus)
	assert.Nil(t, first.Items[0].InventoryUnitID)
	assert.Equal(t, 1, h.logs.FilterMessage("chassis not in inventory, invoicing without inventory link").Len())

	h.receive(t, "CH-010")

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0002", line("ch-010", 100000)))
	require.ErrorIs(t, err, invoice.ErrDuplicateChassis)

	unit, err := h.units.FindByChassis(ctx, "CH-010")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusInStock, unit.Status)
	assert.Equal(t, 1, h.count(t, "invoices"))
}

func TestCreateInvoice_DuplicateChassisOverride(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	_, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-020", 100000)))
	require.NoError(t, err)

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0002", line("CH-020", 100000)))
	require.ErrorIs(t, err, invoice.ErrDuplicateChassis)

	inv, err := h.uc.CreateInvoiceWithOverride(ctx, sale("U1-0002", line("CH-020", 100000)), dto.OverrideGrant{
		AuthorizedBy: " manager ",
		Reason:       "replacement invoice for damaged original",
		Credential:   managerKey,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, inv.SyncStatus)
	assert.Equal(t, "manager: replacement invoice for damaged original", inv.OverrideReason)

	bypass := h.logs.FilterMessage("duplicate chassis guard bypassed by override").All()
	require.Len(t, bypass, 1)
	assert.Equal(t, "manager", bypass[0].ContextMap()["authorized_by"])
}

func TestCreateInvoiceWithOverride_RefusesUnauthorized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	_, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-021", 100000)))
	require.NoError(t, err)

	grants := map[string]dto.OverrideGrant{
		"wrong key":        {AuthorizedBy: "manager", Reason: "re-issue", Credential: "guess"},
		"no key":           {AuthorizedBy: "manager", Reason: "re-issue"},
		"unknown operator": {AuthorizedBy: "cashier", Reason: "re-issue", Credential: managerKey},
		"no reason":        {AuthorizedBy: "manager", Reason: "  ", Credential: managerKey},
	}
	for name, grant := range grants {
		t.Run(name, func(t *testing.T) {
			_, err := h.uc.CreateInvoiceWithOverride(ctx, sale("U1-0002", line("CH-021", 100000)), grant)
			require.ErrorIs(t, err, invoice.ErrOverrideNotAuthorized)
		})
	}

	assert.Equal(t, 1, h.count(t, "invoices"))
	assert.Len(t, h.logs.FilterMessage("duplicate chassis override refused").All(), len(grants))
	assert.Empty(t, h.logs.FilterMessage("duplicate chassis guard bypassed by override").All())
}

func TestCreateInvoice_SaleBodyCannotCarryOverride(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	first, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-009", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusSynced, first.SyncStatus)

	body := `{
		"invoice_number": "U1-0002",
		"lines": [{"chassis_number": "ch-009", "sale_value": "100000"}],
		"override": {"authorized_by": "anyone", "reason": "because"}
	}`
	var req dto.SaleRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	_, err = h.uc.CreateInvoice(ctx, &req)
	require.ErrorIs(t, err, invoice.ErrDuplicateChassis)

	n, err := h.repo.CountChassisInvoices(ctx, "CH-009", []model.SyncStatus{model.SyncStatusSynced}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateInvoice_CallerCancellationKeepsAcceptedSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		// The point of sale gives up while the authority is still working.
		cancel()
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"InvoiceNumber": "FBR-1", "Code": "100"}`))
	}))
	defer srv.Close()

	client := fiscal.NewClient(logger.NewNop(), fiscal.WithSleep(func(context.Context, time.Duration) error { return nil }))
	h := newHarness(t, client, testEnv(srv.URL))

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-110", 100000)))
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Equal(t, model.SyncStatusSynced, inv.SyncStatus, inv.SyncMessage)
	require.NotNil(t, inv.FiscalID)
	assert.Equal(t, "FBR-1", *inv.FiscalID)
}

func TestCreateInvoice_PendingChassisBlocksSecondInvoice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: unreachable}, testEnv("http://fbr.invalid"))

	first, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-030", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusPending, first.SyncStatus)

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0002", line("CH-030", 100000)))
	assert.ErrorIs(t, err, invoice.ErrDuplicateChassis)
}

func TestCreateInvoice_ImplicitReceipt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	l := line("ch-777", 100000)
	l.ModelName = "CD-70"
	l.Color = "Black"
	l.EngineNumber = "eng-777"

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", l))
	require.NoError(t, err)

	unit, err := h.units.FindByChassis(ctx, "CH-777")
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusSold, unit.Status)
	assert.Equal(t, model.ReceiptKindImplicit, unit.ReceiptKind)
	assert.True(t, unit.CostPrice.IsZero())
	require.NotNil(t, unit.SoldInvoiceID)
	assert.Equal(t, inv.ID, *unit.SoldInvoiceID)

	require.NotNil(t, inv.Items[0].InventoryUnitID)
	assert.Equal(t, unit.ID, *inv.Items[0].InventoryUnitID)
	assert.Equal(t, "ENG-777", *inv.Items[0].EngineNumber)
	assert.Equal(t, 1, h.logs.FilterMessage("implicit receipt recorded for unit never received into inventory").Len())
}

func TestCreateInvoice_PricesFromCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	_, err := h.catalog.AddPrice(ctx, &catalogdto.AddPriceInput{
		ModelName:   "CD-70",
		BaseAmount:  decimal.NewFromInt(100000),
		TaxAmount:   decimal.NewFromInt(18000),
		LevyAmount:  decimal.NewFromInt(2000),
		TotalAmount: decimal.NewFromInt(120000),
		Colors:      "Red, Black",
	})
	require.NoError(t, err)

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", dto.SaleLine{
		ModelName: "CD-70",
		Color:     "red",
		Quantity:  decimal.NewFromInt(2),
	}))
	require.NoError(t, err)

	require.Len(t, inv.Items, 1)
	item := inv.Items[0]
	assert.Equal(t, "CD-70", item.ItemName)
	assert.Equal(t, "MC", item.ItemCode)
	assert.Equal(t, "87112010", item.PCTCode)
	assert.True(t, item.SaleValue.Equal(decimal.NewFromInt(200000)), item.SaleValue.String())
	assert.True(t, item.TaxCharged.Equal(decimal.NewFromInt(36000)), item.TaxCharged.String())
	assert.True(t, item.FurtherTax.Equal(decimal.NewFromInt(4000)), item.FurtherTax.String())
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(240000)), inv.TotalAmount.String())
	assert.True(t, inv.TotalQuantity.Equal(decimal.NewFromInt(2)))

	_, err = h.uc.CreateInvoice(ctx, sale("U1-0002", dto.SaleLine{ModelName: "GS-150"}))
	assert.ErrorIs(t, err, invoice.ErrInvalidSale)
}

func TestCreateInvoice_ValidatesLines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &authority{next: issuing()}, testEnv("http://fbr.invalid"))

	neg := decimal.NewFromInt(-1)
	tests := []struct {
		name string
		req  *dto.SaleRequest
	}{
		{"no lines", sale("U1-0001")},
		{"negative sale value", sale("U1-0001", dto.SaleLine{ItemName: "x", SaleValue: &neg})},
		{"no value and no model", sale("U1-0001", dto.SaleLine{ItemName: "x"})},
		{"chassis twice", sale("U1-0001", line("CH-1", 10), line("ch-1", 10))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.uc.CreateInvoice(ctx, tc.req)
			assert.ErrorIs(t, err, invoice.ErrInvalidSale)
		})
	}
	assert.Zero(t, h.count(t, "invoices"))
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: rejecting}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-040", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusFailed, inv.SyncStatus)

	_, err = h.uc.RetryFailed(ctx, inv.ID, " ")
	assert.ErrorIs(t, err, invoice.ErrInvalidSale)

	auth.set(issuing())
	retried, err := h.uc.RetryFailed(ctx, inv.ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, retried.SyncStatus)
	assert.Equal(t, 2, retried.SyncAttempts)
	assert.Equal(t, 1, h.logs.FilterMessage("failed invoice requeued by operator").Len())

	_, err = h.uc.RetryFailed(ctx, inv.ID, "ops")
	assert.ErrorIs(t, err, invoice.ErrNotRetryable)

	_, err = h.uc.RetryFailed(ctx, "missing", "ops")
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	assert.Equal(t, []invoice.EventType{
		invoice.EventCreated,
		invoice.EventFailed,
		invoice.EventRetryRequested,
		invoice.EventSynced,
	}, h.events.types())
}

func TestRetryFailed_RefusesWhenChassisPostedElsewhere(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: rejecting}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	failed, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-050", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusFailed, failed.SyncStatus)

	auth.set(issuing())
	posted, err := h.uc.CreateInvoice(ctx, sale("U1-0002", line("CH-050", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusSynced, posted.SyncStatus)

	_, err = h.uc.RetryFailed(ctx, failed.ID, "ops")
	assert.ErrorIs(t, err, invoice.ErrDuplicateChassis)
}

func TestSyncInvoice_LeaseExcludesConcurrentSync(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: unreachable}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	inv, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("", 1000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusPending, inv.SyncStatus)

	now := h.clock.Now()
	claimed, err := h.repo.ClaimSync(ctx, inv.ID, "other-worker", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	auth.set(issuing())
	_, err = h.uc.SyncInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrSyncInFlight)
	assert.Equal(t, 1, auth.count())

	// The other worker vanished; its lease goes stale.
	h.clock.Advance(3 * time.Minute)
	synced, err := h.uc.SyncInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, synced.SyncStatus)

	// The stale worker can no longer record its outcome.
	recorded, err := h.repo.RecordOutcome(ctx, inv.ID, "other-worker", invoice.Outcome{Status: model.SyncStatusFailed, At: h.clock.Now()})
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestSyncInvoice_GuardsAgainstSecondPostedInvoice(t *testing.T) {
	ctx := context.Background()
	auth := &authority{next: unreachable}
	h := newHarness(t, auth, testEnv("http://fbr.invalid"))

	pending, err := h.uc.CreateInvoice(ctx, sale("U1-0001", line("CH-060", 100000)))
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusPending, pending.SyncStatus)

	// Force a second invoice for the same chassis past the create-time check.
	auth.set(issuing())
	posted, err := h.uc.CreateInvoiceWithOverride(ctx, sale("U1-0002", line("CH-060", 100000)), dto.OverrideGrant{
		AuthorizedBy: "manager",
		Reason:       "re-issue",
		Credential:   managerKey,
	})
	require.NoError(t, err)
	require.Equal(t, model.SyncStatusSynced, posted.SyncStatus)

	out, err := h.uc.SyncInvoice(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, out.SyncStatus)
	assert.Contains(t, out.SyncMessage, "duplicate chassis")
	assert.Equal(t, 2, auth.count())
	assert.Nil(t, out.AuthorityReached, "the guard never contacted the authority")
}

func TestCreateInvoice_ChassisBusy(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	tx := database.NewTxManager(db)
	log := logger.NewNop()

	locker := &busyLocker{}
	cat := catalogusecase.NewCatalogUseCase(catalogrepo.NewSQLRepository(db), tx, log)
	units := inventoryusecase.NewInventoryUseCase(inventoryrepo.NewSQLRepository(db), cat, tx, log)
	customers := customerusecase.NewCustomerUseCase(customerrepo.NewSQLRepository(db), log)
	uc := usecase.NewInvoiceUseCase(repository.NewSQLRepository(db), units, cat, customers,
		&authority{next: issuing()}, staticEnv{env: testEnv("http://fbr.invalid")}, tx, log,
		usecase.WithLocker(locker),
	)

	_, err := uc.CreateInvoice(ctx, sale("U1-0001", line("CH-070", 1000)))
	assert.ErrorIs(t, err, invoice.ErrChassisBusy)
	assert.Equal(t, 3, locker.attempts)
}

type busyLocker struct {
	attempts int
}

func (b *busyLocker) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	b.attempts++
	return false, nil
}

func (b *busyLocker) ReleaseLock(context.Context, string, string) error { return nil }
