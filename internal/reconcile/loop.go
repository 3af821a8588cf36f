package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"go.uber.org/zap"
)

// Status is the aggregate view published after every pass.
type Status struct {
	Reachable    bool      `json:"reachable"`
	PendingCount int       `json:"pending_count"`
	Attempted    int       `json:"attempted"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	Probed       bool      `json:"probed"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Invoices is the part of the invoice usecase the loop drives.
type Invoices interface {
	ListPending(ctx context.Context, limit int) ([]model.Invoice, error)
	CountPending(ctx context.Context) (int, error)
	SyncInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
}

type Prober interface {
	Probe(ctx context.Context, env fiscal.EnvironmentConfig) error
}

type EnvironmentSource interface {
	Active(ctx context.Context) (fiscal.EnvironmentConfig, error)
}

type Observer interface {
	ObserveStatus(ctx context.Context, s Status) error
}

type Loop struct {
	invoices  Invoices
	prober    Prober
	envs      EnvironmentSource
	observers []Observer
	logger    logger.ZapLogger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu   sync.RWMutex
	last Status
	run  sync.Mutex
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

func WithBatchSize(n int) Option {
	return func(l *Loop) { l.batchSize = n }
}

func WithObservers(o ...Observer) Option {
	return func(l *Loop) { l.observers = append(l.observers, o...) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

func NewLoop(invoices Invoices, prober Prober, envs EnvironmentSource, log logger.ZapLogger, opts ...Option) *Loop {
	l := &Loop{
		invoices:  invoices,
		prober:    prober,
		envs:      envs,
		logger:    log,
		interval:  time.Minute,
		batchSize: 200,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("Starting fiscal reconciliation loop", zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("reconciliation pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			l.logger.Info("Stopping fiscal reconciliation loop")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce syncs every PENDING invoice once and publishes the resulting status.
// Cancellation is honoured between invoices; a submission already under way
// finishes and records its outcome.
func (l *Loop) RunOnce(ctx context.Context) (Status, error) {
	l.run.Lock()
	defer l.run.Unlock()

	pending, err := l.invoices.ListPending(ctx, l.batchSize)
	if err != nil {
		return Status{}, err
	}

	var st Status
	reachable, contacted := false, false
	for _, p := range pending {
		if ctx.Err() != nil {
			l.logger.Info("reconciliation pass interrupted", zap.Int("remaining", len(pending)-st.Attempted-st.Skipped))
			break
		}

		inv, err := l.invoices.SyncInvoice(context.WithoutCancel(ctx), p.ID)
		if err != nil {
			st.Skipped++
			if errors.Is(err, invoice.ErrSyncInFlight) {
				continue
			}
			l.logger.Error("failed to sync pending invoice",
				zap.String("invoice_number", p.InvoiceNumber),
				zap.Error(err),
			)
			continue
		}

		st.Attempted++
		// Only a submission that went over the wire says anything about the
		// authority; a locally refused invoice is FAILED without contact.
		if inv.AuthorityReached != nil {
			contacted = true
			reachable = *inv.AuthorityReached
		}
		switch inv.SyncStatus {
		case model.SyncStatusSynced:
			st.Synced++
		case model.SyncStatusFailed:
			st.Failed++
		case model.SyncStatusPending:
		case model.SyncStatusDraft:
			l.logger.Error("sync returned an unsaved invoice", zap.String("invoice_id", inv.ID))
		default:
			panic("unhandled sync status " + string(inv.SyncStatus))
		}
	}

	bg := context.WithoutCancel(ctx)
	if !contacted {
		st.Probed = true
		reachable = l.probe(bg)
	}
	st.Reachable = reachable

	if st.PendingCount, err = l.invoices.CountPending(bg); err != nil {
		return Status{}, err
	}
	st.CheckedAt = l.now().UTC()

	l.mu.Lock()
	l.last = st
	l.mu.Unlock()

	l.publish(bg, st)
	return st, nil
}

// Last returns the status of the most recent completed pass.
func (l *Loop) Last() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

func (l *Loop) probe(ctx context.Context) bool {
	env, err := l.envs.Active(ctx)
	if err != nil {
		l.logger.Error("failed to load fiscal environment for probe", zap.Error(err))
		return false
	}
	if err := l.prober.Probe(ctx, env); err != nil {
		l.logger.Debug("fiscal authority probe failed", zap.String("environment", env.Name), zap.Error(err))
		return false
	}
	return true
}

func (l *Loop) publish(ctx context.Context, st Status) {
	for _, o := range l.observers {
		if err := o.ObserveStatus(ctx, st); err != nil {
			l.logger.Warn("failed to publish sync status", zap.Error(err))
		}
	}
}
