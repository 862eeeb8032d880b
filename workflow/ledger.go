package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rta_backend/workflow")

// Ledger owns folio state. Every mutation runs inside RunUnitOfWork with the
// folio row locked for the full read-compute-write sequence.
type Ledger struct {
	Store    store.Store
	Logger   *logrus.Logger
	Settings config.EngineSettings
	Now      func() time.Time
}

func NewLedger(st store.Store, logger *logrus.Logger, settings config.EngineSettings) *Ledger {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Ledger{
		Store:    st,
		Logger:   logger,
		Settings: settings,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now()
}

func (l *Ledger) log(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	fields["correlation_id"] = correlationId
	if runId, ok := utils.GetRunIdFromContext(ctx); ok {
		fields["run_id"] = runId
	}
	return l.Logger.WithFields(fields)
}

// RunUnitOfWork executes fn in one store transaction and retries it when the
// store reports lock contention. All other errors surface immediately.
func (l *Ledger) RunUnitOfWork(ctx context.Context, name string, fn func(tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	retries := l.Settings.LockRetries
	if retries < 0 {
		retries = 0
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := l.Settings.LockRetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		err = l.runAttempt(ctx, name, fn)
		if err == nil {
			span.SetAttributes(attribute.Int("ledger.attempts", attempt+1))
			return nil
		}
		if !models.KindOf(err).Retryable() {
			break
		}
		l.log(ctx, logrus.Fields{
			"field":   "Ledger",
			"unit":    name,
			"attempt": attempt + 1,
		}).Warn("unit of work hit lock contention: " + err.Error())
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// runAttempt bounds one transaction by UnitOfWorkTimeout. Running out of time,
// including while waiting for a pooled connection, counts as lock contention.
func (l *Ledger) runAttempt(ctx context.Context, name string, fn func(tx store.Tx) error) error {
	timeout := l.Settings.UnitOfWorkTimeout
	if timeout <= 0 {
		return l.Store.RunInTx(ctx, fn)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := l.Store.RunInTx(attemptCtx, fn)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && models.KindOf(err) == "" {
		return models.ConcurrencyError(models.ErrLockTimeout, "%s exceeded %s", name, timeout)
	}
	return err
}

// GetOrCreateFolio returns the investor's folio in the scheme, opening an
// empty one when none exists. Concurrent callers converge on one row.
func (l *Ledger) GetOrCreateFolio(ctx context.Context, investorId, schemeId string) (*models.Folio, error) {
	var folio *models.Folio
	err := l.RunUnitOfWork(ctx, "Ledger.GetOrCreateFolio", func(tx store.Tx) error {
		scheme, err := tx.SchemeById(schemeId)
		if err != nil {
			return err
		}
		folio, _, err = l.lockOrCreateFolio(tx, investorId, scheme)
		return err
	})
	if err != nil {
		return nil, err
	}
	return folio, nil
}

// lockOrCreateFolio locks the (investor, amc, scheme) folio, creating it when
// absent. A duplicate-key race with another creator falls back to locking the
// winner's row.
func (l *Ledger) lockOrCreateFolio(tx store.Tx, investorId string, scheme *models.Scheme) (*models.Folio, bool, error) {
	folio, err := tx.LockFolioByHolding(investorId, scheme.AmcId, scheme.SchemeId)
	if err == nil {
		return folio, false, nil
	}
	if !models.IsKind(err, models.KindNotFound) {
		return nil, false, err
	}

	number, err := tx.NextSequence(models.SequenceFolio)
	if err != nil {
		return nil, false, err
	}
	folio = models.NewFolio(number, investorId, scheme)
	err = tx.CreateFolio(folio)
	if err == nil {
		return folio, true, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, err
	}
	folio, err = tx.LockFolioByHolding(investorId, scheme.AmcId, scheme.SchemeId)
	if err != nil {
		return nil, false, err
	}
	return folio, false, nil
}

// ApplyPurchase allots units to a locked folio and persists it.
func (l *Ledger) ApplyPurchase(tx store.Tx, folio *models.Folio, scheme *models.Scheme, amount, nav decimal.Decimal, kind models.TransactionType, at time.Time) (decimal.Decimal, error) {
	units, err := folio.ApplyPurchase(scheme, amount, nav, kind)
	if err != nil {
		return decimal.Zero, err
	}
	folio.MarkTransacted(at)
	if err := tx.SaveFolio(folio); err != nil {
		return decimal.Zero, err
	}
	return units, nil
}

// ApplyRedemption extinguishes units from a locked folio and persists it.
// The returned quantity includes swept dust.
func (l *Ledger) ApplyRedemption(tx store.Tx, folio *models.Folio, scheme *models.Scheme, units decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	redeemed, err := folio.ApplyRedemption(scheme, units)
	if err != nil {
		return decimal.Zero, err
	}
	folio.MarkTransacted(at)
	if err := tx.SaveFolio(folio); err != nil {
		return decimal.Zero, err
	}
	return redeemed, nil
}
