package workflow

import (
	"context"

	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/shopspring/decimal"
)

// IdcwRequest distributes income on one folio: AmountPerUnit times the units held.
type IdcwRequest struct {
	FolioNumber   string            `validate:"required,max=32"`
	AmountPerUnit decimal.Decimal   `validate:"-"`
	Option        models.IdcwOption `validate:"required"`
}

// ProcessIdcw records an income distribution. A payout pays cash and leaves
// the holding as it is; a reinvestment buys units at the current NAV and opens
// a new tax lot.
func (e *Engine) ProcessIdcw(ctx context.Context, req IdcwRequest) (*models.Transaction, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.Option.IsValid() {
		return nil, models.ValidationError(models.ErrInvalidIdcwOption, "%s", string(req.Option))
	}
	if !req.AmountPerUnit.IsPositive() {
		return nil, models.ValidationError(models.ErrInvalidAmount, "per unit %s", req.AmountPerUnit.String())
	}

	var txn *models.Transaction
	err := e.Ledger.RunUnitOfWork(ctx, "Engine.ProcessIdcw", func(tx store.Tx) error {
		folio, err := tx.LockFolioByNumber(req.FolioNumber)
		if err != nil {
			return err
		}
		if folio.IsEmpty() {
			return models.StateError(models.ErrNoUnitsForIdcw, "folio %s", folio.FolioNumber)
		}
		scheme, err := tx.SchemeById(folio.SchemeId)
		if err != nil {
			return err
		}
		nav := models.RoundNav(scheme.CurrentNav)
		if !nav.IsPositive() {
			return models.ValidationError(models.ErrInvalidNav, "scheme %s", scheme.SchemeId)
		}
		amount := models.RoundMoney(folio.TotalUnits.Mul(req.AmountPerUnit))
		if !amount.IsPositive() {
			return models.ValidationError(models.ErrInvalidAmount, "%s units at %s per unit", folio.TotalUnits.String(), req.AmountPerUnit.String())
		}

		at := e.Ledger.now()
		kind := req.Option.TransactionType()
		units := decimal.Zero
		paymentMode := models.PaymentModeNeft
		if kind == models.TransactionTypeIdcwReinvestment {
			units, err = e.Ledger.ApplyPurchase(tx, folio, scheme, amount, nav, kind, at)
			if err != nil {
				return err
			}
			paymentMode = models.PaymentModeInternal
		} else {
			folio.MarkTransacted(at)
			if err := tx.SaveFolio(folio); err != nil {
				return err
			}
		}

		txn, err = e.newTransaction(ctx, tx, folio, kind, at)
		if err != nil {
			return err
		}
		txn.Amount = amount
		txn.GrossAmount = amount
		txn.ExitLoadAmount = decimal.Zero
		txn.Units = units
		txn.NavPerUnit = nav
		txn.PaymentMode = paymentMode
		if err := tx.CreateTransaction(txn); err != nil {
			return err
		}
		return e.recordCompleted(tx, txn)
	})
	if err != nil {
		e.logFailure(ctx, "ProcessIdcw", req, err)
		return nil, err
	}
	e.logTransaction(ctx, txn)
	return txn, nil
}
