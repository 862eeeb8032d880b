package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
)

type SwitchRequest struct {
	InvestorId        string `validate:"required,max=32"`
	SourceFolioNumber string `validate:"required,max=32"`
	TargetSchemeId    string `validate:"required,max=32"`
	Selector          Selector
}

// SwitchResult holds both legs, which reference each other through LinkedTransactionId.
type SwitchResult struct {
	Redemption  *models.Transaction
	Purchase    *models.Transaction
	SourceFolio *models.Folio
	TargetFolio *models.Folio
}

type switchLeg struct {
	InvestorId        string
	SourceFolioNumber string
	TargetSchemeId    string
	Selector          Selector
	RedeemType        models.TransactionType
	PurchaseType      models.TransactionType
	RegistrationId    *string
}

// ProcessSwitch redeems from the source folio and invests the net proceeds in
// the target scheme. Both folios and both transactions commit together.
func (e *Engine) ProcessSwitch(ctx context.Context, req SwitchRequest) (*SwitchResult, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Selector.validate(); err != nil {
		return nil, err
	}
	target, err := e.ResolveSchemeId(ctx, req.TargetSchemeId)
	if err != nil {
		return nil, err
	}

	var result *SwitchResult
	err = e.Ledger.RunUnitOfWork(ctx, "Engine.ProcessSwitch", func(tx store.Tx) error {
		var err error
		result, err = e.switchInTx(ctx, tx, switchLeg{
			InvestorId:        req.InvestorId,
			SourceFolioNumber: req.SourceFolioNumber,
			TargetSchemeId:    target,
			Selector:          req.Selector,
			RedeemType:        models.TransactionTypeSwitchRedemption,
			PurchaseType:      models.TransactionTypeSwitchPurchase,
		}, e.Ledger.now())
		return err
	})
	if err != nil {
		e.logFailure(ctx, "ProcessSwitch", req, err)
		return nil, err
	}
	e.logTransaction(ctx, result.Redemption)
	e.logTransaction(ctx, result.Purchase)
	return result, nil
}

func (e *Engine) switchInTx(ctx context.Context, tx store.Tx, leg switchLeg, at time.Time) (*SwitchResult, error) {
	if err := e.lockTargetFirst(tx, leg); err != nil {
		return nil, err
	}
	source, err := tx.LockFolioByNumber(leg.SourceFolioNumber)
	if err != nil {
		return nil, err
	}
	if source.InvestorId != leg.InvestorId {
		return nil, models.ValidationError(models.ErrFolioOwnership, "folio %s", source.FolioNumber)
	}
	if source.SchemeId == leg.TargetSchemeId {
		return nil, models.ValidationError(models.ErrSameScheme, "scheme %s", source.SchemeId)
	}

	redemption, sourceFolio, err := e.redeemInTx(ctx, tx, redeemLeg{
		FolioNumber:    leg.SourceFolioNumber,
		InvestorId:     leg.InvestorId,
		Selector:       leg.Selector,
		Type:           leg.RedeemType,
		PaymentMode:    models.PaymentModeInternal,
		RegistrationId: leg.RegistrationId,
	}, at)
	if err != nil {
		return nil, err
	}
	purchase, targetFolio, err := e.purchaseInTx(ctx, tx, purchaseLeg{
		InvestorId:     leg.InvestorId,
		SchemeId:       leg.TargetSchemeId,
		Amount:         redemption.Amount,
		Type:           leg.PurchaseType,
		PaymentMode:    models.PaymentModeInternal,
		RegistrationId: leg.RegistrationId,
	}, at)
	if err != nil {
		return nil, err
	}

	models.LinkTransactions(redemption, purchase)
	if err := tx.SaveTransaction(redemption); err != nil {
		return nil, err
	}
	if err := tx.SaveTransaction(purchase); err != nil {
		return nil, err
	}
	if err := e.recordCompleted(tx, redemption, purchase); err != nil {
		return nil, err
	}
	return &SwitchResult{
		Redemption:  redemption,
		Purchase:    purchase,
		SourceFolio: sourceFolio,
		TargetFolio: targetFolio,
	}, nil
}

// lockTargetFirst locks an existing target folio ahead of the source when its
// number sorts first, so a folio pair is always locked in folio-number order.
func (e *Engine) lockTargetFirst(tx store.Tx, leg switchLeg) error {
	scheme, err := tx.SchemeById(leg.TargetSchemeId)
	if err != nil {
		return err
	}
	number, err := tx.FolioNumberByHolding(leg.InvestorId, scheme.AmcId, scheme.SchemeId)
	if models.IsKind(err, models.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if folioNumberLess(number, leg.SourceFolioNumber) {
		_, err = tx.LockFolioByNumber(number)
	}
	return err
}

func folioNumberLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
