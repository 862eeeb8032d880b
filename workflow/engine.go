package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Engine turns purchase, redemption and switch intents into ledger mutations
// plus immutable transaction records, one unit of work each.
type Engine struct {
	Ledger *Ledger
}

func NewEngine(ledger *Ledger) *Engine {
	return &Engine{Ledger: ledger}
}

type PurchaseRequest struct {
	InvestorId  string             `validate:"required,max=32"`
	SchemeId    string             `validate:"required,max=32"`
	Amount      decimal.Decimal    `validate:"-"`
	PaymentMode models.PaymentMode `validate:"required"`
}

// Selector picks the quantity to redeem. Exactly one choice must be set.
type Selector struct {
	Units    *decimal.Decimal
	Amount   *decimal.Decimal
	AllUnits bool
}

func UnitsSelector(units decimal.Decimal) Selector   { return Selector{Units: &units} }
func AmountSelector(amount decimal.Decimal) Selector { return Selector{Amount: &amount} }
func AllUnitsSelector() Selector                     { return Selector{AllUnits: true} }

func (s Selector) validate() error {
	n := 0
	if s.Units != nil {
		n++
		if !s.Units.IsPositive() {
			return models.ValidationError(models.ErrInvalidUnits, "got %s", s.Units.String())
		}
	}
	if s.Amount != nil {
		n++
		if !s.Amount.IsPositive() {
			return models.ValidationError(models.ErrInvalidAmount, "got %s", s.Amount.String())
		}
	}
	if s.AllUnits {
		n++
	}
	if n != 1 {
		return models.ValidationError(models.ErrInvalidSelector, "%d choices given", n)
	}
	return nil
}

// resolve converts the selector into a unit quantity against the folio at nav.
func (s Selector) resolve(folio *models.Folio, nav decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case s.AllUnits:
		if !folio.TotalUnits.IsPositive() {
			return decimal.Zero, models.StateError(models.ErrNothingToRedeem, "folio %s holds no units", folio.FolioNumber)
		}
		return folio.TotalUnits, nil
	case s.Units != nil:
		return models.RoundUnits(*s.Units), nil
	default:
		units := models.RoundUnits(s.Amount.Div(nav))
		if !units.IsPositive() {
			return decimal.Zero, models.ValidationError(models.ErrInvalidAmount, "%s is less than one unit fraction at %s", s.Amount.StringFixed(2), nav.String())
		}
		return units, nil
	}
}

type RedemptionRequest struct {
	FolioNumber string `validate:"required,max=32"`
	// InvestorId, when set, must own the folio.
	InvestorId string `validate:"max=32"`
	Selector   Selector
}

// purchaseLeg and redeemLeg carry one side of a unit of work. An empty Type
// on a purchase is tagged fresh or additional from the folio holding.
type purchaseLeg struct {
	InvestorId     string
	SchemeId       string
	Amount         decimal.Decimal
	Type           models.TransactionType
	PaymentMode    models.PaymentMode
	RegistrationId *string
}

type redeemLeg struct {
	FolioNumber    string
	InvestorId     string
	Selector       Selector
	Type           models.TransactionType
	PaymentMode    models.PaymentMode
	RegistrationId *string
}

// ResolveSchemeId maps an alias onto the canonical scheme id. Unknown codes are returned as given.
func (e *Engine) ResolveSchemeId(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	canonical, ok, err := e.Ledger.Store.ResolveSchemeAlias(ctx, code)
	if err != nil {
		return "", err
	}
	if ok {
		return canonical, nil
	}
	return code, nil
}

func (e *Engine) ProcessPurchase(ctx context.Context, req PurchaseRequest) (*models.Transaction, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, models.ValidationError(models.ErrInvalidAmount, "got %s", req.Amount.String())
	}
	if !req.PaymentMode.IsValid() {
		return nil, models.ValidationError(models.ErrInvalidPaymentMode, "%s", string(req.PaymentMode))
	}
	schemeId, err := e.ResolveSchemeId(ctx, req.SchemeId)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = e.Ledger.RunUnitOfWork(ctx, "Engine.ProcessPurchase", func(tx store.Tx) error {
		var err error
		txn, _, err = e.purchaseInTx(ctx, tx, purchaseLeg{
			InvestorId:  req.InvestorId,
			SchemeId:    schemeId,
			Amount:      req.Amount,
			PaymentMode: req.PaymentMode,
		}, e.Ledger.now())
		if err != nil {
			return err
		}
		return e.recordCompleted(tx, txn)
	})
	if err != nil {
		e.logFailure(ctx, "ProcessPurchase", req, err)
		return nil, err
	}
	e.logTransaction(ctx, txn)
	return txn, nil
}

func (e *Engine) ProcessRedemption(ctx context.Context, req RedemptionRequest) (*models.Transaction, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Selector.validate(); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := e.Ledger.RunUnitOfWork(ctx, "Engine.ProcessRedemption", func(tx store.Tx) error {
		var err error
		txn, _, err = e.redeemInTx(ctx, tx, redeemLeg{
			FolioNumber: req.FolioNumber,
			InvestorId:  req.InvestorId,
			Selector:    req.Selector,
			Type:        models.TransactionTypeRedemption,
			PaymentMode: models.PaymentModeNeft,
		}, e.Ledger.now())
		if err != nil {
			return err
		}
		return e.recordCompleted(tx, txn)
	})
	if err != nil {
		e.logFailure(ctx, "ProcessRedemption", req, err)
		return nil, err
	}
	e.logTransaction(ctx, txn)
	return txn, nil
}

func (e *Engine) purchaseInTx(ctx context.Context, tx store.Tx, leg purchaseLeg, at time.Time) (*models.Transaction, *models.Folio, error) {
	scheme, err := tx.SchemeById(leg.SchemeId)
	if err != nil {
		return nil, nil, err
	}
	if !scheme.IsOpenForInvestment {
		return nil, nil, models.StateError(models.ErrSchemeClosedForInvest, "scheme %s", scheme.SchemeId)
	}
	folio, _, err := e.Ledger.lockOrCreateFolio(tx, leg.InvestorId, scheme)
	if err != nil {
		return nil, nil, err
	}
	kind := leg.Type
	if kind == "" {
		kind = folio.PurchaseType()
	}
	nav := models.RoundNav(scheme.CurrentNav)
	units, err := e.Ledger.ApplyPurchase(tx, folio, scheme, leg.Amount, nav, kind, at)
	if err != nil {
		return nil, nil, err
	}
	txn, err := e.newTransaction(ctx, tx, folio, kind, at)
	if err != nil {
		return nil, nil, err
	}
	txn.Amount = models.RoundMoney(leg.Amount)
	txn.GrossAmount = txn.Amount
	txn.ExitLoadAmount = decimal.Zero
	txn.Units = units
	txn.NavPerUnit = nav
	txn.PaymentMode = leg.PaymentMode
	txn.RegistrationId = leg.RegistrationId
	if err := tx.CreateTransaction(txn); err != nil {
		return nil, nil, err
	}
	return txn, folio, nil
}

func (e *Engine) redeemInTx(ctx context.Context, tx store.Tx, leg redeemLeg, at time.Time) (*models.Transaction, *models.Folio, error) {
	folio, err := tx.LockFolioByNumber(leg.FolioNumber)
	if err != nil {
		return nil, nil, err
	}
	if leg.InvestorId != "" && folio.InvestorId != leg.InvestorId {
		return nil, nil, models.ValidationError(models.ErrFolioOwnership, "folio %s", folio.FolioNumber)
	}
	scheme, err := tx.SchemeById(folio.SchemeId)
	if err != nil {
		return nil, nil, err
	}
	if !scheme.IsOpenForRedemption {
		return nil, nil, models.StateError(models.ErrSchemeClosedForRedeem, "scheme %s", scheme.SchemeId)
	}
	nav := models.RoundNav(scheme.CurrentNav)
	if !nav.IsPositive() {
		return nil, nil, models.ValidationError(models.ErrInvalidNav, "scheme %s", scheme.SchemeId)
	}
	units, err := leg.Selector.resolve(folio, nav)
	if err != nil {
		return nil, nil, err
	}
	redeemed, err := e.Ledger.ApplyRedemption(tx, folio, scheme, units, at)
	if err != nil {
		return nil, nil, err
	}

	gross := models.RoundMoney(redeemed.Mul(nav))
	exitLoad, err := e.exitLoad(ctx, tx, folio, scheme, redeemed, nav, at)
	if err != nil {
		return nil, nil, err
	}

	txn, err := e.newTransaction(ctx, tx, folio, leg.Type, at)
	if err != nil {
		return nil, nil, err
	}
	txn.GrossAmount = gross
	txn.ExitLoadAmount = exitLoad
	txn.Amount = gross.Sub(exitLoad)
	txn.Units = redeemed.Neg()
	txn.NavPerUnit = nav
	txn.PaymentMode = leg.PaymentMode
	txn.RegistrationId = leg.RegistrationId
	if err := tx.CreateTransaction(txn); err != nil {
		return nil, nil, err
	}
	return txn, folio, nil
}

// exitLoad prices the redemption fee. Under the holding-period policy only the
// FIFO slices held fewer than the scheme's exit load period are charged; the
// flat policy charges the whole redemption whenever both rate and period are set.
func (e *Engine) exitLoad(ctx context.Context, tx store.Tx, folio *models.Folio, scheme *models.Scheme, units, nav decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if !scheme.HasExitLoad() || scheme.ExitLoadPeriodDays <= 0 {
		return decimal.Zero, nil
	}
	rate := scheme.ExitLoadPercentage.Div(decimal.NewFromInt(100))
	if e.Ledger.Settings.ExitLoadPolicy == config.ExitLoadFlat {
		return models.RoundMoney(units.Mul(nav).Mul(rate)), nil
	}

	lots, err := e.loadLotQueue(tx, folio.FolioNumber)
	if err != nil {
		return decimal.Zero, err
	}
	slices, err := lots.Match(units)
	if err != nil {
		e.Ledger.log(ctx, logrus.Fields{
			"field":        "Engine",
			"folio_number": folio.FolioNumber,
			"units":        units.String(),
		}).Error("exit load lot matching failed: " + err.Error())
		return decimal.Zero, err
	}
	chargeable := decimal.Zero
	for _, s := range slices {
		if models.HoldingDays(s.PurchaseDate, at) < scheme.ExitLoadPeriodDays {
			chargeable = chargeable.Add(s.Units)
		}
	}
	return models.RoundMoney(chargeable.Mul(nav).Mul(rate)), nil
}

// loadLotQueue rebuilds the folio's open lots from its completed history, page by page.
func (e *Engine) loadLotQueue(tx store.Tx, folioNumber string) (*models.LotQueue, error) {
	pageSize := e.Ledger.Settings.CapitalGainsPageSize
	if pageSize <= 0 {
		pageSize = config.DefaultEngineSettings().CapitalGainsPageSize
	}
	lots := &models.LotQueue{}
	var cursor store.Cursor
	for {
		page, err := tx.ListCompletedTransactions(folioNumber, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range page {
			if _, err := lots.ApplyTransaction(&page[i]); err != nil {
				return nil, err
			}
		}
		if len(page) < pageSize {
			return lots, nil
		}
		cursor = store.CursorAfter(&page[len(page)-1])
	}
}

func (e *Engine) newTransaction(ctx context.Context, tx store.Tx, folio *models.Folio, kind models.TransactionType, at time.Time) (*models.Transaction, error) {
	id, err := tx.NextSequence(models.SequenceTransaction)
	if err != nil {
		return nil, err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return &models.Transaction{
		TransactionId:   id,
		InvestorId:      folio.InvestorId,
		FolioNumber:     folio.FolioNumber,
		AmcId:           folio.AmcId,
		SchemeId:        folio.SchemeId,
		Type:            kind,
		Status:          models.TransactionStatusCompleted,
		TransactionDate: at,
		CorrelationId:   correlationId,
	}, nil
}

// recordCompleted writes one outbox event per completed transaction in the same unit of work.
func (e *Engine) recordCompleted(tx store.Tx, txns ...*models.Transaction) error {
	for _, txn := range txns {
		event, err := models.NewTransactionEvent(txn)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(event); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) GetFolio(ctx context.Context, folioNumber string) (*models.Folio, error) {
	return e.Ledger.Store.FolioByNumber(ctx, folioNumber)
}

type FolioSummary struct {
	FolioNumber    string
	SchemeId       string
	SchemeName     string
	SchemeType     models.SchemeType
	Units          decimal.Decimal
	Nav            decimal.Decimal
	CurrentValue   decimal.Decimal
	Investment     decimal.Decimal
	AverageCost    decimal.Decimal
	UnrealisedGain decimal.Decimal
}

type PortfolioSummary struct {
	InvestorId      string
	Folios          []FolioSummary
	TotalValue      decimal.Decimal
	TotalInvestment decimal.Decimal
	TotalGain       decimal.Decimal
	// GainPercent is TotalGain over TotalInvestment in percent, 2 dp.
	GainPercent decimal.Decimal
}

// PortfolioSummary values the investor's active folios at each scheme's current NAV.
func (e *Engine) PortfolioSummary(ctx context.Context, investorId string) (*PortfolioSummary, error) {
	folios, err := e.Ledger.Store.FoliosByInvestor(ctx, investorId)
	if err != nil {
		return nil, err
	}
	summary := &PortfolioSummary{
		InvestorId:      investorId,
		TotalValue:      decimal.Zero,
		TotalInvestment: decimal.Zero,
		TotalGain:       decimal.Zero,
		GainPercent:     decimal.Zero,
	}
	for i := range folios {
		f := folios[i]
		if f.Status != models.FolioStatusActive || f.IsEmpty() {
			continue
		}
		scheme, err := e.Ledger.Store.SchemeById(ctx, f.SchemeId)
		if err != nil {
			return nil, err
		}
		f.Reprice(scheme.CurrentNav)
		gain := f.UnrealisedGain()
		summary.Folios = append(summary.Folios, FolioSummary{
			FolioNumber:    f.FolioNumber,
			SchemeId:       f.SchemeId,
			SchemeName:     scheme.Name,
			SchemeType:     scheme.SchemeType,
			Units:          f.TotalUnits,
			Nav:            f.CurrentNav,
			CurrentValue:   f.TotalValue,
			Investment:     f.TotalInvestment,
			AverageCost:    f.AverageCostPerUnit,
			UnrealisedGain: gain,
		})
		summary.TotalValue = summary.TotalValue.Add(f.TotalValue)
		summary.TotalInvestment = summary.TotalInvestment.Add(f.TotalInvestment)
		summary.TotalGain = summary.TotalGain.Add(gain)
	}
	if summary.TotalInvestment.IsPositive() {
		summary.GainPercent = summary.TotalGain.Div(summary.TotalInvestment).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return summary, nil
}

// TransactionHistory returns the investor's transactions, newest first.
func (e *Engine) TransactionHistory(ctx context.Context, investorId string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return e.Ledger.Store.TransactionHistory(ctx, investorId, limit)
}

func (e *Engine) logTransaction(ctx context.Context, txn *models.Transaction) {
	e.Ledger.log(ctx, logrus.Fields{
		"field":          "Engine",
		"transaction_id": txn.TransactionId,
		"folio_number":   txn.FolioNumber,
		"type":           txn.Type,
		"amount":         txn.Amount.String(),
		"units":          txn.Units.String(),
	}).Info("transaction completed")
}

func (e *Engine) logFailure(ctx context.Context, funcName string, data any, err error) {
	if models.IsKind(err, models.KindIntegrity) || models.KindOf(err) == "" {
		config.LogError(e.Ledger.Logger, "Engine", funcName, "unit of work failed", data, err)
		return
	}
	e.Ledger.log(ctx, logrus.Fields{
		"field": "Engine",
		"func":  funcName,
		"kind":  models.KindOf(err),
	}).Info("request rejected: " + err.Error())
}
