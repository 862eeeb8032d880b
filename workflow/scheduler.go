package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// errNotDue marks a registration that was due when listed but not any more
// once locked, because another scheduler replica processed it first.
var errNotDue = errors.New("registration no longer due")

// Scheduler owns SIP, SWP and STP registrations and drives the engine for each installment.
type Scheduler struct {
	Engine *Engine
	// Locker guards batch runs across replicas. Nil disables the guard.
	Locker RunLocker
}

func NewScheduler(engine *Engine, locker RunLocker) *Scheduler {
	return &Scheduler{Engine: engine, Locker: locker}
}

func (s *Scheduler) ledger() *Ledger {
	return s.Engine.Ledger
}

// PlanTerms are shared by every registration kind.
type PlanTerms struct {
	Amount           decimal.Decimal  `validate:"-"`
	Frequency        models.Frequency `validate:"required"`
	StartDate        time.Time        `validate:"-"`
	EndDate          *time.Time       `validate:"-"`
	InstallmentCount *int             `validate:"omitempty,gt=0"`
}

func (t PlanTerms) validate() error {
	if !t.Amount.IsPositive() {
		return models.ValidationError(models.ErrInvalidAmount, "got %s", t.Amount.String())
	}
	if !t.Frequency.IsValid() {
		return models.ValidationError(models.ErrInvalidFrequency, "%s", string(t.Frequency))
	}
	if t.StartDate.IsZero() {
		return models.ValidationError(models.ErrValidationFailed, "start date is required")
	}
	if t.EndDate != nil && models.DateOnly(*t.EndDate).Before(models.DateOnly(t.StartDate)) {
		return models.ValidationError(models.ErrInvalidDateRange, "%s before %s", t.EndDate.Format(models.DateLayout), t.StartDate.Format(models.DateLayout))
	}
	return nil
}

func (t PlanTerms) registration(kind models.PlanKind, investorId string) *models.Registration {
	var endDate *time.Time
	if t.EndDate != nil {
		d := models.DateOnly(*t.EndDate)
		endDate = &d
	}
	return &models.Registration{
		Kind:                  kind,
		InvestorId:            investorId,
		Amount:                models.RoundMoney(t.Amount),
		Frequency:             t.Frequency,
		StartDate:             models.DateOnly(t.StartDate),
		EndDate:               endDate,
		InstallmentCount:      t.InstallmentCount,
		NextInstallmentDate:   models.DateOnly(t.StartDate),
		InstallmentsCompleted: 0,
		CumulativeAmount:      decimal.Zero,
		Status:                models.PlanStatusActive,
	}
}

type SetupSIPRequest struct {
	InvestorId    string `validate:"required,max=32"`
	SchemeId      string `validate:"required,max=32"`
	BankAccountId string `validate:"required,max=32"`
	Terms         PlanTerms
}

type SetupSWPRequest struct {
	InvestorId    string `validate:"required,max=32"`
	FolioNumber   string `validate:"required,max=32"`
	BankAccountId string `validate:"omitempty,max=32"`
	Terms         PlanTerms
}

type SetupSTPRequest struct {
	InvestorId        string `validate:"required,max=32"`
	SourceFolioNumber string `validate:"required,max=32"`
	TargetSchemeId    string `validate:"required,max=32"`
	Terms             PlanTerms
}

// checkMandate verifies that the investor's mandate can back amount. It is a
// plain read and is always evaluated before any row lock is taken.
func (s *Scheduler) checkMandate(ctx context.Context, investorId, bankAccountId string, amount decimal.Decimal) error {
	mandate, err := s.ledger().Store.MandateByBankAccount(ctx, bankAccountId)
	if err != nil {
		return err
	}
	if mandate.InvestorId != investorId {
		return models.NotFoundError(models.ErrMandateNotFound, "%s", bankAccountId)
	}
	return mandate.CheckReady(amount, s.ledger().now())
}

func (s *Scheduler) SetupSIP(ctx context.Context, req SetupSIPRequest) (*models.Registration, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Terms.validate(); err != nil {
		return nil, err
	}
	schemeId, err := s.Engine.ResolveSchemeId(ctx, req.SchemeId)
	if err != nil {
		return nil, err
	}
	if err := s.checkMandate(ctx, req.InvestorId, req.BankAccountId, req.Terms.Amount); err != nil {
		return nil, err
	}

	reg := req.Terms.registration(models.PlanKindSip, req.InvestorId)
	bank := req.BankAccountId
	reg.BankAccountId = &bank
	err = s.ledger().RunUnitOfWork(ctx, "Scheduler.SetupSIP", func(tx store.Tx) error {
		scheme, err := tx.SchemeById(schemeId)
		if err != nil {
			return err
		}
		if !scheme.IsOpenForInvestment {
			return models.StateError(models.ErrSchemeClosedForInvest, "scheme %s", scheme.SchemeId)
		}
		if minimum := scheme.SipMinimumInstallment; minimum.IsPositive() && reg.Amount.LessThan(minimum) {
			return models.ValidationError(models.ErrBelowMinimumInvestment, "%s is below %s for sip", reg.Amount.StringFixed(2), minimum.StringFixed(2))
		}
		folio, _, err := s.ledger().lockOrCreateFolio(tx, req.InvestorId, scheme)
		if err != nil {
			return err
		}
		reg.FolioNumber = folio.FolioNumber
		reg.SchemeId = scheme.SchemeId
		return s.createRegistration(tx, reg, correlationId)
	})
	if err != nil {
		return nil, err
	}
	s.logRegistration(ctx, reg, "registration created")
	return reg, nil
}

func (s *Scheduler) SetupSWP(ctx context.Context, req SetupSWPRequest) (*models.Registration, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Terms.validate(); err != nil {
		return nil, err
	}

	reg := req.Terms.registration(models.PlanKindSwp, req.InvestorId)
	if req.BankAccountId != "" {
		bank := req.BankAccountId
		reg.BankAccountId = &bank
	}
	err := s.ledger().RunUnitOfWork(ctx, "Scheduler.SetupSWP", func(tx store.Tx) error {
		folio, err := tx.LockFolioByNumber(req.FolioNumber)
		if err != nil {
			return err
		}
		if folio.InvestorId != req.InvestorId {
			return models.ValidationError(models.ErrFolioOwnership, "folio %s", folio.FolioNumber)
		}
		if folio.IsEmpty() {
			return models.StateError(models.ErrNothingToRedeem, "folio %s holds no units", folio.FolioNumber)
		}
		scheme, err := tx.SchemeById(folio.SchemeId)
		if err != nil {
			return err
		}
		if !scheme.IsOpenForRedemption {
			return models.StateError(models.ErrSchemeClosedForRedeem, "scheme %s", scheme.SchemeId)
		}
		reg.FolioNumber = folio.FolioNumber
		reg.SchemeId = folio.SchemeId
		return s.createRegistration(tx, reg, correlationId)
	})
	if err != nil {
		return nil, err
	}
	s.logRegistration(ctx, reg, "registration created")
	return reg, nil
}

func (s *Scheduler) SetupSTP(ctx context.Context, req SetupSTPRequest) (*models.Registration, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Terms.validate(); err != nil {
		return nil, err
	}
	targetId, err := s.Engine.ResolveSchemeId(ctx, req.TargetSchemeId)
	if err != nil {
		return nil, err
	}

	reg := req.Terms.registration(models.PlanKindStp, req.InvestorId)
	err = s.ledger().RunUnitOfWork(ctx, "Scheduler.SetupSTP", func(tx store.Tx) error {
		source, err := tx.LockFolioByNumber(req.SourceFolioNumber)
		if err != nil {
			return err
		}
		if source.InvestorId != req.InvestorId {
			return models.ValidationError(models.ErrFolioOwnership, "folio %s", source.FolioNumber)
		}
		if source.SchemeId == targetId {
			return models.ValidationError(models.ErrSameScheme, "scheme %s", targetId)
		}
		if source.IsEmpty() {
			return models.StateError(models.ErrNothingToRedeem, "folio %s holds no units", source.FolioNumber)
		}
		target, err := tx.SchemeById(targetId)
		if err != nil {
			return err
		}
		if !target.IsOpenForInvestment {
			return models.StateError(models.ErrSchemeClosedForInvest, "scheme %s", target.SchemeId)
		}
		targetFolio, _, err := s.ledger().lockOrCreateFolio(tx, req.InvestorId, target)
		if err != nil {
			return err
		}
		reg.FolioNumber = source.FolioNumber
		reg.SchemeId = source.SchemeId
		targetFolioNumber := targetFolio.FolioNumber
		targetSchemeId := target.SchemeId
		reg.TargetFolioNumber = &targetFolioNumber
		reg.TargetSchemeId = &targetSchemeId
		return s.createRegistration(tx, reg, correlationId)
	})
	if err != nil {
		return nil, err
	}
	s.logRegistration(ctx, reg, "registration created")
	return reg, nil
}

func (s *Scheduler) createRegistration(tx store.Tx, reg *models.Registration, correlationId string) error {
	id, err := tx.NextSequence(models.SequenceForPlan(reg.Kind))
	if err != nil {
		return err
	}
	reg.RegistrationId = id
	if err := tx.CreateRegistration(reg); err != nil {
		return err
	}
	return s.appendRegistrationEvent(tx, reg, correlationId)
}

func (s *Scheduler) appendRegistrationEvent(tx store.Tx, reg *models.Registration, correlationId string) error {
	event, err := models.NewRegistrationEvent(reg, correlationId)
	if err != nil {
		return err
	}
	return tx.AppendEvent(event)
}

func (s *Scheduler) PauseRegistration(ctx context.Context, registrationId string) (*models.Registration, error) {
	return s.transition(ctx, "Scheduler.PauseRegistration", registrationId, (*models.Registration).Pause)
}

func (s *Scheduler) ResumeRegistration(ctx context.Context, registrationId string) (*models.Registration, error) {
	return s.transition(ctx, "Scheduler.ResumeRegistration", registrationId, (*models.Registration).Resume)
}

func (s *Scheduler) CancelRegistration(ctx context.Context, registrationId string) (*models.Registration, error) {
	return s.transition(ctx, "Scheduler.CancelRegistration", registrationId, (*models.Registration).Cancel)
}

func (s *Scheduler) transition(ctx context.Context, name, registrationId string, apply func(*models.Registration) error) (*models.Registration, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	var reg *models.Registration
	err := s.ledger().RunUnitOfWork(ctx, name, func(tx store.Tx) error {
		var err error
		reg, err = tx.LockRegistration(registrationId)
		if err != nil {
			return err
		}
		if err := apply(reg); err != nil {
			return err
		}
		if err := tx.SaveRegistration(reg); err != nil {
			return err
		}
		return s.appendRegistrationEvent(tx, reg, correlationId)
	})
	if err != nil {
		return nil, err
	}
	s.logRegistration(ctx, reg, "registration status changed")
	return reg, nil
}

type InstallmentStatus string

const (
	InstallmentProcessed InstallmentStatus = "processed"
	InstallmentSkipped   InstallmentStatus = "skipped"
	InstallmentFailed    InstallmentStatus = "failed"
)

// InstallmentResult reports one registration's outcome. STP installments
// carry both legs; the redemption leg is Transaction.
type InstallmentResult struct {
	RegistrationId string
	Kind           models.PlanKind
	Status         InstallmentStatus
	Transaction    *models.Transaction
	Linked         *models.Transaction
	Registration   *models.Registration
	Err            error
}

// ProcessInstallment runs the next installment of an active registration now,
// regardless of its due date.
func (s *Scheduler) ProcessInstallment(ctx context.Context, registrationId string) (*InstallmentResult, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	reg, err := s.ledger().Store.RegistrationById(ctx, registrationId)
	if err != nil {
		return nil, err
	}
	return s.runInstallment(ctx, reg, nil)
}

// runInstallment executes one installment. When asOf is set the registration
// must still be due once locked, otherwise errNotDue is returned.
func (s *Scheduler) runInstallment(ctx context.Context, snapshot *models.Registration, asOf *time.Time) (*InstallmentResult, error) {
	if snapshot.Status != models.PlanStatusActive {
		return nil, models.StateError(models.ErrRegistrationNotActive, "%s is %s", snapshot.RegistrationId, snapshot.Status)
	}
	if snapshot.Kind == models.PlanKindSip {
		if snapshot.BankAccountId == nil {
			return nil, models.NotFoundError(models.ErrMandateNotFound, "%s", snapshot.RegistrationId)
		}
		if err := s.checkMandate(ctx, snapshot.InvestorId, *snapshot.BankAccountId, snapshot.Amount); err != nil {
			s.recordFailure(ctx, snapshot.RegistrationId, err)
			return nil, err
		}
	}

	result := &InstallmentResult{RegistrationId: snapshot.RegistrationId, Kind: snapshot.Kind}
	err := s.ledger().RunUnitOfWork(ctx, "Scheduler.ProcessInstallment", func(tx store.Tx) error {
		reg, err := tx.LockRegistration(snapshot.RegistrationId)
		if err != nil {
			return err
		}
		if reg.Status != models.PlanStatusActive {
			return models.StateError(models.ErrRegistrationNotActive, "%s is %s", reg.RegistrationId, reg.Status)
		}
		if asOf != nil && !reg.IsDue(*asOf) {
			return errNotDue
		}

		at := s.ledger().now()
		regId := reg.RegistrationId
		switch reg.Kind {
		case models.PlanKindSip:
			txn, _, err := s.Engine.purchaseInTx(ctx, tx, purchaseLeg{
				InvestorId:     reg.InvestorId,
				SchemeId:       reg.SchemeId,
				Amount:         reg.Amount,
				Type:           models.TransactionTypeSip,
				PaymentMode:    models.PaymentModeDebitMandate,
				RegistrationId: &regId,
			}, at)
			if err != nil {
				return err
			}
			if err := s.Engine.recordCompleted(tx, txn); err != nil {
				return err
			}
			result.Transaction = txn
		case models.PlanKindSwp:
			txn, _, err := s.Engine.redeemInTx(ctx, tx, redeemLeg{
				FolioNumber:    reg.FolioNumber,
				InvestorId:     reg.InvestorId,
				Selector:       AmountSelector(reg.Amount),
				Type:           models.TransactionTypeSwp,
				PaymentMode:    models.PaymentModeNeft,
				RegistrationId: &regId,
			}, at)
			if err != nil {
				return err
			}
			if err := s.Engine.recordCompleted(tx, txn); err != nil {
				return err
			}
			result.Transaction = txn
		case models.PlanKindStp:
			if reg.TargetSchemeId == nil {
				return models.ValidationError(models.ErrSchemeNotFound, "%s has no target scheme", reg.RegistrationId)
			}
			sw, err := s.Engine.switchInTx(ctx, tx, switchLeg{
				InvestorId:        reg.InvestorId,
				SourceFolioNumber: reg.FolioNumber,
				TargetSchemeId:    *reg.TargetSchemeId,
				Selector:          AmountSelector(reg.Amount),
				RedeemType:        models.TransactionTypeStpRedemption,
				PurchaseType:      models.TransactionTypeStpPurchase,
				RegistrationId:    &regId,
			}, at)
			if err != nil {
				return err
			}
			result.Transaction = sw.Redemption
			result.Linked = sw.Purchase
		}

		reg.RecordInstallment(result.Transaction.TransactionId, reg.Amount, at)
		if err := tx.SaveRegistration(reg); err != nil {
			return err
		}
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		if err := s.appendRegistrationEvent(tx, reg, correlationId); err != nil {
			return err
		}
		result.Registration = reg
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotDue) && !errors.Is(err, models.ErrRegistrationNotActive) {
			s.recordFailure(ctx, snapshot.RegistrationId, err)
		}
		return nil, err
	}
	result.Status = InstallmentProcessed
	s.logRegistration(ctx, result.Registration, "installment processed")
	return result, nil
}

// recordFailure keeps the failure reason on the registration for manual
// follow-up. Status and schedule are left untouched. Best effort.
func (s *Scheduler) recordFailure(ctx context.Context, registrationId string, cause error) {
	if models.KindOf(cause).Retryable() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	err := s.ledger().RunUnitOfWork(ctx, "Scheduler.recordFailure", func(tx store.Tx) error {
		reg, err := tx.LockRegistration(registrationId)
		if err != nil {
			return err
		}
		reg.RecordFailure(cause)
		if err := tx.SaveRegistration(reg); err != nil {
			return err
		}
		event, err := models.NewInstallmentFailedEvent(reg, cause, correlationId)
		if err != nil {
			return err
		}
		return tx.AppendEvent(event)
	})
	entry := s.ledger().log(ctx, logrus.Fields{
		"field":           "Scheduler",
		"registration_id": registrationId,
		"kind":            models.KindOf(cause),
	})
	if err != nil {
		entry.Error("failed to record installment failure: " + err.Error())
		return
	}
	entry.Warn("installment failed: " + cause.Error())
}

func (s *Scheduler) logRegistration(ctx context.Context, reg *models.Registration, msg string) {
	s.ledger().log(ctx, logrus.Fields{
		"field":                  "Scheduler",
		"registration_id":        reg.RegistrationId,
		"kind":                   reg.Kind,
		"status":                 reg.Status,
		"installments_completed": reg.InstallmentsCompleted,
		"next_installment_date":  reg.NextInstallmentDate.Format(models.DateLayout),
	}).Info(msg)
}
