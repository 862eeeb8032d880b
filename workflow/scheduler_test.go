package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

func (h *harness) mandate(investorId, bankAccountId string, status models.MandateStatus, limit string) {
	h.store.PutMandate(models.BankMandate{
		BankAccountId: bankAccountId,
		InvestorId:    investorId,
		Status:        status,
		AmountLimit:   dec(limit),
	})
}

func (h *harness) setupSIP(t *testing.T, investorId, bankAccountId string, start time.Time, count *int) *models.Registration {
	t.Helper()
	reg, err := h.scheduler().SetupSIP(context.Background(), SetupSIPRequest{
		InvestorId:    investorId,
		SchemeId:      "EQ1",
		BankAccountId: bankAccountId,
		Terms: PlanTerms{
			Amount:           dec("1000"),
			Frequency:        models.FrequencyMonthly,
			StartDate:        start,
			InstallmentCount: count,
		},
	})
	if err != nil {
		t.Fatalf("SetupSIP(%s): %v", investorId, err)
	}
	return reg
}

func (h *harness) registration(t *testing.T, id string) *models.Registration {
	t.Helper()
	reg, err := h.store.RegistrationById(context.Background(), id)
	if err != nil {
		t.Fatalf("RegistrationById(%s): %v", id, err)
	}
	return reg
}

func TestSIPCompletesAfterInstallmentCount(t *testing.T) {
	h := newHarness(t)
	h.mandate("INV1", "BANK1", models.MandateStatusActive, "5000")
	count := 3
	reg := h.setupSIP(t, "INV1", "BANK1", day(2024, time.January, 31), &count)
	if reg.RegistrationId != "SIP001" || reg.Status != models.PlanStatusActive || reg.FolioNumber == "" {
		t.Fatalf("registration = %+v", reg)
	}
	ctx := context.Background()

	wantNext := []time.Time{day(2024, time.February, 29), day(2024, time.March, 31), day(2024, time.April, 30)}
	for i := 0; i < count; i++ {
		res, err := h.scheduler().ProcessInstallment(ctx, reg.RegistrationId)
		if err != nil {
			t.Fatalf("installment %d: %v", i+1, err)
		}
		if res.Transaction.Type != models.TransactionTypeSip || res.Transaction.PaymentMode != models.PaymentModeDebitMandate {
			t.Fatalf("installment txn type=%s mode=%s", res.Transaction.Type, res.Transaction.PaymentMode)
		}
		if res.Transaction.RegistrationId == nil || *res.Transaction.RegistrationId != reg.RegistrationId {
			t.Fatalf("installment txn not tagged with registration")
		}
		if !res.Registration.NextInstallmentDate.Equal(wantNext[i]) {
			t.Fatalf("next date %d = %s", i+1, res.Registration.NextInstallmentDate.Format(models.DateLayout))
		}
	}

	got := h.registration(t, reg.RegistrationId)
	if got.Status != models.PlanStatusCompleted || got.InstallmentsCompleted != 3 || !got.CumulativeAmount.Equal(dec("3000")) {
		t.Fatalf("registration after 3 installments: status=%s completed=%d cumulative=%s", got.Status, got.InstallmentsCompleted, got.CumulativeAmount)
	}
	if got.LastTransactionId == nil || *got.LastTransactionId == "" {
		t.Fatalf("last transaction not recorded")
	}

	_, err := h.scheduler().ProcessInstallment(ctx, reg.RegistrationId)
	if !models.IsKind(err, models.KindState) || !errors.Is(err, models.ErrRegistrationNotActive) {
		t.Fatalf("4th installment: %v", err)
	}
	if f := h.folio(t, reg.FolioNumber); !f.TotalUnits.Equal(dec("300")) {
		t.Fatalf("folio units = %s, want 300", f.TotalUnits)
	}
}

func TestSIPMandateNotReadyLeavesRegistrationActive(t *testing.T) {
	h := newHarness(t)
	h.mandate("INV1", "BANK1", models.MandateStatusActive, "5000")
	reg := h.setupSIP(t, "INV1", "BANK1", day(2024, time.January, 15), nil)
	eventsBefore := len(h.store.LedgerEvents())

	h.mandate("INV1", "BANK1", models.MandateStatusInactive, "5000")
	_, err := h.scheduler().ProcessInstallment(context.Background(), reg.RegistrationId)
	if !models.IsKind(err, models.KindMandate) || !errors.Is(err, models.ErrMandateInactive) {
		t.Fatalf("expected mandate error, got %v", err)
	}

	got := h.registration(t, reg.RegistrationId)
	if got.Status != models.PlanStatusActive || got.InstallmentsCompleted != 0 {
		t.Fatalf("registration must stay active and untouched: %+v", got)
	}
	if !got.NextInstallmentDate.Equal(day(2024, time.January, 15)) {
		t.Fatalf("schedule advanced on failure: %s", got.NextInstallmentDate)
	}
	if got.LastError == nil {
		t.Fatalf("failure reason not recorded")
	}
	if n := len(h.store.Transactions()); n != 0 {
		t.Fatalf("transactions = %d, want 0", n)
	}
	events := h.store.LedgerEvents()
	if len(events) != eventsBefore+1 || events[len(events)-1].EventType != models.LedgerEventInstallmentFailed {
		t.Fatalf("expected one installment.failed event, got %+v", events[eventsBefore:])
	}
}

func TestSetupSIPChecksMandate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	terms := PlanTerms{Amount: dec("1000"), Frequency: models.FrequencyMonthly, StartDate: day(2024, time.February, 1)}

	h.mandate("INV1", "BANK1", models.MandateStatusActive, "500")
	_, err := h.scheduler().SetupSIP(ctx, SetupSIPRequest{InvestorId: "INV1", SchemeId: "EQ1", BankAccountId: "BANK1", Terms: terms})
	if !errors.Is(err, models.ErrMandateOverLimit) {
		t.Fatalf("over limit: %v", err)
	}

	expired := day(2024, time.January, 1)
	h.store.PutMandate(models.BankMandate{BankAccountId: "BANK2", InvestorId: "INV1", Status: models.MandateStatusActive, AmountLimit: dec("5000"), ExpiryDate: &expired})
	_, err = h.scheduler().SetupSIP(ctx, SetupSIPRequest{InvestorId: "INV1", SchemeId: "EQ1", BankAccountId: "BANK2", Terms: terms})
	if !errors.Is(err, models.ErrMandateExpired) {
		t.Fatalf("expired: %v", err)
	}

	h.mandate("INV2", "BANK3", models.MandateStatusActive, "5000")
	_, err = h.scheduler().SetupSIP(ctx, SetupSIPRequest{InvestorId: "INV1", SchemeId: "EQ1", BankAccountId: "BANK3", Terms: terms})
	if !errors.Is(err, models.ErrMandateNotFound) {
		t.Fatalf("foreign mandate: %v", err)
	}

	bad := terms
	bad.Frequency = "fortnightly"
	h.mandate("INV1", "BANK4", models.MandateStatusActive, "5000")
	_, err = h.scheduler().SetupSIP(ctx, SetupSIPRequest{InvestorId: "INV1", SchemeId: "EQ1", BankAccountId: "BANK4", Terms: bad})
	if !errors.Is(err, models.ErrInvalidFrequency) {
		t.Fatalf("frequency: %v", err)
	}
	end := day(2024, time.January, 1)
	bad = terms
	bad.EndDate = &end
	_, err = h.scheduler().SetupSIP(ctx, SetupSIPRequest{InvestorId: "INV1", SchemeId: "EQ1", BankAccountId: "BANK4", Terms: bad})
	if !errors.Is(err, models.ErrInvalidDateRange) {
		t.Fatalf("date range: %v", err)
	}
}

func TestSWPInstallmentRedeemsAmount(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "INV1", "EQ1", "10000")
	ctx := context.Background()

	reg, err := h.scheduler().SetupSWP(ctx, SetupSWPRequest{
		InvestorId:  "INV1",
		FolioNumber: "F001",
		Terms:       PlanTerms{Amount: dec("2000"), Frequency: models.FrequencyWeekly, StartDate: day(2024, time.January, 15)},
	})
	if err != nil {
		t.Fatalf("SetupSWP: %v", err)
	}
	if reg.RegistrationId != "SWP001" {
		t.Fatalf("registration id = %s", reg.RegistrationId)
	}
	res, err := h.scheduler().ProcessInstallment(ctx, reg.RegistrationId)
	if err != nil {
		t.Fatalf("ProcessInstallment: %v", err)
	}
	if res.Transaction.Type != models.TransactionTypeSwp || !res.Transaction.Units.Equal(dec("-200")) || !res.Transaction.Amount.Equal(dec("2000")) {
		t.Fatalf("swp txn type=%s units=%s amount=%s", res.Transaction.Type, res.Transaction.Units, res.Transaction.Amount)
	}
	if !res.Registration.NextInstallmentDate.Equal(day(2024, time.January, 22)) {
		t.Fatalf("next = %s", res.Registration.NextInstallmentDate)
	}
	if f := h.folio(t, "F001"); !f.TotalUnits.Equal(dec("800")) {
		t.Fatalf("units = %s", f.TotalUnits)
	}

	_, err = h.scheduler().SetupSWP(ctx, SetupSWPRequest{
		InvestorId:  "INV2",
		FolioNumber: "F001",
		Terms:       PlanTerms{Amount: dec("2000"), Frequency: models.FrequencyWeekly, StartDate: day(2024, time.January, 15)},
	})
	if !errors.Is(err, models.ErrFolioOwnership) {
		t.Fatalf("foreign folio: %v", err)
	}
}

func TestSWPInsufficientUnitsRecordsFailure(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "INV1", "EQ1", "1000")
	reg, err := h.scheduler().SetupSWP(context.Background(), SetupSWPRequest{
		InvestorId:  "INV1",
		FolioNumber: "F001",
		Terms:       PlanTerms{Amount: dec("5000"), Frequency: models.FrequencyMonthly, StartDate: day(2024, time.January, 15)},
	})
	if err != nil {
		t.Fatalf("SetupSWP: %v", err)
	}
	_, err = h.scheduler().ProcessInstallment(context.Background(), reg.RegistrationId)
	if !errors.Is(err, models.ErrInsufficientUnits) {
		t.Fatalf("expected insufficient units, got %v", err)
	}
	got := h.registration(t, reg.RegistrationId)
	if got.LastError == nil || got.Status != models.PlanStatusActive {
		t.Fatalf("failure not recorded: %+v", got)
	}
}

func TestSTPInstallmentSwitchesFixedAmount(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "INV1", "EQ1", "10000")
	ctx := context.Background()

	reg, err := h.scheduler().SetupSTP(ctx, SetupSTPRequest{
		InvestorId:        "INV1",
		SourceFolioNumber: "F001",
		TargetSchemeId:    "DEBT1",
		Terms:             PlanTerms{Amount: dec("1000"), Frequency: models.FrequencyMonthly, StartDate: day(2024, time.January, 15)},
	})
	if err != nil {
		t.Fatalf("SetupSTP: %v", err)
	}
	if reg.TargetFolioNumber == nil || reg.TargetSchemeId == nil || *reg.TargetSchemeId != "DEBT1" {
		t.Fatalf("target not recorded: %+v", reg)
	}

	res, err := h.scheduler().ProcessInstallment(ctx, reg.RegistrationId)
	if err != nil {
		t.Fatalf("ProcessInstallment: %v", err)
	}
	if res.Transaction.Type != models.TransactionTypeStpRedemption || res.Linked == nil || res.Linked.Type != models.TransactionTypeStpPurchase {
		t.Fatalf("stp legs: %+v / %+v", res.Transaction, res.Linked)
	}
	if *res.Transaction.LinkedTransactionId != res.Linked.TransactionId {
		t.Fatalf("legs not linked")
	}
	if f := h.folio(t, "F001"); !f.TotalUnits.Equal(dec("900")) {
		t.Fatalf("source units = %s", f.TotalUnits)
	}
	if f := h.folio(t, *reg.TargetFolioNumber); !f.TotalUnits.Equal(dec("50")) {
		t.Fatalf("target units = %s", f.TotalUnits)
	}

	_, err = h.scheduler().SetupSTP(ctx, SetupSTPRequest{
		InvestorId:        "INV1",
		SourceFolioNumber: "F001",
		TargetSchemeId:    "EQ1",
		Terms:             PlanTerms{Amount: dec("1000"), Frequency: models.FrequencyMonthly, StartDate: day(2024, time.January, 15)},
	})
	if !errors.Is(err, models.ErrSameScheme) {
		t.Fatalf("same scheme stp: %v", err)
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	h := newHarness(t)
	h.mandate("INV1", "BANK1", models.MandateStatusActive, "5000")
	reg := h.setupSIP(t, "INV1", "BANK1", day(2024, time.January, 15), nil)
	ctx := context.Background()

	paused, err := h.scheduler().PauseRegistration(ctx, reg.RegistrationId)
	if err != nil || paused.Status != models.PlanStatusPaused {
		t.Fatalf("pause: %v %v", paused, err)
	}
	if _, err := h.scheduler().ProcessInstallment(ctx, reg.RegistrationId); !errors.Is(err, models.ErrRegistrationNotActive) {
		t.Fatalf("installment on paused registration: %v", err)
	}
	if got := h.registration(t, reg.RegistrationId); got.LastError != nil {
		t.Fatalf("paused rejection should not be recorded as a failure")
	}
	if _, err := h.scheduler().PauseRegistration(ctx, reg.RegistrationId); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("double pause: %v", err)
	}
	resumed, err := h.scheduler().ResumeRegistration(ctx, reg.RegistrationId)
	if err != nil || resumed.Status != models.PlanStatusActive {
		t.Fatalf("resume: %v %v", resumed, err)
	}
	cancelled, err := h.scheduler().CancelRegistration(ctx, reg.RegistrationId)
	if err != nil || cancelled.Status != models.PlanStatusCancelled {
		t.Fatalf("cancel: %v %v", cancelled, err)
	}
	if _, err := h.scheduler().ResumeRegistration(ctx, reg.RegistrationId); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("resume cancelled: %v", err)
	}
	if _, err := h.scheduler().CancelRegistration(ctx, "SIP999"); !errors.Is(err, models.ErrRegistrationNotFound) {
		t.Fatalf("unknown registration: %v", err)
	}
}
