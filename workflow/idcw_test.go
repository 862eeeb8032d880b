package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/rta_backend/models"
)

func TestProcessIdcwReinvestmentAndPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.purchase(t, "INV1", "EQ1", "10000")
	h.setNav(t, "EQ1", "12.5")

	reinvest, err := h.engine().ProcessIdcw(ctx, IdcwRequest{
		FolioNumber: "F001", AmountPerUnit: dec("1.5"), Option: models.IdcwOptionReinvestment,
	})
	if err != nil {
		t.Fatalf("reinvestment: %v", err)
	}
	if reinvest.Type != models.TransactionTypeIdcwReinvestment || reinvest.TransactionId != "T002" {
		t.Fatalf("reinvestment txn type=%s id=%s", reinvest.Type, reinvest.TransactionId)
	}
	if !reinvest.Amount.Equal(dec("1500")) || !reinvest.Units.Equal(dec("120")) || !reinvest.NavPerUnit.Equal(dec("12.5")) {
		t.Fatalf("reinvestment amount=%s units=%s nav=%s", reinvest.Amount, reinvest.Units, reinvest.NavPerUnit)
	}
	f := h.folio(t, "F001")
	if !f.TotalUnits.Equal(dec("1120")) || !f.TotalInvestment.Equal(dec("11500")) || !f.AverageCostPerUnit.Equal(dec("10.2679")) {
		t.Fatalf("folio after reinvestment units=%s inv=%s avg=%s", f.TotalUnits, f.TotalInvestment, f.AverageCostPerUnit)
	}

	payout, err := h.engine().ProcessIdcw(ctx, IdcwRequest{
		FolioNumber: "F001", AmountPerUnit: dec("2"), Option: models.IdcwOptionPayout,
	})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if payout.Type != models.TransactionTypeIdcwPayout || !payout.Amount.Equal(dec("2240")) || !payout.Units.IsZero() {
		t.Fatalf("payout type=%s amount=%s units=%s", payout.Type, payout.Amount, payout.Units)
	}
	f = h.folio(t, "F001")
	if !f.TotalUnits.Equal(dec("1120")) || !f.TotalInvestment.Equal(dec("11500")) || f.TransactionCount != 3 {
		t.Fatalf("payout changed the holding: units=%s inv=%s count=%d", f.TotalUnits, f.TotalInvestment, f.TransactionCount)
	}
	if n := len(h.store.LedgerEvents()); n != 3 {
		t.Fatalf("ledger events = %d, want 3", n)
	}

	// the reinvested units form their own lot at the reinvestment NAV
	if _, err := h.engine().ProcessRedemption(ctx, RedemptionRequest{FolioNumber: "F001", Selector: AllUnitsSelector()}); err != nil {
		t.Fatalf("redeem all: %v", err)
	}
	gains, err := h.services.CapitalGains.CalculateForFolio(ctx, "F001", nil)
	if err != nil {
		t.Fatalf("CalculateForFolio: %v", err)
	}
	if len(gains.ShortTerm) != 2 || !gains.TotalGain.Equal(dec("2500")) {
		t.Fatalf("gains slices=%d total=%s", len(gains.ShortTerm), gains.TotalGain)
	}
}

func TestProcessIdcwRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.purchase(t, "INV1", "EQ1", "1000")

	cases := []struct {
		name string
		req  IdcwRequest
		want error
	}{
		{"missing folio", IdcwRequest{AmountPerUnit: dec("1"), Option: models.IdcwOptionPayout}, models.ErrValidationFailed},
		{"bad option", IdcwRequest{FolioNumber: "F001", AmountPerUnit: dec("1"), Option: "cash"}, models.ErrInvalidIdcwOption},
		{"zero rate", IdcwRequest{FolioNumber: "F001", AmountPerUnit: dec("0"), Option: models.IdcwOptionPayout}, models.ErrInvalidAmount},
		{"unknown folio", IdcwRequest{FolioNumber: "F404", AmountPerUnit: dec("1"), Option: models.IdcwOptionPayout}, models.ErrFolioNotFound},
	}
	for _, c := range cases {
		if _, err := h.engine().ProcessIdcw(ctx, c.req); !errors.Is(err, c.want) {
			t.Fatalf("%s: err = %v, want %v", c.name, err, c.want)
		}
	}

	if _, err := h.engine().ProcessRedemption(ctx, RedemptionRequest{FolioNumber: "F001", Selector: AllUnitsSelector()}); err != nil {
		t.Fatalf("redeem all: %v", err)
	}
	_, err := h.engine().ProcessIdcw(ctx, IdcwRequest{FolioNumber: "F001", AmountPerUnit: dec("1"), Option: models.IdcwOptionReinvestment})
	if !errors.Is(err, models.ErrNoUnitsForIdcw) || !models.IsKind(err, models.KindState) {
		t.Fatalf("closed folio: %v", err)
	}
	if n := len(h.store.Transactions()); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
}
