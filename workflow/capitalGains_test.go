package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

// gainsHarness buys 1000u @10 and 500u @12, then redeems 1200u @15 in
// FY 2023-24 and 100u @15 in FY 2024-25.
func gainsHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	ctx := context.Background()

	h.clock.Set(day(2022, time.April, 10))
	h.purchase(t, "INV1", "EQ1", "10000")
	h.clock.Set(day(2023, time.January, 10))
	h.setNav(t, "EQ1", "12")
	h.purchase(t, "INV1", "EQ1", "6000")

	h.setNav(t, "EQ1", "15")
	h.clock.Set(day(2023, time.May, 1))
	if _, err := h.engine().ProcessRedemption(ctx, RedemptionRequest{FolioNumber: "F001", Selector: UnitsSelector(dec("1200"))}); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	h.clock.Set(day(2024, time.May, 1))
	if _, err := h.engine().ProcessRedemption(ctx, RedemptionRequest{FolioNumber: "F001", Selector: UnitsSelector(dec("100"))}); err != nil {
		t.Fatalf("second redemption: %v", err)
	}
	return h
}

func TestCapitalGainsFifoClassification(t *testing.T) {
	h := gainsHarness(t)

	gains, err := h.services.CapitalGains.CalculateForFolio(context.Background(), "F001", nil)
	if err != nil {
		t.Fatalf("CalculateForFolio: %v", err)
	}
	if len(gains.LongTerm) != 2 || len(gains.ShortTerm) != 1 {
		t.Fatalf("long=%d short=%d", len(gains.LongTerm), len(gains.ShortTerm))
	}
	first := gains.LongTerm[0]
	if !first.Units.Equal(dec("1000")) || !first.CostBasis.Equal(dec("10000")) || !first.Proceeds.Equal(dec("15000")) || first.HoldingDays != 386 {
		t.Fatalf("first long-term slice: %+v", first)
	}
	short := gains.ShortTerm[0]
	if !short.Units.Equal(dec("200")) || !short.Gain.Equal(dec("600")) || short.HoldingDays != 111 {
		t.Fatalf("short-term slice: %+v", short)
	}
	if !gains.ShortTermGain.Equal(dec("600")) || !gains.LongTermGain.Equal(dec("5300")) || !gains.TotalGain.Equal(dec("5900")) {
		t.Fatalf("short=%s long=%s total=%s", gains.ShortTermGain, gains.LongTermGain, gains.TotalGain)
	}
	if len(gains.OpenLots) != 1 || !gains.OpenLots[0].UnitsRemaining.Equal(dec("200")) {
		t.Fatalf("open lots: %+v", gains.OpenLots)
	}
}

func TestCapitalGainsFinancialYearFilter(t *testing.T) {
	h := gainsHarness(t)
	fy, err := models.ParseFinancialYear("2023-24")
	if err != nil {
		t.Fatalf("ParseFinancialYear: %v", err)
	}

	result, err := h.services.CapitalGains.CalculateForInvestor(context.Background(), "INV1", &fy)
	if err != nil {
		t.Fatalf("CalculateForInvestor: %v", err)
	}
	if len(result.Folios) != 1 {
		t.Fatalf("folios = %d", len(result.Folios))
	}
	if !result.ShortTermGain.Equal(dec("600")) || !result.LongTermGain.Equal(dec("5000")) || !result.TotalGain.Equal(dec("5600")) {
		t.Fatalf("short=%s long=%s total=%s", result.ShortTermGain, result.LongTermGain, result.TotalGain)
	}

	later, _ := models.ParseFinancialYear("2025-26")
	empty, err := h.services.CapitalGains.CalculateForInvestor(context.Background(), "INV1", &later)
	if err != nil {
		t.Fatalf("CalculateForInvestor: %v", err)
	}
	if len(empty.Folios) != 0 || !empty.TotalGain.IsZero() {
		t.Fatalf("expected no gains in FY 2025-26, got %+v", empty)
	}
}

func TestCapitalGainsPagesThroughHistory(t *testing.T) {
	h := gainsHarness(t)
	h.services.Ledger.Settings.CapitalGainsPageSize = 1

	gains, err := h.services.CapitalGains.CalculateForFolio(context.Background(), "F001", nil)
	if err != nil {
		t.Fatalf("CalculateForFolio: %v", err)
	}
	if !gains.TotalGain.Equal(dec("5900")) {
		t.Fatalf("paged total = %s", gains.TotalGain)
	}
}

func TestCapitalGainsDebtNeedsThreeYears(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(day(2021, time.April, 1))
	h.purchase(t, "INV1", "DEBT1", "2000")
	h.setNav(t, "DEBT1", "25")
	h.clock.Set(day(2023, time.April, 1))
	if _, err := h.engine().ProcessRedemption(context.Background(), RedemptionRequest{FolioNumber: "F001", Selector: AllUnitsSelector()}); err != nil {
		t.Fatalf("ProcessRedemption: %v", err)
	}
	gains, err := h.services.CapitalGains.CalculateForFolio(context.Background(), "F001", nil)
	if err != nil {
		t.Fatalf("CalculateForFolio: %v", err)
	}
	if len(gains.ShortTerm) != 1 || len(gains.LongTerm) != 0 || !gains.ShortTermGain.Equal(dec("500")) {
		t.Fatalf("debt held two years should be short term: %+v", gains)
	}
}

func TestCapitalGainsUnknownFolio(t *testing.T) {
	h := newHarness(t)
	_, err := h.services.CapitalGains.CalculateForFolio(context.Background(), "F404", nil)
	if !errors.Is(err, models.ErrFolioNotFound) {
		t.Fatalf("err = %v", err)
	}
}
