package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/rta_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openScheme(nav string) *models.Scheme {
	return &models.Scheme{
		SchemeId:            "SCH001",
		AmcId:               "AMC01",
		Name:                "Test Equity Fund",
		SchemeType:          models.SchemeTypeEquity,
		CurrentNav:          dec(nav),
		IsOpenForInvestment: true,
		IsOpenForRedemption: true,
	}
}

func TestFolioPurchaseAndAverageCost(t *testing.T) {
	scheme := openScheme("10")
	f := models.NewFolio("F001", "INV1", scheme)

	if got := f.PurchaseType(); got != models.TransactionTypeFreshPurchase {
		t.Fatalf("empty folio purchase type = %s", got)
	}
	units, err := f.ApplyPurchase(scheme, dec("10000"), dec("10"), models.TransactionTypeFreshPurchase)
	if err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}
	if !units.Equal(dec("1000")) {
		t.Fatalf("units = %s, want 1000", units)
	}
	if !f.AverageCostPerUnit.Equal(dec("10")) || !f.TotalInvestment.Equal(dec("10000")) || !f.TotalValue.Equal(dec("10000")) {
		t.Fatalf("unexpected folio after fresh purchase: avg=%s inv=%s value=%s", f.AverageCostPerUnit, f.TotalInvestment, f.TotalValue)
	}
	if got := f.PurchaseType(); got != models.TransactionTypeAdditionalPurchase {
		t.Fatalf("held folio purchase type = %s", got)
	}

	units, err = f.ApplyPurchase(scheme, dec("5000"), dec("12.5"), models.TransactionTypeAdditionalPurchase)
	if err != nil {
		t.Fatalf("ApplyPurchase additional: %v", err)
	}
	if !units.Equal(dec("400")) {
		t.Fatalf("units = %s, want 400", units)
	}
	if !f.TotalUnits.Equal(dec("1400")) {
		t.Fatalf("total units = %s", f.TotalUnits)
	}
	if !f.AverageCostPerUnit.Equal(dec("10.7143")) {
		t.Fatalf("avg = %s, want 10.7143", f.AverageCostPerUnit)
	}
	if !f.CurrentNav.Equal(dec("12.5")) || !f.TotalValue.Equal(dec("17500")) {
		t.Fatalf("nav=%s value=%s", f.CurrentNav, f.TotalValue)
	}
}

func TestFolioPurchaseRejections(t *testing.T) {
	scheme := openScheme("10")
	scheme.MinimumInvestment = dec("5000")
	f := models.NewFolio("F001", "INV1", scheme)

	_, err := f.ApplyPurchase(scheme, dec("1000"), dec("10"), models.TransactionTypeFreshPurchase)
	if !errors.Is(err, models.ErrBelowMinimumInvestment) || !models.IsKind(err, models.KindValidation) {
		t.Fatalf("expected below-minimum validation error, got %v", err)
	}
	_, err = f.ApplyPurchase(scheme, dec("0"), dec("10"), models.TransactionTypeFreshPurchase)
	if !errors.Is(err, models.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	scheme.IsOpenForInvestment = false
	_, err = f.ApplyPurchase(scheme, dec("10000"), dec("10"), models.TransactionTypeFreshPurchase)
	if !models.IsKind(err, models.KindState) || !errors.Is(err, models.ErrSchemeClosedForInvest) {
		t.Fatalf("expected closed-scheme state error, got %v", err)
	}
	if !f.TotalUnits.IsZero() || !f.TotalInvestment.IsZero() {
		t.Fatalf("folio mutated by rejected purchases: %+v", f)
	}
}

func TestFolioRedemption(t *testing.T) {
	scheme := openScheme("10")
	f := models.NewFolio("F001", "INV1", scheme)
	if _, err := f.ApplyPurchase(scheme, dec("10000"), dec("10"), models.TransactionTypeFreshPurchase); err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}

	scheme.CurrentNav = dec("12")
	_, err := f.ApplyRedemption(scheme, dec("1500"))
	if !models.IsKind(err, models.KindState) || !errors.Is(err, models.ErrInsufficientUnits) {
		t.Fatalf("expected insufficient units, got %v", err)
	}
	if !f.TotalUnits.Equal(dec("1000")) || f.Status != models.FolioStatusActive {
		t.Fatalf("folio changed by failed redemption: units=%s status=%s", f.TotalUnits, f.Status)
	}

	redeemed, err := f.ApplyRedemption(scheme, dec("400"))
	if err != nil {
		t.Fatalf("partial redemption: %v", err)
	}
	if !redeemed.Equal(dec("400")) || !f.TotalUnits.Equal(dec("600")) {
		t.Fatalf("redeemed=%s remaining=%s", redeemed, f.TotalUnits)
	}
	if !f.TotalInvestment.Equal(dec("6000")) || !f.AverageCostPerUnit.Equal(dec("10")) {
		t.Fatalf("cost basis after partial: inv=%s avg=%s", f.TotalInvestment, f.AverageCostPerUnit)
	}
	if !f.TotalValue.Equal(dec("7200")) {
		t.Fatalf("value = %s, want 7200", f.TotalValue)
	}

	redeemed, err = f.ApplyRedemption(scheme, dec("600"))
	if err != nil {
		t.Fatalf("full redemption: %v", err)
	}
	if !redeemed.Equal(dec("600")) || !f.TotalUnits.IsZero() || f.Status != models.FolioStatusClosed {
		t.Fatalf("expected closed empty folio, got units=%s status=%s", f.TotalUnits, f.Status)
	}
	if !f.TotalInvestment.IsZero() || !f.AverageCostPerUnit.IsZero() || !f.TotalValue.IsZero() {
		t.Fatalf("closed folio should carry no cost: %+v", f)
	}

	// A later purchase reopens the folio.
	if _, err := f.ApplyPurchase(scheme, dec("1200"), dec("12"), models.TransactionTypeFreshPurchase); err != nil {
		t.Fatalf("reopen purchase: %v", err)
	}
	if f.Status != models.FolioStatusActive || !f.TotalUnits.Equal(dec("100")) {
		t.Fatalf("folio not reopened: status=%s units=%s", f.Status, f.TotalUnits)
	}
}

func TestFolioRedemptionSweepsDust(t *testing.T) {
	scheme := openScheme("10")
	f := models.NewFolio("F001", "INV1", scheme)
	if _, err := f.ApplyPurchase(scheme, dec("10000"), dec("10"), models.TransactionTypeFreshPurchase); err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}
	redeemed, err := f.ApplyRedemption(scheme, dec("999.9999"))
	if err != nil {
		t.Fatalf("ApplyRedemption: %v", err)
	}
	if !redeemed.Equal(dec("1000")) {
		t.Fatalf("redeemed = %s, want dust swept to 1000", redeemed)
	}
	if !f.IsEmpty() || f.Status != models.FolioStatusClosed {
		t.Fatalf("folio should be closed after dust sweep")
	}
}

func TestFolioRedemptionClosedScheme(t *testing.T) {
	scheme := openScheme("10")
	f := models.NewFolio("F001", "INV1", scheme)
	if _, err := f.ApplyPurchase(scheme, dec("1000"), dec("10"), models.TransactionTypeFreshPurchase); err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}
	scheme.IsOpenForRedemption = false
	if _, err := f.ApplyRedemption(scheme, dec("10")); !errors.Is(err, models.ErrSchemeClosedForRedeem) {
		t.Fatalf("expected closed-for-redemption, got %v", err)
	}
	if _, err := f.ApplyRedemption(openScheme("10"), dec("-1")); !errors.Is(err, models.ErrInvalidUnits) {
		t.Fatalf("expected invalid units, got %v", err)
	}
}

func TestRoundingIsBankers(t *testing.T) {
	if got := models.RoundMoney(dec("2.345")); !got.Equal(dec("2.34")) {
		t.Fatalf("RoundMoney(2.345) = %s", got)
	}
	if got := models.RoundUnits(dec("1.00005")); !got.Equal(dec("1")) {
		t.Fatalf("RoundUnits(1.00005) = %s", got)
	}
	if got := models.RoundUnits(dec("1.00015")); !got.Equal(dec("1.0002")) {
		t.Fatalf("RoundUnits(1.00015) = %s", got)
	}
}
