package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	UnitPlaces  = 4
	NavPlaces   = 4
	MoneyPlaces = 2
)

// UnitEpsilon is the residual holding below which a folio is treated as empty.
var UnitEpsilon = decimal.New(1, -UnitPlaces)

func RoundUnits(d decimal.Decimal) decimal.Decimal { return d.RoundBank(UnitPlaces) }
func RoundNav(d decimal.Decimal) decimal.Decimal   { return d.RoundBank(NavPlaces) }
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.RoundBank(MoneyPlaces) }

// Folio is one investor's holding in one scheme of one AMC.
type Folio struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	FolioNumber         string          `gorm:"size:32;uniqueIndex;not null" json:"folio_number"`
	InvestorId          string          `gorm:"size:32;not null;uniqueIndex:uniq_folio_holding,priority:1;index" json:"investor_id"`
	AmcId               string          `gorm:"size:32;not null;uniqueIndex:uniq_folio_holding,priority:2" json:"amc_id"`
	SchemeId            string          `gorm:"size:32;not null;uniqueIndex:uniq_folio_holding,priority:3" json:"scheme_id"`
	TotalUnits          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_units"`
	TotalInvestment     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_investment"`
	AverageCostPerUnit  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_cost_per_unit"`
	CurrentNav          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_nav"`
	TotalValue          decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_value"`
	Status              FolioStatus     `gorm:"type:enum('active','closed');default:active" json:"status"`
	TransactionCount    int             `gorm:"default:0" json:"transaction_count"`
	LastTransactionDate *time.Time      `json:"last_transaction_date"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewFolio returns an empty active folio priced at the scheme's current NAV.
func NewFolio(folioNumber, investorId string, scheme *Scheme) *Folio {
	return &Folio{
		FolioNumber:        folioNumber,
		InvestorId:         investorId,
		AmcId:              scheme.AmcId,
		SchemeId:           scheme.SchemeId,
		TotalUnits:         decimal.Zero,
		TotalInvestment:    decimal.Zero,
		AverageCostPerUnit: decimal.Zero,
		CurrentNav:         RoundNav(scheme.CurrentNav),
		TotalValue:         decimal.Zero,
		Status:             FolioStatusActive,
	}
}

func (f *Folio) IsEmpty() bool {
	return !f.TotalUnits.GreaterThan(UnitEpsilon)
}

// PurchaseType tags a plain purchase as fresh or additional from the current holding.
func (f *Folio) PurchaseType() TransactionType {
	if f.TotalUnits.IsPositive() {
		return TransactionTypeAdditionalPurchase
	}
	return TransactionTypeFreshPurchase
}

// ApplyPurchase allots units for amount at nav. The folio is left untouched on error.
func (f *Folio) ApplyPurchase(scheme *Scheme, amount, nav decimal.Decimal, kind TransactionType) (decimal.Decimal, error) {
	if !scheme.IsOpenForInvestment {
		return decimal.Zero, StateError(ErrSchemeClosedForInvest, "scheme %s", scheme.SchemeId)
	}
	if !amount.IsPositive() {
		return decimal.Zero, ValidationError(ErrInvalidAmount, "got %s", amount.String())
	}
	if !nav.IsPositive() {
		return decimal.Zero, ValidationError(ErrInvalidNav, "scheme %s", scheme.SchemeId)
	}
	if minimum := scheme.MinimumFor(kind); minimum.IsPositive() && amount.LessThan(minimum) {
		return decimal.Zero, ValidationError(ErrBelowMinimumInvestment, "%s is below %s for %s", amount.StringFixed(2), minimum.StringFixed(2), kind)
	}
	units := RoundUnits(amount.Div(nav))
	if !units.IsPositive() {
		return decimal.Zero, ValidationError(ErrInvalidAmount, "%s buys no units at %s", amount.StringFixed(2), nav.String())
	}

	f.TotalUnits = f.TotalUnits.Add(units)
	f.TotalInvestment = RoundMoney(f.TotalInvestment.Add(amount))
	f.AverageCostPerUnit = RoundNav(f.TotalInvestment.Div(f.TotalUnits))
	f.CurrentNav = RoundNav(nav)
	f.recomputeValue()
	f.Status = FolioStatusActive
	return units, nil
}

// ApplyRedemption removes units at the scheme's current NAV and returns the
// units actually extinguished, which includes any swept dust.
// The folio is left untouched on error.
func (f *Folio) ApplyRedemption(scheme *Scheme, units decimal.Decimal) (decimal.Decimal, error) {
	if !scheme.IsOpenForRedemption {
		return decimal.Zero, StateError(ErrSchemeClosedForRedeem, "scheme %s", scheme.SchemeId)
	}
	if !units.IsPositive() {
		return decimal.Zero, ValidationError(ErrInvalidUnits, "got %s", units.String())
	}
	if units.GreaterThan(f.TotalUnits) {
		return decimal.Zero, StateError(ErrInsufficientUnits, "requested %s, available %s", units.StringFixed(UnitPlaces), f.TotalUnits.StringFixed(UnitPlaces))
	}

	remaining := f.TotalUnits.Sub(units)
	if !remaining.GreaterThan(UnitEpsilon) {
		units = f.TotalUnits
		remaining = decimal.Zero
	}
	costOut := RoundMoney(units.Mul(f.AverageCostPerUnit))
	investment := f.TotalInvestment.Sub(costOut)
	if investment.IsNegative() {
		investment = decimal.Zero
	}

	f.TotalUnits = remaining
	f.CurrentNav = RoundNav(scheme.CurrentNav)
	if remaining.IsZero() {
		f.TotalInvestment = decimal.Zero
		f.AverageCostPerUnit = decimal.Zero
		f.Status = FolioStatusClosed
	} else {
		f.TotalInvestment = investment
		f.AverageCostPerUnit = RoundNav(investment.Div(remaining))
	}
	f.recomputeValue()
	return units, nil
}

// Reprice mirrors a new NAV into the folio without touching the holding.
func (f *Folio) Reprice(nav decimal.Decimal) {
	f.CurrentNav = RoundNav(nav)
	f.recomputeValue()
}

// MarkTransacted records that a completed transaction touched the folio.
func (f *Folio) MarkTransacted(at time.Time) {
	f.TransactionCount++
	t := at
	f.LastTransactionDate = &t
}

func (f *Folio) UnrealisedGain() decimal.Decimal {
	return f.TotalValue.Sub(f.TotalInvestment)
}

func (f *Folio) recomputeValue() {
	f.TotalValue = RoundMoney(f.TotalUnits.Mul(f.CurrentNav))
}
