package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scheme is reference data owned by the AMC feed. The ledger only reads it.
type Scheme struct {
	SchemeId              string          `gorm:"primary_key;size:32" json:"scheme_id"`
	AmcId                 string          `gorm:"size:32;index;not null" json:"amc_id"`
	Name                  string          `gorm:"size:255;not null" json:"name"`
	SchemeType            SchemeType      `gorm:"type:enum('equity','debt','hybrid','money_market');not null" json:"scheme_type"`
	CurrentNav            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current_nav"`
	NavDate               time.Time       `json:"nav_date"`
	IsOpenForInvestment   bool            `gorm:"not null;default:true" json:"is_open_for_investment"`
	IsOpenForRedemption   bool            `gorm:"not null;default:true" json:"is_open_for_redemption"`
	MinimumInvestment     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"minimum_investment"`
	AdditionalInvestment  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"additional_investment"`
	SipMinimumInstallment decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"sip_minimum_installment"`
	ExitLoadPercentage    decimal.Decimal `gorm:"type:decimal(6,4);default:0" json:"exit_load_percentage"`
	ExitLoadPeriodDays    int             `gorm:"default:0" json:"exit_load_period_days"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MinimumFor returns the minimum amount for a purchase of the given type.
// A zero minimum disables the check.
func (s *Scheme) MinimumFor(t TransactionType) decimal.Decimal {
	switch t {
	case TransactionTypeFreshPurchase:
		return s.MinimumInvestment
	case TransactionTypeAdditionalPurchase:
		return s.AdditionalInvestment
	case TransactionTypeSip:
		return s.SipMinimumInstallment
	}
	return decimal.Zero
}

func (s *Scheme) HasExitLoad() bool {
	return s.ExitLoadPercentage.IsPositive()
}

// SchemeAlias maps a legacy or partner scheme code onto the canonical SchemeId.
type SchemeAlias struct {
	Alias     string    `gorm:"primary_key;size:32" json:"alias"`
	SchemeId  string    `gorm:"size:32;index;not null" json:"scheme_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
