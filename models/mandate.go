package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BankMandate struct {
	BankAccountId string          `gorm:"primary_key;size:32" json:"bank_account_id"`
	InvestorId    string          `gorm:"size:32;index;not null" json:"investor_id"`
	Status        MandateStatus   `gorm:"type:enum('active','inactive','expired');not null" json:"status"`
	AmountLimit   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount_limit"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckReady returns a MandateError when the mandate cannot back a debit of amount on asOf.
func (m *BankMandate) CheckReady(amount decimal.Decimal, asOf time.Time) error {
	if m.Status != MandateStatusActive {
		return MandateError(ErrMandateInactive, "mandate %s is %s", m.BankAccountId, m.Status)
	}
	if amount.GreaterThan(m.AmountLimit) {
		return MandateError(ErrMandateOverLimit, "amount %s exceeds limit %s", amount.StringFixed(2), m.AmountLimit.StringFixed(2))
	}
	if m.ExpiryDate != nil && DateOnly(asOf).After(DateOnly(*m.ExpiryDate)) {
		return MandateError(ErrMandateExpired, "mandate %s expired on %s", m.BankAccountId, m.ExpiryDate.Format(DateLayout))
	}
	return nil
}
