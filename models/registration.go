package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Registration is a SIP, SWP or STP instruction. The three kinds share one row shape.
type Registration struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	RegistrationId        string          `gorm:"size:32;uniqueIndex;not null" json:"registration_id"`
	Kind                  PlanKind        `gorm:"type:enum('sip','swp','stp');not null" json:"kind"`
	InvestorId            string          `gorm:"size:32;not null;index" json:"investor_id"`
	FolioNumber           string          `gorm:"size:32;not null;index" json:"folio_number"`
	SchemeId              string          `gorm:"size:32;not null" json:"scheme_id"`
	TargetFolioNumber     *string         `gorm:"size:32" json:"target_folio_number"`
	TargetSchemeId        *string         `gorm:"size:32" json:"target_scheme_id"`
	BankAccountId         *string         `gorm:"size:32;index" json:"bank_account_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Frequency             Frequency       `gorm:"type:enum('daily','weekly','monthly','quarterly');not null" json:"frequency"`
	StartDate             time.Time       `gorm:"not null" json:"start_date"`
	EndDate               *time.Time      `json:"end_date"`
	InstallmentCount      *int            `json:"installment_count"`
	NextInstallmentDate   time.Time       `gorm:"not null;index:idx_reg_due,priority:2" json:"next_installment_date"`
	InstallmentsCompleted int             `gorm:"default:0" json:"installments_completed"`
	CumulativeAmount      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"cumulative_amount"`
	Status                PlanStatus      `gorm:"type:enum('active','paused','completed','cancelled');default:active;index:idx_reg_due,priority:1" json:"status"`
	LastTransactionId     *string         `gorm:"size:32" json:"last_transaction_id"`
	LastProcessedDate     *time.Time      `json:"last_processed_date"`
	LastError             *string         `gorm:"type:text" json:"last_error"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Registration) TableName() string {
	return "plan_registrations"
}

// IsDue reports whether an active registration has an installment on or before asOf.
func (r *Registration) IsDue(asOf time.Time) bool {
	return r.Status == PlanStatusActive && !DateOnly(r.NextInstallmentDate).After(DateOnly(asOf))
}

// NextDate steps one period forward from current. Monthly and quarterly steps
// stay on the start day, clamped to shorter months, so they never drift.
func (r *Registration) NextDate(current time.Time) time.Time {
	current = DateOnly(current)
	switch r.Frequency {
	case FrequencyDaily:
		return current.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	case FrequencyQuarterly:
		return AddMonthsClamped(current, 3, r.StartDate.Day())
	default:
		return AddMonthsClamped(current, 1, r.StartDate.Day())
	}
}

// RecordInstallment advances counters after a successful installment and
// completes the registration when its count or end date is reached.
func (r *Registration) RecordInstallment(transactionId string, amount decimal.Decimal, processedAt time.Time) {
	r.InstallmentsCompleted++
	r.CumulativeAmount = RoundMoney(r.CumulativeAmount.Add(amount))
	id := transactionId
	r.LastTransactionId = &id
	at := processedAt
	r.LastProcessedDate = &at
	r.LastError = nil
	r.NextInstallmentDate = r.NextDate(r.NextInstallmentDate)

	if r.InstallmentCount != nil && r.InstallmentsCompleted >= *r.InstallmentCount {
		r.Status = PlanStatusCompleted
		return
	}
	if r.EndDate != nil && DateOnly(r.NextInstallmentDate).After(DateOnly(*r.EndDate)) {
		r.Status = PlanStatusCompleted
	}
}

// RecordFailure keeps the reason of a failed installment for manual follow-up.
func (r *Registration) RecordFailure(err error) {
	msg := err.Error()
	r.LastError = &msg
}

func (r *Registration) Pause() error {
	if r.Status != PlanStatusActive {
		return StateError(ErrInvalidTransition, "%s: %s -> %s", r.RegistrationId, r.Status, PlanStatusPaused)
	}
	r.Status = PlanStatusPaused
	return nil
}

func (r *Registration) Resume() error {
	if r.Status != PlanStatusPaused {
		return StateError(ErrInvalidTransition, "%s: %s -> %s", r.RegistrationId, r.Status, PlanStatusActive)
	}
	r.Status = PlanStatusActive
	return nil
}

func (r *Registration) Cancel() error {
	if r.Status.IsTerminal() {
		return StateError(ErrInvalidTransition, "%s: %s -> %s", r.RegistrationId, r.Status, PlanStatusCancelled)
	}
	r.Status = PlanStatusCancelled
	return nil
}
