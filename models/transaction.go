package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an append-only record of one economic event on a folio.
// Once completed its units, amounts and NAV never change.
type Transaction struct {
	ID                  int               `gorm:"primary_key" json:"id"`
	TransactionId       string            `gorm:"size:32;uniqueIndex;not null" json:"transaction_id"`
	InvestorId          string            `gorm:"size:32;not null;index:idx_txn_investor_date,priority:1" json:"investor_id"`
	FolioNumber         string            `gorm:"size:32;not null;index:idx_txn_folio_date,priority:1" json:"folio_number"`
	AmcId               string            `gorm:"size:32;not null" json:"amc_id"`
	SchemeId            string            `gorm:"size:32;not null" json:"scheme_id"`
	Type                TransactionType   `gorm:"size:32;not null;index:idx_txn_type_date,priority:1" json:"type"`
	Amount              decimal.Decimal   `gorm:"type:decimal(20,2);default:0" json:"amount"`
	GrossAmount         decimal.Decimal   `gorm:"type:decimal(20,2);default:0" json:"gross_amount"`
	ExitLoadAmount      decimal.Decimal   `gorm:"type:decimal(20,2);default:0" json:"exit_load_amount"`
	Units               decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"units"`
	NavPerUnit          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"nav_per_unit"`
	Status              TransactionStatus `gorm:"type:enum('pending','completed','failed','cancelled');default:pending;index:idx_txn_status_date,priority:1" json:"status"`
	PaymentMode         PaymentMode       `gorm:"size:32" json:"payment_mode"`
	LinkedTransactionId *string           `gorm:"size:32;index" json:"linked_transaction_id"`
	RegistrationId      *string           `gorm:"size:32;index" json:"registration_id"`
	TransactionDate     time.Time         `gorm:"not null;index:idx_txn_investor_date,priority:2;index:idx_txn_folio_date,priority:2;index:idx_txn_type_date,priority:2;index:idx_txn_status_date,priority:2" json:"transaction_date"`
	CorrelationId       string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// AbsUnits is the unit quantity regardless of direction.
func (t *Transaction) AbsUnits() decimal.Decimal {
	return t.Units.Abs()
}

// LinkTransactions makes two legs of a switch or STP reference each other.
func LinkTransactions(redemption, purchase *Transaction) {
	r := redemption.TransactionId
	p := purchase.TransactionId
	redemption.LinkedTransactionId = &p
	purchase.LinkedTransactionId = &r
}
