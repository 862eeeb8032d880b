// Package store is the persistence boundary of the ledger. Workflow code only
// talks to the Store and Tx interfaces; the MySQL implementation lives in
// gormStore.go and the in-memory one used by tests in memoryStore.go.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

// ErrDuplicate is returned by create calls that hit a unique key.
var ErrDuplicate = errors.New("duplicate key")

// Cursor is a (transaction_date, id) keyset position. The zero value starts from the beginning.
type Cursor struct {
	Date time.Time
	ID   int
}

func (c Cursor) IsZero() bool {
	return c.ID == 0 && c.Date.IsZero()
}

func CursorAfter(t *models.Transaction) Cursor {
	return Cursor{Date: t.TransactionDate, ID: t.ID}
}

// Tx is one unit of work. Locks taken through it are held until it ends.
type Tx interface {
	SchemeById(schemeId string) (*models.Scheme, error)
	MandateByBankAccount(bankAccountId string) (*models.BankMandate, error)

	LockFolioByNumber(folioNumber string) (*models.Folio, error)
	LockFolioByHolding(investorId, amcId, schemeId string) (*models.Folio, error)
	// FolioNumberByHolding reads without locking.
	FolioNumberByHolding(investorId, amcId, schemeId string) (string, error)
	CreateFolio(f *models.Folio) error
	SaveFolio(f *models.Folio) error

	NextSequence(kind models.SequenceKind) (string, error)

	CreateTransaction(t *models.Transaction) error
	// SaveTransaction is only valid for rows created in the same unit of work.
	SaveTransaction(t *models.Transaction) error
	ListCompletedTransactions(folioNumber string, after Cursor, limit int) ([]models.Transaction, error)

	LockRegistration(registrationId string) (*models.Registration, error)
	CreateRegistration(r *models.Registration) error
	SaveRegistration(r *models.Registration) error

	AppendEvent(e *models.LedgerEvent) error
}

type Reader interface {
	SchemeById(ctx context.Context, schemeId string) (*models.Scheme, error)
	ResolveSchemeAlias(ctx context.Context, code string) (string, bool, error)
	MandateByBankAccount(ctx context.Context, bankAccountId string) (*models.BankMandate, error)
	FolioByNumber(ctx context.Context, folioNumber string) (*models.Folio, error)
	FoliosByInvestor(ctx context.Context, investorId string) ([]models.Folio, error)
	TransactionById(ctx context.Context, transactionId string) (*models.Transaction, error)
	TransactionHistory(ctx context.Context, investorId string, limit int) ([]models.Transaction, error)
	ListCompletedTransactions(ctx context.Context, folioNumber string, after Cursor, limit int) ([]models.Transaction, error)
	RegistrationById(ctx context.Context, registrationId string) (*models.Registration, error)
	// ListDueRegistrations returns active registrations due on or before asOf with id > afterId, by id.
	ListDueRegistrations(ctx context.Context, asOf time.Time, afterId int, limit int) ([]models.Registration, error)
	CountDueRegistrations(ctx context.Context, asOf time.Time, afterId int) (int64, error)
}

// ClaimRequest selects outbox rows ready for publishing.
type ClaimRequest struct {
	DispatcherId string
	Now          time.Time
	StaleBefore  time.Time
	Limit        int
	MaxAttempts  int
}

type Outbox interface {
	// ClaimLedgerEvents marks eligible rows PROCESSING for the dispatcher.
	// Rows past MaxAttempts are marked DEAD and returned with that status.
	ClaimLedgerEvents(ctx context.Context, req ClaimRequest) ([]models.LedgerEvent, error)
	MarkLedgerEventSent(ctx context.Context, id int, messageId string, at time.Time) error
	MarkLedgerEventFailed(ctx context.Context, id int, reason string, nextAttempt *time.Time, dead bool) error
}

type Store interface {
	Reader
	Outbox
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	UpsertSchemeAliases(ctx context.Context, aliases map[string]string) (int, error)
}
