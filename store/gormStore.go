package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const schemeAliasCacheTTL = time.Hour

func schemeAliasCacheKey(code string) string {
	return "SchemeAlias:" + strings.ToUpper(code)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns the MySQL backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	if err == nil {
		return nil
	}
	if models.KindOf(err) != "" {
		return err
	}
	return mapError(err, models.ErrTransactionNotFound, "unit of work")
}

func (s *gormStore) SchemeById(ctx context.Context, schemeId string) (*models.Scheme, error) {
	var scheme models.Scheme
	err := s.db.WithContext(ctx).Where("scheme_id = ?", schemeId).First(&scheme).Error
	if err != nil {
		return nil, mapError(err, models.ErrSchemeNotFound, schemeId)
	}
	return &scheme, nil
}

func (s *gormStore) ResolveSchemeAlias(ctx context.Context, code string) (string, bool, error) {
	var canonical string
	if ok, err := config.GetRedisObject(schemeAliasCacheKey(code), &canonical); err == nil && ok {
		return canonical, true, nil
	}
	var alias models.SchemeAlias
	err := s.db.WithContext(ctx).Where("alias = ?", strings.ToUpper(code)).First(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	_ = config.SetRedisObject(schemeAliasCacheKey(code), alias.SchemeId, schemeAliasCacheTTL)
	return alias.SchemeId, true, nil
}

func (s *gormStore) UpsertSchemeAliases(ctx context.Context, aliases map[string]string) (int, error) {
	if len(aliases) == 0 {
		return 0, nil
	}
	rows := make([]models.SchemeAlias, 0, len(aliases))
	keys := make([]string, 0, len(aliases))
	for alias, schemeId := range aliases {
		rows = append(rows, models.SchemeAlias{Alias: strings.ToUpper(alias), SchemeId: schemeId})
		keys = append(keys, schemeAliasCacheKey(alias))
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias"}},
		DoUpdates: clause.AssignmentColumns([]string{"scheme_id"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, err
	}
	_ = config.RemoveRedisKey(keys...)
	return len(rows), nil
}

func (s *gormStore) MandateByBankAccount(ctx context.Context, bankAccountId string) (*models.BankMandate, error) {
	var mandate models.BankMandate
	err := s.db.WithContext(ctx).Where("bank_account_id = ?", bankAccountId).First(&mandate).Error
	if err != nil {
		return nil, mapError(err, models.ErrMandateNotFound, bankAccountId)
	}
	return &mandate, nil
}

func (s *gormStore) FolioByNumber(ctx context.Context, folioNumber string) (*models.Folio, error) {
	var folio models.Folio
	err := s.db.WithContext(ctx).Where("folio_number = ?", folioNumber).First(&folio).Error
	if err != nil {
		return nil, mapError(err, models.ErrFolioNotFound, folioNumber)
	}
	return &folio, nil
}

func (s *gormStore) FoliosByInvestor(ctx context.Context, investorId string) ([]models.Folio, error) {
	var folios []models.Folio
	err := s.db.WithContext(ctx).Where("investor_id = ?", investorId).Order("folio_number").Find(&folios).Error
	return folios, err
}

func (s *gormStore) TransactionById(ctx context.Context, transactionId string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionId).First(&txn).Error
	if err != nil {
		return nil, mapError(err, models.ErrTransactionNotFound, transactionId)
	}
	return &txn, nil
}

func (s *gormStore) TransactionHistory(ctx context.Context, investorId string, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.WithContext(ctx).
		Where("investor_id = ?", investorId).
		Order("transaction_date DESC, id DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (s *gormStore) ListCompletedTransactions(ctx context.Context, folioNumber string, after Cursor, limit int) ([]models.Transaction, error) {
	return listCompleted(s.db.WithContext(ctx), folioNumber, after, limit)
}

func listCompleted(db *gorm.DB, folioNumber string, after Cursor, limit int) ([]models.Transaction, error) {
	q := db.Where("folio_number = ? AND status = ?", folioNumber, models.TransactionStatusCompleted)
	if !after.IsZero() {
		q = q.Where("(transaction_date > ?) OR (transaction_date = ? AND id > ?)", after.Date, after.Date, after.ID)
	}
	var txns []models.Transaction
	err := q.Order("transaction_date ASC, id ASC").Limit(limit).Find(&txns).Error
	return txns, err
}

func (s *gormStore) RegistrationById(ctx context.Context, registrationId string) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.WithContext(ctx).Where("registration_id = ?", registrationId).First(&reg).Error
	if err != nil {
		return nil, mapError(err, models.ErrRegistrationNotFound, registrationId)
	}
	return &reg, nil
}

func (s *gormStore) dueQuery(ctx context.Context, asOf time.Time, afterId int) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Registration{}).
		Where("status = ? AND next_installment_date <= ? AND id > ?", models.PlanStatusActive, models.DateOnly(asOf), afterId)
}

func (s *gormStore) ListDueRegistrations(ctx context.Context, asOf time.Time, afterId int, limit int) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.dueQuery(ctx, asOf, afterId).Order("id ASC").Limit(limit).Find(&regs).Error
	return regs, err
}

func (s *gormStore) CountDueRegistrations(ctx context.Context, asOf time.Time, afterId int) (int64, error) {
	var n int64
	err := s.dueQuery(ctx, asOf, afterId).Count(&n).Error
	return n, err
}

func (s *gormStore) ClaimLedgerEvents(ctx context.Context, req ClaimRequest) ([]models.LedgerEvent, error) {
	var claimed []models.LedgerEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// PENDING / FAILED rows ready to retry, or PROCESSING rows whose dispatcher died.
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, req.Now, models.OutboxPublishStatusProcessing, req.StaleBefore).
			Order("id ASC").
			Limit(req.Limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if req.MaxAttempts > 0 && claimed[i].PublishAttempts >= req.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", req.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.LedgerEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}
			now := req.Now
			by := req.DispatcherId
			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &by
			claimed[i].PublishAttempts++
			claimed[i].LastPublishError = nil
			if err := tx.Model(&models.LedgerEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &by,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *gormStore) MarkLedgerEventSent(ctx context.Context, id int, messageId string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.LedgerEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusSent,
		"published_at":       &at,
		"pub_sub_message_id": &messageId,
		"locked_at":          nil,
		"locked_by":          nil,
		"next_attempt_at":    nil,
	}).Error
}

func (s *gormStore) MarkLedgerEventFailed(ctx context.Context, id int, reason string, nextAttempt *time.Time, dead bool) error {
	status := models.OutboxPublishStatusFailed
	if dead {
		status = models.OutboxPublishStatusDead
	}
	return s.db.WithContext(ctx).Model(&models.LedgerEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"publish_status":     status,
		"last_publish_error": &reason,
		"next_attempt_at":    nextAttempt,
		"locked_at":          nil,
		"locked_by":          nil,
	}).Error
}

// gormTx runs inside one MySQL transaction.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) SchemeById(schemeId string) (*models.Scheme, error) {
	var scheme models.Scheme
	if err := t.db.Where("scheme_id = ?", schemeId).First(&scheme).Error; err != nil {
		return nil, mapError(err, models.ErrSchemeNotFound, schemeId)
	}
	return &scheme, nil
}

func (t *gormTx) MandateByBankAccount(bankAccountId string) (*models.BankMandate, error) {
	var mandate models.BankMandate
	if err := t.db.Where("bank_account_id = ?", bankAccountId).First(&mandate).Error; err != nil {
		return nil, mapError(err, models.ErrMandateNotFound, bankAccountId)
	}
	return &mandate, nil
}

func (t *gormTx) LockFolioByNumber(folioNumber string) (*models.Folio, error) {
	var folio models.Folio
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("folio_number = ?", folioNumber).
		First(&folio).Error
	if err != nil {
		return nil, mapError(err, models.ErrFolioNotFound, folioNumber)
	}
	return &folio, nil
}

func (t *gormTx) LockFolioByHolding(investorId, amcId, schemeId string) (*models.Folio, error) {
	var folio models.Folio
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("investor_id = ? AND amc_id = ? AND scheme_id = ?", investorId, amcId, schemeId).
		First(&folio).Error
	if err != nil {
		return nil, mapError(err, models.ErrFolioNotFound, investorId+"/"+schemeId)
	}
	return &folio, nil
}

func (t *gormTx) FolioNumberByHolding(investorId, amcId, schemeId string) (string, error) {
	var folio models.Folio
	err := t.db.Select("folio_number").
		Where("investor_id = ? AND amc_id = ? AND scheme_id = ?", investorId, amcId, schemeId).
		First(&folio).Error
	if err != nil {
		return "", mapError(err, models.ErrFolioNotFound, investorId+"/"+schemeId)
	}
	return folio.FolioNumber, nil
}

func (t *gormTx) CreateFolio(f *models.Folio) error {
	if err := t.db.Create(f).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return mapError(err, models.ErrFolioNotFound, f.FolioNumber)
	}
	return nil
}

func (t *gormTx) SaveFolio(f *models.Folio) error {
	return mapError(t.db.Save(f).Error, models.ErrFolioNotFound, f.FolioNumber)
}

// NextSequence draws the id from the kind's ticket table on the unit of
// work's own connection, so allocation never waits on a second pooled connection.
func (t *gormTx) NextSequence(kind models.SequenceKind) (string, error) {
	ticket := models.SequenceTicket{}
	if err := t.db.Table(kind.TicketTable()).Create(&ticket).Error; err != nil {
		return "", mapError(err, models.ErrTransactionNotFound, string(kind))
	}
	return models.FormatSequence(kind, ticket.ID), nil
}

func (t *gormTx) CreateTransaction(txn *models.Transaction) error {
	return mapError(t.db.Create(txn).Error, models.ErrTransactionNotFound, txn.TransactionId)
}

func (t *gormTx) SaveTransaction(txn *models.Transaction) error {
	return mapError(t.db.Save(txn).Error, models.ErrTransactionNotFound, txn.TransactionId)
}

func (t *gormTx) ListCompletedTransactions(folioNumber string, after Cursor, limit int) ([]models.Transaction, error) {
	txns, err := listCompleted(t.db, folioNumber, after, limit)
	if err != nil {
		return nil, mapError(err, models.ErrTransactionNotFound, folioNumber)
	}
	return txns, nil
}

func (t *gormTx) LockRegistration(registrationId string) (*models.Registration, error) {
	var reg models.Registration
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("registration_id = ?", registrationId).
		First(&reg).Error
	if err != nil {
		return nil, mapError(err, models.ErrRegistrationNotFound, registrationId)
	}
	return &reg, nil
}

func (t *gormTx) CreateRegistration(r *models.Registration) error {
	return mapError(t.db.Create(r).Error, models.ErrRegistrationNotFound, r.RegistrationId)
}

func (t *gormTx) SaveRegistration(r *models.Registration) error {
	return mapError(t.db.Save(r).Error, models.ErrRegistrationNotFound, r.RegistrationId)
}

func (t *gormTx) AppendEvent(e *models.LedgerEvent) error {
	return t.db.Create(e).Error
}
