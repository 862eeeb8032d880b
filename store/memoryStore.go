package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

const defaultMemoryLockWait = 2 * time.Second

// MemoryStore keeps the ledger in process memory with the same row-lock and
// all-or-nothing semantics as the MySQL store. Locks are per folio, holding
// and registration; a lock that cannot be taken within LockWait fails with a
// concurrency error, the same way innodb_lock_wait_timeout does.
type MemoryStore struct {
	LockWait time.Duration

	mu       sync.Mutex
	locks    map[string]chan struct{}
	schemes  map[string]models.Scheme
	aliases  map[string]string
	mandates map[string]models.BankMandate
	folios   map[string]models.Folio
	holdings map[string]string
	txns     []models.Transaction
	regs     map[string]models.Registration
	events   []models.LedgerEvent
	seq      map[models.SequenceKind]int64
	lastId   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		LockWait: defaultMemoryLockWait,
		locks:    map[string]chan struct{}{},
		schemes:  map[string]models.Scheme{},
		aliases:  map[string]string{},
		mandates: map[string]models.BankMandate{},
		folios:   map[string]models.Folio{},
		holdings: map[string]string{},
		regs:     map[string]models.Registration{},
		seq:      map[models.SequenceKind]int64{},
	}
}

// PutScheme inserts or replaces reference data.
func (s *MemoryStore) PutScheme(scheme models.Scheme) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemes[scheme.SchemeId] = scheme
}

func (s *MemoryStore) PutMandate(mandate models.BankMandate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mandates[mandate.BankAccountId] = mandate
}

// Transactions returns every committed transaction in insertion order.
func (s *MemoryStore) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, len(s.txns))
	copy(out, s.txns)
	return out
}

// LedgerEvents returns every committed outbox row.
func (s *MemoryStore) LedgerEvents() []models.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LedgerEvent, len(s.events))
	copy(out, s.events)
	return out
}

func holdingKey(investorId, amcId, schemeId string) string {
	return investorId + "|" + amcId + "|" + schemeId
}

func (s *MemoryStore) nextId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastId++
	return s.lastId
}

func (s *MemoryStore) lockChan(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		s:      s,
		ctx:    ctx,
		held:   map[string]bool{},
		folios: map[string]*models.Folio{},
		regs:   map[string]*models.Registration{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) SchemeById(ctx context.Context, schemeId string) (*models.Scheme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scheme, ok := s.schemes[schemeId]
	if !ok {
		return nil, models.NotFoundError(models.ErrSchemeNotFound, "%s", schemeId)
	}
	return &scheme, nil
}

func (s *MemoryStore) ResolveSchemeAlias(ctx context.Context, code string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	canonical, ok := s.aliases[strings.ToUpper(code)]
	return canonical, ok, nil
}

func (s *MemoryStore) UpsertSchemeAliases(ctx context.Context, aliases map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for alias, schemeId := range aliases {
		s.aliases[strings.ToUpper(alias)] = schemeId
	}
	return len(aliases), nil
}

func (s *MemoryStore) MandateByBankAccount(ctx context.Context, bankAccountId string) (*models.BankMandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mandate, ok := s.mandates[bankAccountId]
	if !ok {
		return nil, models.NotFoundError(models.ErrMandateNotFound, "%s", bankAccountId)
	}
	return &mandate, nil
}

func (s *MemoryStore) FolioByNumber(ctx context.Context, folioNumber string) (*models.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folio, ok := s.folios[folioNumber]
	if !ok {
		return nil, models.NotFoundError(models.ErrFolioNotFound, "%s", folioNumber)
	}
	return &folio, nil
}

func (s *MemoryStore) FoliosByInvestor(ctx context.Context, investorId string) ([]models.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Folio
	for _, f := range s.folios {
		if f.InvestorId == investorId {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolioNumber < out[j].FolioNumber })
	return out, nil
}

func (s *MemoryStore) TransactionById(ctx context.Context, transactionId string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.TransactionId == transactionId {
			txn := t
			return &txn, nil
		}
	}
	return nil, models.NotFoundError(models.ErrTransactionNotFound, "%s", transactionId)
}

func (s *MemoryStore) TransactionHistory(ctx context.Context, investorId string, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txns {
		if t.InvestorId == investorId {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListCompletedTransactions(ctx context.Context, folioNumber string, after Cursor, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pageCompleted(s.txns, nil, folioNumber, after, limit), nil
}

func pageCompleted(committed []models.Transaction, staged []*models.Transaction, folioNumber string, after Cursor, limit int) []models.Transaction {
	var out []models.Transaction
	keep := func(t models.Transaction) {
		if t.FolioNumber != folioNumber || t.Status != models.TransactionStatusCompleted {
			return
		}
		if !after.IsZero() && !t.TransactionDate.After(after.Date) && !(t.TransactionDate.Equal(after.Date) && t.ID > after.ID) {
			return
		}
		out = append(out, t)
	}
	for _, t := range committed {
		keep(t)
	}
	for _, t := range staged {
		keep(*t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) RegistrationById(ctx context.Context, registrationId string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[registrationId]
	if !ok {
		return nil, models.NotFoundError(models.ErrRegistrationNotFound, "%s", registrationId)
	}
	return &reg, nil
}

func (s *MemoryStore) dueLocked(asOf time.Time, afterId int) []models.Registration {
	var out []models.Registration
	for _, r := range s.regs {
		if r.ID > afterId && r.IsDue(asOf) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ListDueRegistrations(ctx context.Context, asOf time.Time, afterId int, limit int) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.dueLocked(asOf, afterId)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountDueRegistrations(ctx context.Context, asOf time.Time, afterId int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.dueLocked(asOf, afterId))), nil
}

func (s *MemoryStore) ClaimLedgerEvents(ctx context.Context, req ClaimRequest) ([]models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []models.LedgerEvent
	for i := range s.events {
		if req.Limit > 0 && len(claimed) >= req.Limit {
			break
		}
		e := &s.events[i]
		ready := (e.PublishStatus == models.OutboxPublishStatusPending || e.PublishStatus == models.OutboxPublishStatusFailed) &&
			(e.NextAttemptAt == nil || !e.NextAttemptAt.After(req.Now))
		stale := e.PublishStatus == models.OutboxPublishStatusProcessing && e.LockedAt != nil && !e.LockedAt.After(req.StaleBefore)
		if !ready && !stale {
			continue
		}
		if req.MaxAttempts > 0 && e.PublishAttempts >= req.MaxAttempts {
			msg := fmt.Sprintf("max publish attempts exceeded (%d)", req.MaxAttempts)
			e.PublishStatus = models.OutboxPublishStatusDead
			e.LastPublishError = &msg
			e.NextAttemptAt, e.LockedAt, e.LockedBy = nil, nil, nil
			claimed = append(claimed, *e)
			continue
		}
		now := req.Now
		by := req.DispatcherId
		e.PublishStatus = models.OutboxPublishStatusProcessing
		e.LockedAt = &now
		e.LockedBy = &by
		e.PublishAttempts++
		e.LastPublishError = nil
		e.NextAttemptAt = nil
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (s *MemoryStore) eventLocked(id int) (*models.LedgerEvent, error) {
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i], nil
		}
	}
	return nil, fmt.Errorf("ledger event %d not found", id)
}

func (s *MemoryStore) MarkLedgerEventSent(ctx context.Context, id int, messageId string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.eventLocked(id)
	if err != nil {
		return err
	}
	e.PublishStatus = models.OutboxPublishStatusSent
	e.PublishedAt = &at
	e.PubSubMessageId = &messageId
	e.LockedAt, e.LockedBy, e.NextAttemptAt = nil, nil, nil
	return nil
}

func (s *MemoryStore) MarkLedgerEventFailed(ctx context.Context, id int, reason string, nextAttempt *time.Time, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.eventLocked(id)
	if err != nil {
		return err
	}
	e.PublishStatus = models.OutboxPublishStatusFailed
	if dead {
		e.PublishStatus = models.OutboxPublishStatusDead
	}
	e.LastPublishError = &reason
	e.NextAttemptAt = nextAttempt
	e.LockedAt, e.LockedBy = nil, nil
	return nil
}

// memoryTx stages every write and applies it on commit.
type memoryTx struct {
	s      *MemoryStore
	ctx    context.Context
	held   map[string]bool
	order  []string
	folios map[string]*models.Folio
	newFol []string
	txns   []*models.Transaction
	regs   map[string]*models.Registration
	events []*models.LedgerEvent
}

func (t *memoryTx) acquire(key string) error {
	if t.held[key] {
		return nil
	}
	ch := t.s.lockChan(key)
	timer := time.NewTimer(t.s.LockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		t.held[key] = true
		t.order = append(t.order, key)
		return nil
	case <-timer.C:
		return models.ConcurrencyError(models.ErrLockTimeout, "%s", key)
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *memoryTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-t.s.lockChan(t.order[i])
	}
	t.order = nil
	t.held = map[string]bool{}
}

func (t *memoryTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range t.folios {
		s.folios[f.FolioNumber] = *f
	}
	for _, number := range t.newFol {
		f := t.folios[number]
		s.holdings[holdingKey(f.InvestorId, f.AmcId, f.SchemeId)] = number
	}
	for _, txn := range t.txns {
		s.txns = append(s.txns, *txn)
	}
	for _, r := range t.regs {
		s.regs[r.RegistrationId] = *r
	}
	for _, e := range t.events {
		s.events = append(s.events, *e)
	}
}

func (t *memoryTx) SchemeById(schemeId string) (*models.Scheme, error) {
	return t.s.SchemeById(t.ctx, schemeId)
}

func (t *memoryTx) MandateByBankAccount(bankAccountId string) (*models.BankMandate, error) {
	return t.s.MandateByBankAccount(t.ctx, bankAccountId)
}

func (t *memoryTx) LockFolioByNumber(folioNumber string) (*models.Folio, error) {
	if err := t.acquire("folio:" + folioNumber); err != nil {
		return nil, err
	}
	if staged, ok := t.folios[folioNumber]; ok {
		f := *staged
		return &f, nil
	}
	return t.s.FolioByNumber(t.ctx, folioNumber)
}

func (t *memoryTx) LockFolioByHolding(investorId, amcId, schemeId string) (*models.Folio, error) {
	key := holdingKey(investorId, amcId, schemeId)
	for _, number := range t.newFol {
		if f := t.folios[number]; holdingKey(f.InvestorId, f.AmcId, f.SchemeId) == key {
			return t.LockFolioByNumber(number)
		}
	}
	t.s.mu.Lock()
	number, ok := t.s.holdings[key]
	t.s.mu.Unlock()
	if !ok {
		return nil, models.NotFoundError(models.ErrFolioNotFound, "%s", investorId+"/"+schemeId)
	}
	return t.LockFolioByNumber(number)
}

func (t *memoryTx) FolioNumberByHolding(investorId, amcId, schemeId string) (string, error) {
	key := holdingKey(investorId, amcId, schemeId)
	for _, number := range t.newFol {
		if f := t.folios[number]; holdingKey(f.InvestorId, f.AmcId, f.SchemeId) == key {
			return number, nil
		}
	}
	t.s.mu.Lock()
	number, ok := t.s.holdings[key]
	t.s.mu.Unlock()
	if !ok {
		return "", models.NotFoundError(models.ErrFolioNotFound, "%s", investorId+"/"+schemeId)
	}
	return number, nil
}

func (t *memoryTx) CreateFolio(f *models.Folio) error {
	key := holdingKey(f.InvestorId, f.AmcId, f.SchemeId)
	if err := t.acquire("holding:" + key); err != nil {
		return err
	}
	t.s.mu.Lock()
	_, holdingTaken := t.s.holdings[key]
	_, numberTaken := t.s.folios[f.FolioNumber]
	t.s.mu.Unlock()
	if holdingTaken || numberTaken {
		return ErrDuplicate
	}
	if _, ok := t.folios[f.FolioNumber]; ok {
		return ErrDuplicate
	}
	if err := t.acquire("folio:" + f.FolioNumber); err != nil {
		return err
	}
	f.ID = t.s.nextId()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	staged := *f
	t.folios[f.FolioNumber] = &staged
	t.newFol = append(t.newFol, f.FolioNumber)
	return nil
}

func (t *memoryTx) SaveFolio(f *models.Folio) error {
	if !t.held["folio:"+f.FolioNumber] {
		return fmt.Errorf("folio %s saved without holding its lock", f.FolioNumber)
	}
	f.UpdatedAt = time.Now().UTC()
	staged := *f
	t.folios[f.FolioNumber] = &staged
	return nil
}

func (t *memoryTx) NextSequence(kind models.SequenceKind) (string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.seq[kind]++
	return models.FormatSequence(kind, t.s.seq[kind]), nil
}

func (t *memoryTx) CreateTransaction(txn *models.Transaction) error {
	txn.ID = t.s.nextId()
	now := time.Now().UTC()
	txn.CreatedAt, txn.UpdatedAt = now, now
	staged := *txn
	t.txns = append(t.txns, &staged)
	return nil
}

func (t *memoryTx) SaveTransaction(txn *models.Transaction) error {
	for _, staged := range t.txns {
		if staged.TransactionId == txn.TransactionId {
			txn.UpdatedAt = time.Now().UTC()
			*staged = *txn
			return nil
		}
	}
	return models.StateError(models.ErrTransactionNotFound, "%s is committed and immutable", txn.TransactionId)
}

func (t *memoryTx) ListCompletedTransactions(folioNumber string, after Cursor, limit int) ([]models.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return pageCompleted(t.s.txns, t.txns, folioNumber, after, limit), nil
}

func (t *memoryTx) LockRegistration(registrationId string) (*models.Registration, error) {
	if err := t.acquire("registration:" + registrationId); err != nil {
		return nil, err
	}
	if staged, ok := t.regs[registrationId]; ok {
		r := *staged
		return &r, nil
	}
	return t.s.RegistrationById(t.ctx, registrationId)
}

func (t *memoryTx) CreateRegistration(r *models.Registration) error {
	if err := t.acquire("registration:" + r.RegistrationId); err != nil {
		return err
	}
	t.s.mu.Lock()
	_, taken := t.s.regs[r.RegistrationId]
	t.s.mu.Unlock()
	if taken {
		return ErrDuplicate
	}
	r.ID = t.s.nextId()
	staged := *r
	t.regs[r.RegistrationId] = &staged
	return nil
}

func (t *memoryTx) SaveRegistration(r *models.Registration) error {
	if !t.held["registration:"+r.RegistrationId] {
		return fmt.Errorf("registration %s saved without holding its lock", r.RegistrationId)
	}
	staged := *r
	t.regs[r.RegistrationId] = &staged
	return nil
}

func (t *memoryTx) AppendEvent(e *models.LedgerEvent) error {
	e.ID = t.s.nextId()
	staged := *e
	t.events = append(t.events, &staged)
	return nil
}
