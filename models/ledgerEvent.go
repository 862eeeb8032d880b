package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Publish statuses for LedgerEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type LedgerEventType string

const (
	LedgerEventTransactionCompleted LedgerEventType = "transaction.completed"
	LedgerEventRegistrationChanged  LedgerEventType = "registration.changed"
	LedgerEventInstallmentFailed    LedgerEventType = "installment.failed"
)

// LedgerEvent is an outbox row written in the same unit of work as the ledger
// change it describes. Publishing happens after commit via the dispatcher.
type LedgerEvent struct {
	ID               int             `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventId          string          `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	EventType        LedgerEventType `gorm:"size:64;not null;index" json:"event_type"`
	AggregateId      string          `gorm:"size:32;not null;index" json:"aggregate_id"`
	InvestorId       string          `gorm:"size:32;index" json:"investor_id"`
	Payload          []byte          `gorm:"type:blob" json:"payload"`
	PublishStatus    string          `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time      `gorm:"index" json:"published_at"`
	PubSubMessageId  *string         `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int             `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time      `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time      `gorm:"index" json:"locked_at"`
	LockedBy         *string         `gorm:"size:100" json:"locked_by"`
	LastPublishError *string         `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func newLedgerEvent(eventType LedgerEventType, aggregateId, investorId, correlationId string, body any) (*LedgerEvent, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &LedgerEvent{
		EventId:       uuid.NewString(),
		EventType:     eventType,
		AggregateId:   aggregateId,
		InvestorId:    investorId,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}, nil
}

func NewTransactionEvent(t *Transaction) (*LedgerEvent, error) {
	return newLedgerEvent(LedgerEventTransactionCompleted, t.TransactionId, t.InvestorId, t.CorrelationId, t)
}

func NewRegistrationEvent(r *Registration, correlationId string) (*LedgerEvent, error) {
	return newLedgerEvent(LedgerEventRegistrationChanged, r.RegistrationId, r.InvestorId, correlationId, r)
}

type installmentFailure struct {
	RegistrationId string `json:"registration_id"`
	Kind           string `json:"kind"`
	Error          string `json:"error"`
}

// NewInstallmentFailedEvent is raised for mandate problems so that the
// notification service can ask the investor to act.
func NewInstallmentFailedEvent(r *Registration, cause error, correlationId string) (*LedgerEvent, error) {
	return newLedgerEvent(LedgerEventInstallmentFailed, r.RegistrationId, r.InvestorId, correlationId, installmentFailure{
		RegistrationId: r.RegistrationId,
		Kind:           string(KindOf(cause)),
		Error:          cause.Error(),
	})
}

// Attributes are sent alongside the payload so subscribers can filter without decoding.
func (e *LedgerEvent) Attributes() map[string]string {
	return map[string]string{
		"event_id":       e.EventId,
		"event_type":     string(e.EventType),
		"aggregate_id":   e.AggregateId,
		"correlation_id": e.CorrelationId,
	}
}
