package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/sirupsen/logrus"
)

const maxOutboxBackoff = 10 * time.Minute

// Publisher delivers one ledger event and returns the broker message id.
// *config.PubSubPublisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// OutboxDispatcher publishes ledger events written by units of work after they commit.
type OutboxDispatcher struct {
	Outbox       store.Outbox
	Publisher    Publisher
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(outbox store.Outbox, publisher Publisher, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		Outbox:         outbox,
		Publisher:      publisher,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of events sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	if d.Outbox == nil || d.Publisher == nil {
		return 0
	}
	now := time.Now().UTC()
	claimed, err := d.Outbox.ClaimLedgerEvents(ctx, store.ClaimRequest{
		DispatcherId: d.DispatcherID,
		Now:          now,
		StaleBefore:  now.Add(-d.LockTimeout),
		Limit:        d.BatchSize,
		MaxAttempts:  d.MaxAttempts,
	})
	if err != nil {
		d.logger().WithFields(logrus.Fields{"field": "OutboxDispatcher"}).Warn("claim failed: " + err.Error())
		return 0
	}

	sent := 0
	for _, rec := range claimed {
		// rows marked DEAD during the claim are not published
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			d.logDead(rec, fmt.Errorf("max publish attempts exceeded (%d)", d.MaxAttempts))
			continue
		}
		msgId, pubErr := d.Publisher.Publish(ctx, rec.Payload, rec.Attributes())
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		if err := d.Outbox.MarkLedgerEventSent(ctx, rec.ID, msgId, now); err != nil {
			d.logger().WithFields(logrus.Fields{
				"field":    "OutboxDispatcher",
				"event_id": rec.EventId,
			}).Warn("failed to mark event sent: " + err.Error())
			continue
		}
		sent++
	}
	return sent
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.LedgerEvent, pubErr error) {
	attempt := rec.PublishAttempts
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = d.Outbox.MarkLedgerEventFailed(ctx, rec.ID, pubErr.Error(), nil, true)
		d.logDead(rec, pubErr)
		return
	}
	next := time.Now().UTC().Add(d.backoff(attempt))
	_ = d.Outbox.MarkLedgerEventFailed(ctx, rec.ID, pubErr.Error(), &next, false)
	d.logger().WithFields(logrus.Fields{
		"field":          "OutboxDispatcher",
		"event_id":       rec.EventId,
		"attempt":        attempt,
		"correlation_id": rec.CorrelationId,
	}).Warn("outbox publish failed; will retry: " + pubErr.Error())
}

// backoff doubles from InitialBackoff per attempt, capped at ten minutes.
func (d *OutboxDispatcher) backoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxOutboxBackoff {
			return maxOutboxBackoff
		}
	}
	return backoff
}

func (d *OutboxDispatcher) logDead(rec models.LedgerEvent, err error) {
	d.logger().WithFields(logrus.Fields{
		"field":          "OutboxDispatcher",
		"event_id":       rec.EventId,
		"aggregate_id":   rec.AggregateId,
		"attempt":        rec.PublishAttempts,
		"correlation_id": rec.CorrelationId,
	}).Error("outbox publish moved to DEAD after max attempts: " + err.Error())
}

func (d *OutboxDispatcher) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}
