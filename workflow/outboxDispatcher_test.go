package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/rta_backend/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	published []map[string]string
}

func (p *fakePublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, attributes)
	return fmt.Sprintf("msg-%d", len(p.published)), nil
}

func TestOutboxDispatcherPublishesCommittedEvents(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "INV1", "EQ1", "10000")
	h.purchase(t, "INV1", "EQ1", "5000")

	pub := &fakePublisher{}
	d := NewOutboxDispatcher(h.store, pub, quietLogger())
	if sent := d.DispatchOnce(context.Background()); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	for _, e := range h.store.LedgerEvents() {
		if e.PublishStatus != models.OutboxPublishStatusSent || e.PubSubMessageId == nil {
			t.Fatalf("event %d not marked sent: %+v", e.ID, e)
		}
	}
	if pub.published[0]["event_type"] != string(models.LedgerEventTransactionCompleted) {
		t.Fatalf("attributes = %v", pub.published[0])
	}
	if sent := d.DispatchOnce(context.Background()); sent != 0 {
		t.Fatalf("events published twice")
	}
}

func TestOutboxDispatcherRetriesThenDies(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, "INV1", "EQ1", "10000")

	pub := &fakePublisher{err: errors.New("pubsub unavailable")}
	d := NewOutboxDispatcher(h.store, pub, quietLogger())
	d.MaxAttempts = 2
	d.InitialBackoff = 0

	if sent := d.DispatchOnce(context.Background()); sent != 0 {
		t.Fatalf("sent = %d", sent)
	}
	e := h.store.LedgerEvents()[0]
	if e.PublishStatus != models.OutboxPublishStatusFailed || e.NextAttemptAt == nil || e.LastPublishError == nil {
		t.Fatalf("after first failure: %+v", e)
	}

	d.DispatchOnce(context.Background())
	e = h.store.LedgerEvents()[0]
	if e.PublishStatus != models.OutboxPublishStatusDead || e.PublishAttempts != 2 {
		t.Fatalf("after second failure: status=%s attempts=%d", e.PublishStatus, e.PublishAttempts)
	}

	pub.err = nil
	if sent := d.DispatchOnce(context.Background()); sent != 0 {
		t.Fatalf("dead event was republished")
	}
}

func TestOutboxBackoffIsCapped(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second}
	if got := d.backoff(1); got != 5*time.Second {
		t.Fatalf("backoff(1) = %s", got)
	}
	if got := d.backoff(3); got != 20*time.Second {
		t.Fatalf("backoff(3) = %s", got)
	}
	if got := d.backoff(30); got != maxOutboxBackoff {
		t.Fatalf("backoff(30) = %s", got)
	}
}
