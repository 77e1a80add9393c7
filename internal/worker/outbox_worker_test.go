package worker_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kyungseok/payment-es-go-practical/common/logger"
	"github.com/kyungseok/payment-es-go-practical/internal/repository"
	"github.com/kyungseok/payment-es-go-practical/internal/worker"
)

type fakeOutbox struct {
	pending []*repository.OutboxEvent
	sent    []int64
}

func (f *fakeOutbox) InsertTx(ctx context.Context, tx *sql.Tx, event *repository.OutboxEvent) error {
	return nil
}

func (f *fakeOutbox) FindPending(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	return f.pending[:limit], nil
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	remaining := make([]*repository.OutboxEvent, 0, len(f.pending))
	for _, event := range f.pending {
		if event.ID != id {
			remaining = append(remaining, event)
		}
	}
	f.pending = remaining
	return nil
}

type publishedMessage struct {
	topic string
	key   string
}

type fakePublisher struct {
	failing   bool
	published []publishedMessage
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	if p.failing {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, publishedMessage{topic: topic, key: key})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func pendingEvent(id int64, eventType string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:            id,
		AggregateType: "payment",
		AggregateID:   "pay-1",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"paymentId":"pay-1"}`),
		Status:        repository.OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestDispatchOncePublishesAndMarksSent(t *testing.T) {
	outbox := &fakeOutbox{pending: []*repository.OutboxEvent{
		pendingEvent(1, "payment.initiated"),
		pendingEvent(2, "payment.checkout_link_prepared"),
	}}
	publisher := &fakePublisher{}
	w := worker.NewOutboxWorker(outbox, publisher, logger.NewTestLogger(), time.Second, 10)

	w.DispatchOnce(context.Background())

	assert.Equal(t, []publishedMessage{
		{topic: "payment.initiated", key: "pay-1"},
		{topic: "payment.checkout_link_prepared", key: "pay-1"},
	}, publisher.published)
	assert.Equal(t, []int64{1, 2}, outbox.sent)
	assert.Empty(t, outbox.pending)
}

func TestDispatchOnceLeavesEventsPendingOnFailure(t *testing.T) {
	outbox := &fakeOutbox{pending: []*repository.OutboxEvent{
		pendingEvent(1, "payment.initiated"),
	}}
	publisher := &fakePublisher{failing: true}
	w := worker.NewOutboxWorker(outbox, publisher, logger.NewTestLogger(), time.Second, 10)

	w.DispatchOnce(context.Background())

	assert.Empty(t, publisher.published)
	assert.Empty(t, outbox.sent)
	assert.Len(t, outbox.pending, 1)

	// 브로커가 복구되면 다음 주기에 발행된다
	publisher.failing = false
	w.DispatchOnce(context.Background())

	assert.Len(t, publisher.published, 1)
	assert.Equal(t, []int64{1}, outbox.sent)
}

func TestDispatchOnceRespectsBatchSize(t *testing.T) {
	outbox := &fakeOutbox{pending: []*repository.OutboxEvent{
		pendingEvent(1, "payment.initiated"),
		pendingEvent(2, "payment.completed"),
		pendingEvent(3, "payment.failed"),
	}}
	publisher := &fakePublisher{}
	w := worker.NewOutboxWorker(outbox, publisher, logger.NewTestLogger(), time.Second, 2)

	w.DispatchOnce(context.Background())

	assert.Len(t, publisher.published, 2)
	assert.Len(t, outbox.pending, 1)
}
