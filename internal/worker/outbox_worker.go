package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/payment-es-go-practical/common/messaging"
	"github.com/kyungseok/payment-es-go-practical/common/retry"
	"github.com/kyungseok/payment-es-go-practical/internal/repository"
)

// OutboxWorker 커밋된 도메인 이벤트를 Kafka로 중계하는 워커
//
// 이벤트/스냅샷과 같은 트랜잭션으로 기록된 outbox 행을 주기적으로
// 읽어 발행하고 SENT로 표시한다. 발행 지연은 허용되지만 유실은 없다.
type OutboxWorker struct {
	outbox      repository.OutboxRepository
	publisher   messaging.Publisher
	logger      *zap.Logger
	interval    time.Duration
	batchSize   int
	retryConfig retry.Config
}

// NewOutboxWorker Outbox 워커 생성
func NewOutboxWorker(
	outbox repository.OutboxRepository,
	publisher messaging.Publisher,
	logger *zap.Logger,
	interval time.Duration,
	batchSize int,
) *OutboxWorker {
	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = 3
	retryConfig.InitialInterval = 100 * time.Millisecond
	retryConfig.MaxInterval = 5 * time.Second

	return &OutboxWorker{
		outbox:      outbox,
		publisher:   publisher,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		retryConfig: retryConfig,
	}
}

// Run 컨텍스트가 취소될 때까지 주기적으로 outbox를 비운다
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DispatchOnce(ctx)
		}
	}
}

// DispatchOnce PENDING 이벤트 한 배치를 발행
func (w *OutboxWorker) DispatchOnce(ctx context.Context) {
	pending, err := w.outbox.FindPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch pending outbox events", zap.Error(err))
		return
	}

	for _, event := range pending {
		publishErr := retry.Do(ctx, w.retryConfig, w.logger, func() error {
			return w.publisher.Publish(ctx, event.EventType, event.AggregateID, json.RawMessage(event.Payload))
		})
		if publishErr != nil {
			// 다음 주기에 다시 시도된다
			w.logger.Error("failed to publish outbox event",
				zap.Int64("id", event.ID),
				zap.String("eventType", event.EventType),
				zap.Error(publishErr))
			continue
		}

		if err := w.outbox.MarkSent(ctx, event.ID); err != nil {
			w.logger.Error("failed to mark outbox event as sent",
				zap.Int64("id", event.ID),
				zap.Error(err))
		}
	}
}
