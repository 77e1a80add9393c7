package repository

import (
	"context"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
	"github.com/kyungseok/payment-es-go-practical/internal/domain"
)

// EventStore 결제 이벤트 저장소 인터페이스
//
// Append는 expectedVersion이 저장된 현재 버전과 일치할 때만 이벤트와
// 스냅샷을 하나의 원자적 단위로 기록한다. 불일치 시 conflict를 반환하고
// 아무것도 기록하지 않는다.
type EventStore interface {
	Append(ctx context.Context, paymentID string, events []domain.Event, expectedVersion int64, snapshot domain.Snapshot) error
	// Load 이벤트 이력 조회 (이력이 없으면 not-found)
	Load(ctx context.Context, paymentID string) ([]domain.Event, error)
	// ListHistory 이벤트 이력 조회 (이력이 없으면 빈 시퀀스)
	ListHistory(ctx context.Context, paymentID string) ([]domain.Event, error)
}

func conflictError(paymentID string, expectedVersion, actualVersion int64) error {
	return errors.New(errors.KindConflict, "payment version is stale").
		WithDetail("paymentId", paymentID).
		WithDetail("expectedVersion", expectedVersion).
		WithDetail("actualVersion", actualVersion)
}

func historyNotFoundError(paymentID string) error {
	return errors.New(errors.KindNotFound, "payment history not found").
		WithDetail("paymentId", paymentID)
}
