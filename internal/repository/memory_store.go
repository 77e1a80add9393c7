package repository

import (
	"context"
	"sync"

	"github.com/kyungseok/payment-es-go-practical/internal/domain"
)

// MemoryEventStore 인메모리 이벤트 저장소 (테스트와 로컬 실행용)
//
// 뮤텍스로 비교-후-기록을 직렬화하여 PostgresEventStore와 동일한
// 낙관적 동시성 의미론을 제공한다.
type MemoryEventStore struct {
	mu      sync.Mutex
	streams map[string]*memoryStream
}

type memoryStream struct {
	events   []domain.Event
	snapshot domain.Snapshot
}

// NewMemoryEventStore 인메모리 이벤트 저장소 생성
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{streams: make(map[string]*memoryStream)}
}

// Append 이벤트와 스냅샷을 원자적으로 기록 (낙관적 동시성 검증 포함)
func (s *MemoryEventStore) Append(ctx context.Context, paymentID string, events []domain.Event, expectedVersion int64, snapshot domain.Snapshot) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[paymentID]
	if !ok {
		stream = &memoryStream{}
	}

	currentVersion := int64(len(stream.events))
	if currentVersion != expectedVersion {
		return conflictError(paymentID, expectedVersion, currentVersion)
	}

	stream.events = append(stream.events, events...)
	stream.snapshot = snapshot
	s.streams[paymentID] = stream

	return nil
}

// Load 이벤트 이력 조회 (이력이 없으면 not-found)
func (s *MemoryEventStore) Load(ctx context.Context, paymentID string) ([]domain.Event, error) {
	events, err := s.ListHistory(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, historyNotFoundError(paymentID)
	}
	return events, nil
}

// ListHistory 버전 순 이벤트 이력 조회 (이력이 없으면 빈 시퀀스)
func (s *MemoryEventStore) ListHistory(ctx context.Context, paymentID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[paymentID]
	if !ok {
		return nil, nil
	}

	events := make([]domain.Event, len(stream.events))
	copy(events, stream.events)
	return events, nil
}

// GetSnapshot 저장된 스냅샷 조회 (스냅샷 테이블 읽기에 해당)
func (s *MemoryEventStore) GetSnapshot(paymentID string) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[paymentID]
	if !ok {
		return domain.Snapshot{}, false
	}
	return stream.snapshot, true
}
