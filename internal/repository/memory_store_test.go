package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
	"github.com/kyungseok/payment-es-go-practical/internal/domain"
	"github.com/kyungseok/payment-es-go-practical/internal/repository"
)

var storeNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func initiatedAggregate(t *testing.T, paymentID string) *domain.Payment {
	t.Helper()
	payment, err := domain.Initiate(domain.InitiateParams{
		ID:                paymentID,
		AmountMinor:       2500,
		Currency:          "USD",
		CheckoutURL:       "https://checkout.test/pay/" + paymentID + "?attempt=1",
		CheckoutExpiresAt: storeNow.Add(15 * time.Minute),
		Now:               storeNow,
	})
	require.NoError(t, err)
	return payment
}

func seedPayment(t *testing.T, store *repository.MemoryEventStore, paymentID string) domain.Snapshot {
	t.Helper()
	payment := initiatedAggregate(t, paymentID)
	snapshot := payment.Snapshot()
	require.NoError(t, store.Append(context.Background(), paymentID, payment.PullEvents(), 0, snapshot))
	return snapshot
}

func TestAppendAndListHistory(t *testing.T) {
	store := repository.NewMemoryEventStore()
	seedPayment(t, store, "pay-1")

	events, err := store.ListHistory(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPaymentInitiated, events[0].Type())
	assert.Equal(t, domain.EventCheckoutLinkPrepared, events[1].Type())
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	store := repository.NewMemoryEventStore()

	// 빈 배치는 버전 검증도 기록도 하지 않는다
	require.NoError(t, store.Append(context.Background(), "pay-1", nil, 99, domain.Snapshot{}))

	events, err := store.ListHistory(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendStaleVersionConflict(t *testing.T) {
	store := repository.NewMemoryEventStore()
	storedSnapshot := seedPayment(t, store, "pay-1")

	// 버전 0을 기준으로 다시 쓰려는 시도는 실패해야 한다
	stale := initiatedAggregate(t, "pay-1")
	err := store.Append(context.Background(), "pay-1", stale.PullEvents(), 0, stale.Snapshot())
	require.Error(t, err)
	require.True(t, errors.IsConflict(err))

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	expected, _ := appErr.Detail("expectedVersion")
	actual, _ := appErr.Detail("actualVersion")
	assert.Equal(t, int64(0), expected)
	assert.Equal(t, int64(2), actual)

	// 충돌은 아무것도 바꾸지 않는다
	events, err := store.ListHistory(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	snapshot, ok := store.GetSnapshot("pay-1")
	require.True(t, ok)
	assert.Equal(t, storedSnapshot, snapshot)
}

func TestLoadMissingPayment(t *testing.T) {
	store := repository.NewMemoryEventStore()

	_, err := store.Load(context.Background(), "pay-missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	// ListHistory는 실패하지 않고 빈 시퀀스를 반환한다
	events, err := store.ListHistory(context.Background(), "pay-missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendContinuesVersionSequence(t *testing.T) {
	store := repository.NewMemoryEventStore()
	seedPayment(t, store, "pay-1")

	history, err := store.Load(context.Background(), "pay-1")
	require.NoError(t, err)

	payment, err := domain.Rehydrate("pay-1", history)
	require.NoError(t, err)
	require.NoError(t, payment.Fail("declined", "card_declined", storeNow.Add(time.Second)))

	require.NoError(t, store.Append(context.Background(), "pay-1", payment.PullEvents(), 2, payment.Snapshot()))

	events, err := store.ListHistory(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventPaymentFailed, events[2].Type())

	snapshot, ok := store.GetSnapshot("pay-1")
	require.True(t, ok)
	assert.Equal(t, int64(3), snapshot.Version)
}

func TestConcurrentAppendsExactlyOneWinner(t *testing.T) {
	store := repository.NewMemoryEventStore()
	seedPayment(t, store, "pay-1")

	const writers = 16

	// 모든 쓰기가 같은 시점의 이력을 기준으로 계산하도록 먼저 읽는다
	history, err := store.Load(context.Background(), "pay-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			payment, err := domain.Rehydrate("pay-1", history)
			if err != nil {
				results <- err
				return
			}
			expectedVersion := payment.Version()
			if err := payment.Fail("declined", "card_declined", storeNow.Add(time.Second)); err != nil {
				results <- err
				return
			}
			results <- store.Append(context.Background(), "pay-1", payment.PullEvents(), expectedVersion, payment.Snapshot())
		}()
	}

	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.True(t, errors.IsConflict(err), "unexpected error: %v", err)
		conflicts++
	}

	// 같은 expectedVersion을 관측한 쓰기 중 정확히 하나만 이긴다
	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	events, err := store.ListHistory(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
