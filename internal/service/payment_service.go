package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
	"github.com/kyungseok/payment-es-go-practical/internal/domain"
	"github.com/kyungseok/payment-es-go-practical/internal/repository"
	"github.com/kyungseok/payment-es-go-practical/internal/system"
)

// ProviderStatus 프로바이더 콜백 상태
type ProviderStatus string

const (
	StatusCustomerAction ProviderStatus = "customer_action"
	StatusSucceeded      ProviderStatus = "succeeded"
	StatusFailed         ProviderStatus = "failed"
)

// CreatePaymentCommand 결제 생성 명령
type CreatePaymentCommand struct {
	AmountMinor   int64
	Currency      string
	Description   string
	CustomerEmail string
}

// ProviderCallbackCommand 프로바이더 콜백 명령
type ProviderCallbackCommand struct {
	PaymentID         string
	Status            ProviderStatus
	ProviderReference string
	Channel           domain.Channel
	AmountMinor       int64
	ErrorCode         string
	ErrorMessage      string
}

// PaymentService 결제 유스케이스 인터페이스
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (domain.Snapshot, error)
	ProcessProviderCallback(ctx context.Context, cmd ProviderCallbackCommand) (domain.Snapshot, error)
	RetryPayment(ctx context.Context, paymentID string) (domain.Snapshot, error)
	GetHistory(ctx context.Context, paymentID string) ([]domain.Event, error)
}

type paymentService struct {
	store    repository.EventStore
	clock    system.Clock
	newID    system.IDGenerator
	checkout system.CheckoutLinkProvider
	logger   *zap.Logger
}

// NewPaymentService 결제 서비스 생성
func NewPaymentService(
	store repository.EventStore,
	clock system.Clock,
	newID system.IDGenerator,
	checkout system.CheckoutLinkProvider,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		store:    store,
		clock:    clock,
		newID:    newID,
		checkout: checkout,
		logger:   logger,
	}
}

// CreatePayment 새 결제 생성 (버전 0 기준으로 기록)
func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (domain.Snapshot, error) {
	paymentID := s.newID()
	now := s.clock.Now()

	link := s.checkout.Issue(system.IssueInput{
		PaymentID: paymentID,
		Attempt:   1,
		IssuedAt:  now,
	})

	aggregate, err := domain.Initiate(domain.InitiateParams{
		ID:                paymentID,
		AmountMinor:       cmd.AmountMinor,
		Currency:          cmd.Currency,
		Description:       cmd.Description,
		CustomerEmail:     cmd.CustomerEmail,
		CheckoutURL:       link.URL,
		CheckoutExpiresAt: link.ExpiresAt,
		Now:               now,
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	events := aggregate.PullEvents()
	if len(events) == 0 {
		return domain.Snapshot{}, errors.New(errors.KindUnexpected, "payment initiation produced no events").
			WithDetail("paymentId", paymentID)
	}

	snapshot := aggregate.Snapshot()
	if err := s.store.Append(ctx, paymentID, events, 0, snapshot); err != nil {
		return domain.Snapshot{}, err
	}

	s.logger.Info("payment created",
		zap.String("paymentId", paymentID),
		zap.Int64("amountMinor", snapshot.AmountMinor),
		zap.String("currency", snapshot.Currency))

	return snapshot, nil
}

// ProcessProviderCallback 프로바이더 콜백 처리
func (s *paymentService) ProcessProviderCallback(ctx context.Context, cmd ProviderCallbackCommand) (domain.Snapshot, error) {
	history, err := s.store.Load(ctx, cmd.PaymentID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	aggregate, err := domain.Rehydrate(cmd.PaymentID, history)
	if err != nil {
		return domain.Snapshot{}, err
	}

	// 변이 전에 버전을 캡처해야 낙관적 락이 성립한다
	expectedVersion := aggregate.Version()
	now := s.clock.Now()

	if err := s.applyStatus(cmd, aggregate, now); err != nil {
		return domain.Snapshot{}, err
	}

	events := aggregate.PullEvents()
	if len(events) == 0 {
		return domain.Snapshot{}, errors.New(errors.KindUnexpected, "callback did not change payment state").
			WithDetail("paymentId", cmd.PaymentID)
	}

	snapshot := aggregate.Snapshot()
	if err := s.store.Append(ctx, cmd.PaymentID, events, expectedVersion, snapshot); err != nil {
		return domain.Snapshot{}, err
	}

	s.logger.Info("provider callback processed",
		zap.String("paymentId", cmd.PaymentID),
		zap.String("status", string(cmd.Status)),
		zap.String("state", string(snapshot.State)),
		zap.Int64("version", snapshot.Version))

	return snapshot, nil
}

func (s *paymentService) applyStatus(cmd ProviderCallbackCommand, aggregate *domain.Payment, now time.Time) error {
	switch cmd.Status {
	case StatusCustomerAction:
		channel := cmd.Channel
		if channel == "" {
			channel = domain.ChannelWeb
		}
		return aggregate.RegisterCustomerAction(channel, now)
	case StatusSucceeded:
		if cmd.ProviderReference == "" {
			return errors.New(errors.KindValidation, "provider reference is required for a succeeded payment")
		}
		amountMinor := cmd.AmountMinor
		if amountMinor == 0 {
			amountMinor = aggregate.Snapshot().AmountMinor
		}
		return aggregate.Complete(cmd.ProviderReference, amountMinor, now)
	case StatusFailed:
		code := cmd.ErrorCode
		if code == "" {
			code = "unknown"
		}
		reason := cmd.ErrorMessage
		if reason == "" {
			reason = "provider did not supply a reason"
		}
		return aggregate.Fail(reason, code, now)
	default:
		return errors.New(errors.KindValidation, "unknown provider status").
			WithDetail("status", string(cmd.Status))
	}
}

// RetryPayment 실패한 결제 재시도 (새 체크아웃 링크 발급)
func (s *paymentService) RetryPayment(ctx context.Context, paymentID string) (domain.Snapshot, error) {
	history, err := s.store.Load(ctx, paymentID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	aggregate, err := domain.Rehydrate(paymentID, history)
	if err != nil {
		return domain.Snapshot{}, err
	}

	expectedVersion := aggregate.Version()
	now := s.clock.Now()

	link := s.checkout.Issue(system.IssueInput{
		PaymentID: paymentID,
		Attempt:   aggregate.Snapshot().Attempt + 1,
		IssuedAt:  now,
	})

	if err := aggregate.RequestRetry(domain.RetryParams{
		CheckoutURL:       link.URL,
		CheckoutExpiresAt: link.ExpiresAt,
		Now:               now,
	}); err != nil {
		return domain.Snapshot{}, err
	}

	events := aggregate.PullEvents()
	if len(events) == 0 {
		return domain.Snapshot{}, errors.New(errors.KindUnexpected, "retry produced no events").
			WithDetail("paymentId", paymentID)
	}

	snapshot := aggregate.Snapshot()
	if err := s.store.Append(ctx, paymentID, events, expectedVersion, snapshot); err != nil {
		return domain.Snapshot{}, err
	}

	s.logger.Info("payment retry requested",
		zap.String("paymentId", paymentID),
		zap.Int("attempt", snapshot.Attempt),
		zap.Int64("version", snapshot.Version))

	return snapshot, nil
}

// GetHistory 결제 이벤트 이력 조회
func (s *paymentService) GetHistory(ctx context.Context, paymentID string) ([]domain.Event, error) {
	return s.store.ListHistory(ctx, paymentID)
}
