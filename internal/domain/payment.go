package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
)

// State 결제 상태
type State string

const (
	// StateNew 생성 직후의 내부 상태 (외부로 노출되지 않음)
	StateNew              State = "new"
	StateAwaitingCustomer State = "awaiting_customer"
	StateProcessing       State = "processing"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
)

var isoCurrencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Snapshot 결제 현재 상태 프로젝션
type Snapshot struct {
	ID                string
	AmountMinor       int64
	Currency          string
	Description       string
	CustomerEmail     string
	Attempt           int
	State             State
	CheckoutURL       string
	CheckoutExpiresAt time.Time
	ProviderReference string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

// InitiateParams 결제 생성 파라미터
type InitiateParams struct {
	ID                string
	AmountMinor       int64
	Currency          string
	Description       string
	CustomerEmail     string
	CheckoutURL       string
	CheckoutExpiresAt time.Time
	Now               time.Time
}

// RetryParams 재시도 파라미터
type RetryParams struct {
	CheckoutURL       string
	CheckoutExpiresAt time.Time
	Now               time.Time
}

// Payment 결제 애그리거트 (이벤트 소싱)
type Payment struct {
	snapshot Snapshot
	pending  []Event
}

// Initiate 새 결제 생성 (PaymentInitiated, CheckoutLinkPrepared 발생)
func Initiate(params InitiateParams) (*Payment, error) {
	if err := validateInitiation(params); err != nil {
		return nil, err
	}

	p := &Payment{snapshot: freshSnapshot(params.ID)}

	p.recordEvent(Event{
		OccurredAt: params.Now,
		Payload: PaymentInitiated{
			PaymentID:     params.ID,
			AmountMinor:   params.AmountMinor,
			Currency:      params.Currency,
			Description:   params.Description,
			CustomerEmail: params.CustomerEmail,
			Attempt:       1,
		},
	})
	p.recordCheckoutLinkPrepared(params.CheckoutURL, params.CheckoutExpiresAt, params.Now)

	return p, nil
}

// Rehydrate 저장된 이벤트 이력으로 애그리거트 복원
func Rehydrate(paymentID string, history []Event) (*Payment, error) {
	if len(history) == 0 {
		return nil, errors.New(errors.KindNotFound, "payment not found").
			WithDetail("paymentId", paymentID)
	}

	p := &Payment{snapshot: freshSnapshot(paymentID)}
	for _, evt := range history {
		p.snapshot = applyEvent(p.snapshot, evt)
	}
	return p, nil
}

// Snapshot 현재 스냅샷 복사본 반환
func (p *Payment) Snapshot() Snapshot {
	return p.snapshot
}

// Version 적용된 이벤트 수 반환 (낙관적 동시성 토큰)
func (p *Payment) Version() int64 {
	return p.snapshot.Version
}

// PullEvents 새로 발생한 이벤트를 드레인 (두 번째 호출은 빈 결과)
func (p *Payment) PullEvents() []Event {
	events := p.pending
	p.pending = nil
	return events
}

// RegisterCustomerAction 고객 행동 등록 (AwaitingCustomer에서만 허용)
func (p *Payment) RegisterCustomerAction(channel Channel, occurredAt time.Time) error {
	if err := p.ensureState("customer action is only allowed while the checkout link is active",
		StateAwaitingCustomer); err != nil {
		return err
	}

	p.recordEvent(Event{
		OccurredAt: occurredAt,
		Payload: CustomerActionRegistered{
			PaymentID: p.snapshot.ID,
			Channel:   channel,
		},
	})
	return nil
}

// Complete 결제 완료 처리 (Processing/AwaitingCustomer에서만 허용)
func (p *Payment) Complete(providerReference string, amountMinor int64, occurredAt time.Time) error {
	if err := p.ensureState("payment cannot be completed in its current state",
		StateProcessing, StateAwaitingCustomer); err != nil {
		return err
	}

	p.recordEvent(Event{
		OccurredAt: occurredAt,
		Payload: PaymentCompleted{
			PaymentID:         p.snapshot.ID,
			ProviderReference: providerReference,
			AmountMinor:       amountMinor,
		},
	})
	return nil
}

// Fail 결제 실패 처리 (성공한 결제를 실패 처리하면 conflict)
func (p *Payment) Fail(reason, code string, occurredAt time.Time) error {
	if p.snapshot.State == StateSucceeded {
		return errors.New(errors.KindConflict, "succeeded payment cannot be marked as failed").
			WithDetail("paymentId", p.snapshot.ID)
	}

	p.recordEvent(Event{
		OccurredAt: occurredAt,
		Payload: PaymentFailed{
			PaymentID: p.snapshot.ID,
			Reason:    reason,
			Code:      code,
		},
	})
	return nil
}

// RequestRetry 재시도 요청 (Failed에서만 허용, 새 링크 만료는 미래여야 함)
func (p *Payment) RequestRetry(params RetryParams) error {
	if err := p.ensureState("retry is only available after a failure", StateFailed); err != nil {
		return err
	}
	if err := ensureFutureCheckout(params.CheckoutExpiresAt, params.Now); err != nil {
		return err
	}

	p.recordEvent(Event{
		OccurredAt: params.Now,
		Payload: RetryRequested{
			PaymentID: p.snapshot.ID,
			Attempt:   p.snapshot.Attempt + 1,
		},
	})
	p.recordCheckoutLinkPrepared(params.CheckoutURL, params.CheckoutExpiresAt, params.Now)

	return nil
}

// recordEvent 이벤트를 스냅샷에 반영하고 pending 버퍼에 추가
func (p *Payment) recordEvent(evt Event) {
	p.snapshot = applyEvent(p.snapshot, evt)
	p.pending = append(p.pending, evt)
}

func (p *Payment) recordCheckoutLinkPrepared(checkoutURL string, expiresAt, occurredAt time.Time) {
	p.recordEvent(Event{
		OccurredAt: occurredAt,
		Payload: CheckoutLinkPrepared{
			PaymentID:   p.snapshot.ID,
			CheckoutURL: checkoutURL,
			ExpiresAt:   expiresAt,
		},
	})
}

func (p *Payment) ensureState(message string, allowed ...State) error {
	for _, state := range allowed {
		if p.snapshot.State == state {
			return nil
		}
	}
	return errors.New(errors.KindInvariant, message).
		WithDetail("paymentId", p.snapshot.ID).
		WithDetail("state", string(p.snapshot.State))
}

// applyEvent 이벤트를 스냅샷에 반영하는 순수 전이 함수
// 동일한 이벤트 시퀀스는 항상 동일한 스냅샷을 만들어야 한다.
func applyEvent(s Snapshot, evt Event) Snapshot {
	switch payload := evt.Payload.(type) {
	case PaymentInitiated:
		s.AmountMinor = payload.AmountMinor
		s.Currency = payload.Currency
		s.Description = payload.Description
		s.CustomerEmail = payload.CustomerEmail
		s.Attempt = payload.Attempt
		s.State = StateAwaitingCustomer
		s.CreatedAt = evt.OccurredAt
		s.UpdatedAt = evt.OccurredAt
	case CheckoutLinkPrepared:
		s.CheckoutURL = payload.CheckoutURL
		s.CheckoutExpiresAt = payload.ExpiresAt
		s.State = StateAwaitingCustomer
		s.UpdatedAt = evt.OccurredAt
	case CustomerActionRegistered:
		s.State = StateProcessing
		s.UpdatedAt = evt.OccurredAt
	case PaymentCompleted:
		s.State = StateSucceeded
		s.ProviderReference = payload.ProviderReference
		s.LastError = ""
		s.UpdatedAt = evt.OccurredAt
	case PaymentFailed:
		s.State = StateFailed
		s.LastError = fmt.Sprintf("%s: %s", payload.Code, payload.Reason)
		s.UpdatedAt = evt.OccurredAt
	case RetryRequested:
		s.Attempt = payload.Attempt
		s.State = StateAwaitingCustomer
		s.LastError = ""
		s.UpdatedAt = evt.OccurredAt
	}

	s.Version++
	return s
}

func freshSnapshot(id string) Snapshot {
	return Snapshot{
		ID:    id,
		State: StateNew,
	}
}

func validateInitiation(params InitiateParams) error {
	if params.AmountMinor <= 0 {
		return errors.New(errors.KindValidation, "payment amount must be positive")
	}
	if !isoCurrencyPattern.MatchString(params.Currency) {
		return errors.New(errors.KindValidation, "currency must be an uppercase ISO 4217 alpha code").
			WithDetail("currency", params.Currency)
	}
	return ensureFutureCheckout(params.CheckoutExpiresAt, params.Now)
}

func ensureFutureCheckout(expiresAt, now time.Time) error {
	if !expiresAt.After(now) {
		return errors.New(errors.KindValidation, "checkout link expiry must be in the future")
	}
	return nil
}
