package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType 결제 도메인 이벤트 타입
type EventType string

const (
	EventPaymentInitiated         EventType = "payment.initiated"
	EventCheckoutLinkPrepared     EventType = "payment.checkout_link_prepared"
	EventCustomerActionRegistered EventType = "payment.customer_action_registered"
	EventPaymentCompleted         EventType = "payment.completed"
	EventPaymentFailed            EventType = "payment.failed"
	EventRetryRequested           EventType = "payment.retry_requested"
)

// Channel 고객 행동 채널
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
	ChannelWidget Channel = "widget"
)

// Valid 허용된 채널인지 판단
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelMobile, ChannelWidget:
		return true
	}
	return false
}

// Payload 이벤트별 페이로드 (닫힌 집합)
type Payload interface {
	EventType() EventType
}

// Event 결제 도메인 이벤트
type Event struct {
	OccurredAt time.Time
	Payload    Payload
}

// Type 이벤트 타입 반환
func (e Event) Type() EventType {
	return e.Payload.EventType()
}

// PaymentInitiated 결제 생성 이벤트
type PaymentInitiated struct {
	PaymentID     string `json:"paymentId"`
	AmountMinor   int64  `json:"amountMinor"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Attempt       int    `json:"attempt"`
}

func (PaymentInitiated) EventType() EventType { return EventPaymentInitiated }

// CheckoutLinkPrepared 체크아웃 링크 발급 이벤트
type CheckoutLinkPrepared struct {
	PaymentID   string    `json:"paymentId"`
	CheckoutURL string    `json:"checkoutUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (CheckoutLinkPrepared) EventType() EventType { return EventCheckoutLinkPrepared }

// CustomerActionRegistered 고객 행동 등록 이벤트
type CustomerActionRegistered struct {
	PaymentID string  `json:"paymentId"`
	Channel   Channel `json:"channel"`
}

func (CustomerActionRegistered) EventType() EventType { return EventCustomerActionRegistered }

// PaymentCompleted 결제 완료 이벤트
type PaymentCompleted struct {
	PaymentID         string `json:"paymentId"`
	ProviderReference string `json:"providerReference"`
	AmountMinor       int64  `json:"amountMinor"`
}

func (PaymentCompleted) EventType() EventType { return EventPaymentCompleted }

// PaymentFailed 결제 실패 이벤트
type PaymentFailed struct {
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason"`
	Code      string `json:"code"`
}

func (PaymentFailed) EventType() EventType { return EventPaymentFailed }

// RetryRequested 재시도 요청 이벤트
type RetryRequested struct {
	PaymentID string `json:"paymentId"`
	Attempt   int    `json:"attempt"`
}

func (RetryRequested) EventType() EventType { return EventRetryRequested }

// MarshalPayload 페이로드 직렬화
func MarshalPayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload 이벤트 타입별 페이로드 역직렬화
func UnmarshalPayload(eventType EventType, data []byte) (Payload, error) {
	switch eventType {
	case EventPaymentInitiated:
		var p PaymentInitiated
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventCheckoutLinkPrepared:
		var p CheckoutLinkPrepared
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventCustomerActionRegistered:
		var p CustomerActionRegistered
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPaymentCompleted:
		var p PaymentCompleted
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPaymentFailed:
		var p PaymentFailed
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventRetryRequested:
		var p RetryRequested
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
