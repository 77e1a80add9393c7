package system

import (
	"fmt"
	"strings"
	"time"
)

// CheckoutLink 발급된 체크아웃 링크
type CheckoutLink struct {
	URL       string
	ExpiresAt time.Time
}

// IssueInput 링크 발급 입력
type IssueInput struct {
	PaymentID string
	Attempt   int
	IssuedAt  time.Time
}

// CheckoutLinkProvider 체크아웃 링크 발급자 인터페이스
type CheckoutLinkProvider interface {
	Issue(input IssueInput) CheckoutLink
}

// ConfigCheckoutLinkProvider 설정 기반 체크아웃 링크 발급자
// 만료 시각은 issuedAt + TTL로 계산한다.
type ConfigCheckoutLinkProvider struct {
	baseURL string
	ttl     time.Duration
}

// NewConfigCheckoutLinkProvider 설정 기반 발급자 생성
func NewConfigCheckoutLinkProvider(baseURL string, linkTTL time.Duration) *ConfigCheckoutLinkProvider {
	return &ConfigCheckoutLinkProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     linkTTL,
	}
}

// Issue 체크아웃 링크 발급
func (p *ConfigCheckoutLinkProvider) Issue(input IssueInput) CheckoutLink {
	return CheckoutLink{
		URL:       fmt.Sprintf("%s/pay/%s?attempt=%d", p.baseURL, input.PaymentID, input.Attempt),
		ExpiresAt: input.IssuedAt.Add(p.ttl),
	}
}
