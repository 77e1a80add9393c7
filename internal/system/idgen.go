package system

import "github.com/google/uuid"

// IDGenerator 고유 식별자 생성기
type IDGenerator func() string

// NewUUIDGenerator UUID 기반 식별자 생성기 생성
func NewUUIDGenerator() IDGenerator {
	return uuid.NewString
}
