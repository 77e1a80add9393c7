package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind 에러 분류
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not-found"
	KindConflict       Kind = "conflict"
	KindInvariant      Kind = "invariant"
	KindInfrastructure Kind = "infrastructure"
	KindUnexpected     Kind = "unexpected"
)

// AppError 애플리케이션 에러 구조체
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New 새로운 애플리케이션 에러 생성
func New(kind Kind, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
	}
}

// Wrap 기존 에러를 래핑한 애플리케이션 에러 생성
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// WithDetail 진단용 상세 정보 추가
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail 상세 정보 조회
func (e *AppError) Detail(key string) (any, bool) {
	value, ok := e.Details[key]
	return value, ok
}

// AsAppError AppError로 변환 (체인 포함)
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf 에러의 분류 반환 (AppError가 아니면 unexpected)
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindUnexpected
}

// IsValidation 검증 에러인지 판단
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound 대상 없음 에러인지 판단
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict 경합 에러인지 판단
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInvariant 상태 불변식 위반 에러인지 판단
func IsInvariant(err error) bool { return KindOf(err) == KindInvariant }
