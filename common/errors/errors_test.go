package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
)

func TestErrorFormatting(t *testing.T) {
	err := errors.New(errors.KindConflict, "payment version is stale")
	assert.Equal(t, "[conflict] payment version is stale", err.Error())

	wrapped := errors.Wrap(errors.KindInfrastructure, "failed to load events", stderrors.New("connection refused"))
	assert.Equal(t, "[infrastructure] failed to load events: connection refused", wrapped.Error())
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.Wrap(errors.KindInfrastructure, "failed to load events", cause)

	assert.True(t, stderrors.Is(err, cause))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.KindConflict, "payment version is stale").
		WithDetail("paymentId", "pay-1").
		WithDetail("expectedVersion", int64(2)).
		WithDetail("actualVersion", int64(3))

	expected, ok := err.Detail("expectedVersion")
	require.True(t, ok)
	assert.Equal(t, int64(2), expected)

	_, ok = err.Detail("missing")
	assert.False(t, ok)
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	inner := errors.New(errors.KindNotFound, "payment not found")
	outer := fmt.Errorf("handling request: %w", inner)

	appErr, ok := errors.AsAppError(outer)
	require.True(t, ok)
	assert.Equal(t, errors.KindNotFound, appErr.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, errors.KindValidation, errors.KindOf(errors.New(errors.KindValidation, "bad input")))
	assert.Equal(t, errors.KindUnexpected, errors.KindOf(stderrors.New("plain error")))
	assert.Equal(t, errors.KindUnexpected, errors.KindOf(nil))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, errors.IsValidation(errors.New(errors.KindValidation, "bad input")))
	assert.True(t, errors.IsNotFound(errors.New(errors.KindNotFound, "missing")))
	assert.True(t, errors.IsConflict(errors.New(errors.KindConflict, "stale")))
	assert.True(t, errors.IsInvariant(errors.New(errors.KindInvariant, "illegal transition")))
	assert.False(t, errors.IsConflict(errors.New(errors.KindValidation, "bad input")))
}
