package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestError_IsByCode(t *testing.T) {
	wrapped := Wrapf(ErrInvalidAmount, "amount=%s", "-1")
	assert.True(t, Is(wrapped, ErrInvalidAmount))
	assert.False(t, Is(wrapped, ErrInvalidAddress))
	assert.Equal(t, "数量无效: amount=-1", wrapped.Message)

	chained := fmt.Errorf("outer: %w", wrapped)
	assert.True(t, Is(chained, ErrInvalidAmount))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrInternal, cause)
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, err.Stack)
	assert.Nil(t, ErrInternal.Cause)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))
	assert.Equal(t, ErrPaused.Code, FromError(ErrPaused).Code)
	assert.Equal(t, ErrInternal.Code, FromError(stderrors.New("x")).Code)
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, ToHTTPStatus(nil))
	assert.Equal(t, http.StatusForbidden, ToHTTPStatus(ErrForbidden))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(ErrMessageProcessed))
	assert.Equal(t, http.StatusPaymentRequired, ToHTTPStatus(ErrInsufficientBalance))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(stderrors.New("x")))
}

func TestToGRPCError(t *testing.T) {
	st, ok := status.FromError(ToGRPCError(ErrStrategyNotFound))
	assert.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestKinds(t *testing.T) {
	assert.True(t, IsNotFound(ErrDepositNotFound))
	assert.False(t, IsNotFound(ErrPaused))
	assert.Equal(t, KindState, GetKind(ErrInvalidStatus))
	assert.Equal(t, KindResource, GetKind(ErrInsufficientCustody))
	assert.Equal(t, KindInternal, GetKind(stderrors.New("x")))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("x")))
}

func TestWithDetail_DoesNotMutateBase(t *testing.T) {
	e := ErrNotFound.WithDetail("id", "1")
	assert.Equal(t, "1", e.Details["id"])
	assert.Nil(t, ErrNotFound.Details)
}
