package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clonef(ErrInsufficientCredits, "need %s, have %s", "10", "8")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "need 10, have 8", err.Message)
	assert.Equal(t, "insufficient credits", ErrInsufficientCredits.Message)
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	base := Clone(ErrInvalidTransition, "claim already decided")
	wrapped := fmt.Errorf("poc approve: %w", base)
	require.ErrorIs(t, wrapped, ErrInvalidTransition)

	appErr := FromError(wrapped)
	assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestContentionIsRetryable(t *testing.T) {
	err := WrapAs(errors.New("lock timeout"), ErrContention, "course busy")
	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	require.ErrorIs(t, err, ErrContention)
	assert.Contains(t, err.Error(), "lock timeout")
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}
