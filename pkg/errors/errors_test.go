package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("fetch comments: %w", NewDataFetch(500, "server exploded"))

	assert.True(t, stderrors.Is(err, ErrDataFetch))
	assert.False(t, stderrors.Is(err, ErrAuthRequired))
	assert.Equal(t, ErrorTypeDataFetch, TypeOf(err))
}

func TestChallengeIsAlsoDataFetch(t *testing.T) {
	err := NewChallenge(3)

	assert.True(t, stderrors.Is(err, ErrChallenge))
	assert.True(t, stderrors.Is(err, ErrDataFetch))
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestTimeoutUnwrapsCause(t *testing.T) {
	cause := stderrors.New("selector never appeared")
	err := NewTimeout("login poll", 2*time.Minute, cause)

	assert.True(t, stderrors.Is(err, ErrTimeout))
	assert.True(t, stderrors.Is(err, cause))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "auth_required error (code 401): token expired", NewAuthRequired("token expired").Error())
	assert.Equal(t, "config error: phone number is required", NewConfig("phone number is required").Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeAuthRequired, false},
		{ErrorTypeDataFetch, false},
		{ErrorTypeChallenge, false},
		{ErrorTypeTimeout, false},
		{ErrorTypeConfig, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.errType))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(400))
}
