package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorType(""), ClassifyError(nil))
	assert.Equal(t, ErrorQuota, ClassifyError(errors.New("insufficient_quota: billing hard limit")))
	assert.Equal(t, ErrorRate, ClassifyError(errors.New("HTTP 429 too many requests")))
	assert.Equal(t, ErrorContext, ClassifyError(errors.New("prompt too long for model")))
	assert.Equal(t, ErrorTransient, ClassifyError(errors.New("service unavailable, retry later")))
	assert.Equal(t, ErrorPermanent, ClassifyError(errors.New("model not found")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrorRate))
	assert.True(t, Retryable(ErrorQuota))
	assert.True(t, Retryable(ErrorTransient))
	assert.False(t, Retryable(ErrorPermanent))
	assert.False(t, Retryable(ErrorContext))
}
