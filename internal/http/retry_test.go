package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestExecuteWithRetry_Success(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_RetriesTransient(t *testing.T) {
	calls := 0
	var retries []ErrorType
	cfg := fastRetry(5)
	cfg.OnRetry = func(attempt int, err error, errType ErrorType) { retries = append(retries, errType) }

	err := ExecuteWithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 Service Unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []ErrorType{ErrorTypeRetryable, ErrorTypeRetryable}, retries)
}

func TestExecuteWithRetry_NoRetryOnFatalOrCredential(t *testing.T) {
	for _, msg := range []string{"400 bad request", "AuthenticationFailed: invalid SAS"} {
		calls := 0
		err := ExecuteWithRetry(context.Background(), fastRetry(5), func() error {
			calls++
			return errors.New(msg)
		})
		assert.Error(t, err, msg)
		assert.Equal(t, 1, calls, msg)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return fmt.Errorf("connection reset by peer")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestExecuteWithRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 5 * time.Second, MaxDelay: 30 * time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ExecuteWithRetry(ctx, cfg, func() error { return fmt.Errorf("connection reset") })
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{errors.New("ExpiredToken: token expired"), ErrorTypeCredential},
		{errors.New("AccessDenied"), ErrorTypeCredential},
		{errors.New("read tcp: i/o timeout"), ErrorTypeNetwork},
		{errors.New("unexpected EOF"), ErrorTypeNetwork},
		{errors.New("SlowDown: reduce your request rate"), ErrorTypeRetryable},
		{errors.New("ServerBusy"), ErrorTypeRetryable},
		{errors.New("NoSuchBucket"), ErrorTypeFatal},
		{context.Canceled, ErrorTypeFatal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err), fmt.Sprint(tt.err))
	}
}

func TestCalculateBackoff(t *testing.T) {
	assert.Zero(t, CalculateBackoff(0, time.Second, time.Minute))
	for i := 0; i < 50; i++ {
		d := CalculateBackoff(3, 100*time.Millisecond, 500*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 500*time.Millisecond)
	}
	assert.Less(t, CalculateBackoff(40, time.Second, 2*time.Second), 2*time.Second)
}

func TestErrorTypeName(t *testing.T) {
	assert.Equal(t, "network", ErrorTypeName(ErrorTypeNetwork))
	assert.Equal(t, "unknown", ErrorTypeName(ErrorType(99)))
}
