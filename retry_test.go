package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryHelperExhaustsMaxRetriesWhenAlwaysYes(t *testing.T) {
	calls := 0
	RetryHelper(context.Background(), 5, zeroBackoff, func(attempt int) RetryDecision {
		calls++
		return RetryYes
	})
	assert.Equal(t, 5, calls)
}

func TestRetryHelperStopsOnFirstNo(t *testing.T) {
	calls := 0
	RetryHelper(context.Background(), 5, zeroBackoff, func(attempt int) RetryDecision {
		calls++
		if calls == 3 {
			return RetryNo
		}
		return RetryYes
	})
	assert.Equal(t, 3, calls)
}

func TestRetryHelperStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	RetryHelper(ctx, 5, func(n int) time.Duration {
		if n == 0 {
			cancel()
		}
		return 10 * time.Millisecond
	}, func(attempt int) RetryDecision {
		calls++
		return RetryYes
	})
	assert.Equal(t, 0, calls)
}

func zeroBackoff(n int) time.Duration { return 0 }
