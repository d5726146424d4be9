package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Minute, p.Backoff(1))
	assert.Equal(t, p.Backoff(1), p.Backoff(0))

	prev := p.Backoff(1)
	for attempts := 2; attempts <= 10; attempts++ {
		got := p.Backoff(attempts)
		assert.GreaterOrEqual(t, got, prev, "attempts=%d", attempts)
		assert.LessOrEqual(t, got, 30*time.Minute, "attempts=%d", attempts)
		prev = got
	}
	assert.Equal(t, 30*time.Minute, p.Backoff(50))
}

func TestRetryPolicy_NextAttemptAt(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(p.Backoff(2)), p.NextAttemptAt(now, 2))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
}

func TestNewRetryPolicy_CountsRetriesAfterFirstAttempt(t *testing.T) {
	p := NewRetryPolicy(3, time.Minute, 30*time.Minute)

	assert.Equal(t, 4, p.MaxAttempts)
	assert.False(t, p.Exhausted(3), "third retry still allowed")
	assert.True(t, p.Exhausted(4))

	none := NewRetryPolicy(0, time.Minute, time.Minute)
	assert.Equal(t, 1, none.MaxAttempts)
	assert.True(t, none.Exhausted(1))
}

func TestRetryPolicy_WithDefaults(t *testing.T) {
	got := RetryPolicy{MaxAttempts: 5}.withDefaults()
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, time.Minute, got.MinBackoff)
	assert.Equal(t, 30*time.Minute, got.MaxBackoff)

	got = RetryPolicy{MinBackoff: time.Hour}.withDefaults()
	assert.Equal(t, time.Hour, got.MaxBackoff, "max never below min")
}
