package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewBreaker("test", 3, time.Hour)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewBreaker("test", 1, 5*time.Millisecond)
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(10 * time.Millisecond)
	assert.True(t, cb.Allow(), "timeout elapsed, one probe admitted")
	assert.Equal(t, StateHalfOpen, cb.State())

	// probe failure slams it shut again
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewBreaker("test", 2, time.Hour)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}
