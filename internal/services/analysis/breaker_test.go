package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_StaysClosedUnderMinRequests(t *testing.T) {
	b := NewBreaker(time.Minute, 0.5, 5, time.Second)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_TripsOnErrorRate(t *testing.T) {
	b := NewBreaker(time.Minute, 0.5, 4, time.Minute)

	b.Record(true)
	b.Record(true)
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(time.Minute, 0.5, 2, 20*time.Millisecond)

	b.Record(false)
	b.Record(false)
	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	time.Sleep(30 * time.Millisecond)

	// Cooldown elapsed: one probe is admitted
	require.NoError(t, b.Allow())
	// A second concurrent probe is rejected
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	b.Record(true)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(time.Minute, 0.5, 2, 20*time.Millisecond)

	b.Record(false)
	b.Record(false)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.Record(false)

	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_WindowExpiresOldOutcomes(t *testing.T) {
	b := NewBreaker(30*time.Millisecond, 0.5, 3, time.Minute)

	b.Record(false)
	b.Record(false)
	time.Sleep(50 * time.Millisecond)

	// The old failures fell out of the window; one more failure is not
	// enough to reach minRequests
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())
}
