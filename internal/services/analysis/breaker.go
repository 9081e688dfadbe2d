package analysis

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the breaker fails fast without
// contacting the provider
var ErrBreakerOpen = errors.New("circuit breaker is open")

// Breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Breaker is an explicit three-state circuit breaker driven by a
// rolling error-rate window.
//
// Closed: calls pass through; outcomes are recorded into the window.
// When the error rate crosses the threshold (with at least minRequests
// calls observed) the breaker opens. Open: calls fail fast with
// ErrBreakerOpen until the cooldown elapses, then the breaker
// half-opens. Half-open: one probe call is allowed; success closes the
// breaker, failure re-opens it.
//
// Counters are process-local: this is a single-process service.
type Breaker struct {
	window      time.Duration
	errorRate   float64
	minRequests int
	cooldown    time.Duration

	mu       sync.Mutex
	state    string
	openedAt time.Time
	outcomes []outcome // rolling window of call results
	probing  bool      // a half-open probe is in flight
}

type outcome struct {
	at      time.Time
	success bool
}

// NewBreaker creates a breaker. Zero/invalid settings fall back to
// sane defaults (1m window, 50% error rate, 5 requests, 30s cooldown).
func NewBreaker(window time.Duration, errorRate float64, minRequests int, cooldown time.Duration) *Breaker {
	if window <= 0 {
		window = time.Minute
	}
	if errorRate <= 0 || errorRate > 1 {
		errorRate = 0.5
	}
	if minRequests <= 0 {
		minRequests = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		window:      window,
		errorRate:   errorRate,
		minRequests: minRequests,
		cooldown:    cooldown,
		state:       StateClosed,
	}
}

// Allow reports whether a call may proceed. In the half-open state
// only a single probe is admitted at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Record registers a call outcome and drives state transitions
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if success {
			b.state = StateClosed
			b.outcomes = b.outcomes[:0]
		} else {
			b.state = StateOpen
			b.openedAt = now
		}
		return

	case StateOpen:
		// Late results from calls started before the trip; ignore
		return
	}

	b.outcomes = append(b.outcomes, outcome{at: now, success: success})
	b.trim(now)

	total := len(b.outcomes)
	if total < b.minRequests {
		return
	}
	failures := 0
	for _, o := range b.outcomes {
		if !o.success {
			failures++
		}
	}
	if float64(failures)/float64(total) >= b.errorRate {
		b.state = StateOpen
		b.openedAt = now
		b.outcomes = b.outcomes[:0]
	}
}

// State returns the current breaker state for metrics reporting
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Surface the pending half-open transition without requiring a call
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// trim drops outcomes that fell out of the rolling window
func (b *Breaker) trim(now time.Time) {
	cutoff := now.Add(-b.window)
	keep := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.at.After(cutoff) {
			keep = append(keep, o)
		}
	}
	b.outcomes = keep
}
