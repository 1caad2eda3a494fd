package resilience

import "github.com/rotisserie/eris"

// ErrServiceDown is returned by callers when a Breaker trips: the service
// has failed often enough in a row that continuing would mislabel every
// remaining lookup as not-found.
var ErrServiceDown = eris.New("geocoding service unavailable")

// Breaker tracks consecutive transient failures of a sequential call
// stream. Unlike a full circuit breaker it never half-opens: a run that
// trips the breaker is aborted, and recovery is the next run.
type Breaker struct {
	threshold int
	streak    int
}

// NewBreaker returns a Breaker that trips after threshold consecutive
// transient failures. A threshold <= 0 disables tripping.
func NewBreaker(threshold int) *Breaker {
	return &Breaker{threshold: threshold}
}

// Record feeds the outcome of one call into the breaker. Successes and
// non-transient errors (such as a definitive no-match) reset the streak;
// transient errors grow it.
func (b *Breaker) Record(err error) {
	if err != nil && IsTransient(err) {
		b.streak++
		return
	}
	b.streak = 0
}

// Tripped reports whether the failure streak has reached the threshold.
func (b *Breaker) Tripped() bool {
	return b.threshold > 0 && b.streak >= b.threshold
}

// Streak returns the current consecutive-failure count.
func (b *Breaker) Streak() int {
	return b.streak
}
