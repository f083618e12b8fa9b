// Package circuit guards gateway submissions: after enough consecutive
// failures the breaker opens and submissions fail fast until a cool-off
// passes, feeding the bracket degraded path instead of hammering a sick
// gateway.
package circuit

import (
	"errors"
	"sync"
	"time"

	"corral/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	}
	return "UNKNOWN"
}

// ErrOpen is returned by Do while the breaker refuses calls.
var ErrOpen = errors.New("circuit: breaker open")

type Breaker struct {
	mu          sync.Mutex
	name        string
	state       State
	failures    int
	threshold   int
	cooloff     time.Duration
	lastFailure time.Time
}

func NewBreaker(name string, threshold int, cooloff time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooloff <= 0 {
		cooloff = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooloff: cooloff}
}

// Allow reports whether a call may proceed, moving Open→HalfOpen once the
// cool-off has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if time.Since(b.lastFailure) > b.cooloff {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	}
	return true
}

// Do runs fn under the breaker, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d)", b.name, from, to, b.failures, b.threshold)
}
