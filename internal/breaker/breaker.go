// Package breaker isolates generation-service failures per account.
//
// It implements a consecutive-failure circuit breaker with a flat
// cooldown:
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures; once failures >= threshold, calls
//     within the cooldown window fail fast without touching the service.
//   - After the cooldown elapses the next attempt goes through (half-open)
//     and either resets or re-opens the circuit based on its outcome.
//
// State is in-memory only; a restart rediscovers failures quickly.
package breaker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open. Callers skip the
// candidate and continue the session; they never abort the run.
var ErrOpen = errors.New("generation circuit open")

type state struct {
	fails       int
	lastFailure time.Time
}

type Breaker struct {
	mu sync.Mutex
	m  map[string]*state

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &Breaker{
		m:         make(map[string]*state),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetNow overrides the clock (tests).
func (b *Breaker) SetNow(now func() time.Time) { b.now = now }

func (b *Breaker) get(key string) *state {
	k := strings.TrimSpace(key)
	st := b.m[k]
	if st == nil {
		st = &state{}
		b.m[k] = st
	}
	return st
}

// Allow reports whether a call for key may proceed. ErrOpen carries the
// remaining cooldown.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.get(key)
	if st.fails < b.threshold {
		return nil
	}
	elapsed := b.now().Sub(st.lastFailure)
	if elapsed < b.cooldown {
		return fmt.Errorf("%w for %s: retry in %s", ErrOpen, key, (b.cooldown - elapsed).Round(time.Second))
	}
	// Cooldown elapsed: half-open, let one attempt through.
	return nil
}

// RecordSuccess closes the circuit for key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(key)
	st.fails = 0
	st.lastFailure = time.Time{}
}

// RecordFailure increments the consecutive-failure count and timestamps
// it. The caller still receives the original error; the breaker only
// decides whether future calls short-circuit.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(key)
	st.fails++
	st.lastFailure = b.now()
}

// Snapshot reports (tracked, open) counts for diagnostics.
func (b *Breaker) Snapshot() (total, open int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	total = len(b.m)
	for _, st := range b.m {
		if st.fails >= b.threshold && now.Sub(st.lastFailure) < b.cooldown {
			open++
		}
	}
	return total, open
}
