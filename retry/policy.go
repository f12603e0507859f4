// Package retry implements the retry/backoff dispatcher: it decides,
// from a cpio.Result, whether another attempt is owed, and if so
// schedules it on an executor rather than blocking the calling goroutine.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy computes the delay before the next attempt should run, given the
// number of attempts already made, or reports that no further attempt is
// owed. attempt is pre-incremented by the caller before Next is consulted,
// so Next(1) is the delay after the first failure (yielding the
// un-multiplied Base), Next(2) the delay after the second, and so on.
type Policy interface {
	Next(attempt uint32) (delay time.Duration, ok bool)
}

// Linear grows the delay by a fixed Step per attempt, capped at Max.
type Linear struct {
	Base       time.Duration
	Step       time.Duration
	Max        time.Duration
	MaxRetries uint32
}

// Next implements Policy.
func (l Linear) Next(attempt uint32) (time.Duration, bool) {
	if l.MaxRetries > 0 && attempt > l.MaxRetries {
		return 0, false
	}
	d := l.Base + l.Step*time.Duration(attempt-1)
	if l.Max > 0 && d > l.Max {
		d = l.Max
	}
	return d, true
}

// Exponential grows the delay as Base * Multiplier^(attempt-1), capped at
// Max and optionally jittered by RandomizationFactor (a fraction in
// [0,1] of the computed delay, applied symmetrically).
type Exponential struct {
	Base                time.Duration
	Multiplier          float64
	Max                 time.Duration
	RandomizationFactor float64
	MaxRetries          uint32
}

// Next implements Policy.
func (e Exponential) Next(attempt uint32) (time.Duration, bool) {
	if e.MaxRetries > 0 && attempt > e.MaxRetries {
		return 0, false
	}
	exp := float64(e.Base) * math.Pow(e.Multiplier, float64(attempt-1))
	if e.Max > 0 && exp > float64(e.Max) {
		exp = float64(e.Max)
	}
	if e.RandomizationFactor > 0 {
		delta := e.RandomizationFactor * exp
		min := exp - delta
		max := exp + delta
		exp = min + rand.Float64()*(max-min)
	}
	return time.Duration(exp), true
}
