// Package breaker wraps collaborator calls behind a per-dependency circuit
// breaker so a failing provider stops being called until a cool-down elapses.
//
// The wrapper only gates whether a call is attempted. Errors from the wrapped
// function are counted and then propagated unchanged - the breaker never
// swallows failures. When no guard is configured the wrapper degrades to a
// direct invocation, so the breaker is never a hard dependency.
package breaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Default thresholds applied when a Guard is built from zero values.
const (
	DefaultFailureThreshold = 5
	DefaultCoolDown         = 30 * time.Second
)

// Guard is a three-state (closed/open/half-open) circuit breaker for one
// external dependency. After the configured number of consecutive failures
// the circuit opens and calls are rejected immediately; once the cool-down
// elapses exactly one probe call is allowed to decide whether to close or
// re-open. Thread-safe.
type Guard struct {
	name        string
	description string
	cb          *gobreaker.CircuitBreaker
}

// New creates a guard for the named dependency.
// description is used in rejection errors so callers see what was skipped
// (e.g. "PubMed search provider"). Zero threshold or coolDown fall back to
// the package defaults.
func New(name, description string, failureThreshold uint32, coolDown time.Duration) *Guard {
	if failureThreshold == 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe while half-open
		Timeout:     coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}

	return &Guard{
		name:        name,
		description: description,
		cb:          gobreaker.NewCircuitBreaker(settings),
	}
}

// Call invokes fn through the guard.
//
// A nil guard delegates directly to fn. When the circuit is open the call is
// rejected without invoking fn and the returned error wraps
// gobreaker.ErrOpenState; use IsRejection to distinguish rejections from
// failures of fn itself, which are counted and then propagated unchanged.
func (g *Guard) Call(fn func() (interface{}, error)) (interface{}, error) {
	if g == nil {
		return fn()
	}

	value, err := g.cb.Execute(fn)
	if err != nil && isBreakerRejection(err) {
		return nil, fmt.Errorf("call to %s rejected (circuit %s): %w", g.description, g.State(), err)
	}
	return value, err
}

// State returns the current circuit state: "closed", "open", or "half-open".
// A nil guard reports "closed" since it never rejects.
func (g *Guard) State() string {
	if g == nil {
		return gobreaker.StateClosed.String()
	}
	return g.cb.State().String()
}

// Name returns the dependency name this guard protects.
func (g *Guard) Name() string {
	if g == nil {
		return ""
	}
	return g.name
}

// IsRejection reports whether err came from the breaker refusing to attempt
// the call, as opposed to a failure of the wrapped function.
func IsRejection(err error) bool {
	return isBreakerRejection(err)
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
