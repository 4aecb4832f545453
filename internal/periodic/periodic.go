// Package periodic lets tight polling loops self-throttle a named operation
// without an external timer. A callback identity is suppressed until its
// configured delay has passed since it last ran; the first call after
// process start always fires.
package periodic

import (
	"context"
	"reflect"
	"sync"
	"time"

	"gametools/internal/logger"
)

// DefaultMaxTrackedCallers is the distinct-key ceiling. The guard is keyed
// by the callback's code pointer, which is only stable when the same logical
// call-site passes the same function. A map that keeps growing means a
// caller is generating functions dynamically and defeating the guard; once
// the ceiling is crossed an error is logged (once).
const DefaultMaxTrackedCallers = 9999

var guard = struct {
	mu         sync.Mutex
	deadlines  map[uintptr]time.Time
	maxTracked int
	ceilingHit bool
	now        func() time.Time
}{
	deadlines:  make(map[uintptr]time.Time),
	maxTracked: DefaultMaxTrackedCallers,
	now:        time.Now,
}

// Sync runs fn if its identity has not run within the last delay, and
// reports whether it ran. A zero or negative delay disables suppression.
func Sync(delay time.Duration, fn func()) bool {
	if !acquire(reflect.ValueOf(fn).Pointer(), delay) {
		return false
	}
	fn()
	return true
}

// Async is Sync for callbacks that do blocking work. When the guard
// suppresses the call it returns (false, nil) without invoking fn.
func Async(ctx context.Context, delay time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if !acquire(reflect.ValueOf(fn).Pointer(), delay) {
		return false, nil
	}
	return true, fn(ctx)
}

// acquire checks and advances the deadline for one callback identity.
func acquire(key uintptr, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}

	guard.mu.Lock()
	defer guard.mu.Unlock()

	now := guard.now()
	if deadline, ok := guard.deadlines[key]; ok && now.Before(deadline) {
		return false
	}
	guard.deadlines[key] = now.Add(delay)

	if len(guard.deadlines) > guard.maxTracked && !guard.ceilingHit {
		guard.ceilingHit = true
		logger.WithComponent("periodic").Error().
			Int("tracked", len(guard.deadlines)).
			Int("ceiling", guard.maxTracked).
			Msg("Too many distinct periodic callbacks; callers are likely passing freshly generated functions")
	}
	return true
}

// Reset drops all tracked deadlines. Intended for tests.
func Reset() {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	guard.deadlines = make(map[uintptr]time.Time)
	guard.ceilingHit = false
}

// SetMaxTrackedCallers overrides the distinct-key ceiling.
func SetMaxTrackedCallers(n int) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	guard.maxTracked = n
}

// setClock swaps the time source. Intended for tests.
func setClock(now func() time.Time) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	guard.now = now
}
