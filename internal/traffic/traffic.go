// Package traffic keeps sliding windows of pipeline outcomes and rate-limit
// denials. /health reads the error rate from here to report "degraded".
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept; windows longer than this undercount.
const retention = 10 * time.Minute

type outcome uint8

const (
	success outcome = iota
	failure
	denied
)

type event struct {
	at   time.Time
	kind outcome
}

var defaultTracker = NewTracker()

// RecordSuccess records a pipeline run that delivered a reading.
func RecordSuccess() { defaultTracker.record(success) }

// RecordError records a pipeline run that ended in failure (including quota exhaustion).
func RecordError() { defaultTracker.record(failure) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.record(denied) }

// RequestCount returns success + error + denied events within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errors, successes+errors) within the window.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the default tracker. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker is a time-ordered event log pruned to retention.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) record(kind outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, kind: kind})
	t.pruneLocked(now)
}

// RecordSuccess records a success on this tracker.
func (t *Tracker) RecordSuccess() { t.record(success) }

// RecordError records a failure on this tracker.
func (t *Tracker) RecordError() { t.record(failure) }

// RecordDenied records a denial on this tracker.
func (t *Tracker) RecordDenied() { t.record(denied) }

func (t *Tracker) count(window time.Duration, match func(outcome) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		if match(t.events[i].kind) {
			n++
		}
	}
	return n
}

// RequestCount returns all events within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	return t.count(window, func(outcome) bool { return true })
}

// DenialCount returns denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	return t.count(window, func(k outcome) bool { return k == denied })
}

// ErrorRate returns (errors, successes+errors) within the window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	errors = t.count(window, func(k outcome) bool { return k == failure })
	total = errors + t.count(window, func(k outcome) bool { return k == success })
	return errors, total
}

// Reset clears all recorded events.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
