package health

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordCycleSuccess records a successful delivery cycle. Call from the alert loop.
func RecordCycleSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordCycleError records a failed delivery cycle. Call from the alert loop.
func RecordCycleError() {
	defaultTracker.RecordError()
}

// CycleErrorRate returns (errors, total) delivery cycles within the given window ending at now.
func CycleErrorRate(window time.Duration) (int, int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded cycles. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains a sliding window of delivery cycle outcomes.
type Tracker struct {
	mu       sync.Mutex
	outcomes []outcome
}

type outcome struct {
	at  time.Time
	err bool
}

// RecordSuccess records a successful cycle at the current time.
func (t *Tracker) RecordSuccess() {
	t.record(false)
}

// RecordError records a failed cycle at the current time.
func (t *Tracker) RecordError() {
	t.record(true)
}

func (t *Tracker) record(err bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.outcomes = append(t.outcomes, outcome{at: now, err: err})
	t.pruneLocked(now)
}

// ErrorRate returns (errors, total) outcomes within the given window ending at now.
func (t *Tracker) ErrorRate(window time.Duration) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-window)
	t.pruneLocked(now)
	errors, total := 0, 0
	for _, o := range t.outcomes {
		if o.at.Before(cutoff) {
			continue
		}
		total++
		if o.err {
			errors++
		}
	}
	return errors, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = nil
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-30 * time.Minute)
	i := 0
	for ; i < len(t.outcomes) && t.outcomes[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.outcomes = append(t.outcomes[:0], t.outcomes[i:]...)
	}
}
