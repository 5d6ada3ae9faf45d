package model

import (
	"sync"
	"time"
)

// CooldownTracker records until when each variant is unusable after a
// rate-limit signal. Absence of an entry means always eligible. Reads are
// concurrent, writes serialized; scope is a single process and state is
// intentionally lost on restart.
type CooldownTracker struct {
	mu     sync.RWMutex
	resume map[string]time.Time
	now    func() time.Time
}

// NewCooldownTracker creates a tracker. now may be nil, defaulting to
// time.Now; tests inject a fake clock.
func NewCooldownTracker(now func() time.Time) *CooldownTracker {
	if now == nil {
		now = time.Now
	}
	return &CooldownTracker{
		resume: make(map[string]time.Time),
		now:    now,
	}
}

// IsEligible reports whether the variant may be selected. A variant is
// eligible iff the current time is at or past its resume time.
func (t *CooldownTracker) IsEligible(variant string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.resume[variant]
	if !ok {
		return true
	}
	return !t.now().Before(until)
}

// MarkCooldown records that variant is unusable until resumeAt. The last
// signal is authoritative: it overwrites any prior entry even if the new
// resume time is earlier, since it reflects the latest server-reported state.
func (t *CooldownTracker) MarkCooldown(variant string, resumeAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resume[variant] = resumeAt
}

// Clear removes any cooldown for variant, making it immediately eligible.
func (t *CooldownTracker) Clear(variant string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.resume, variant)
}

// ResumeAt returns the recorded resume time for variant and whether one
// exists.
func (t *CooldownTracker) ResumeAt(variant string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.resume[variant]
	return until, ok
}

// EarliestResume returns the soonest resume time across the given variants.
// Variants with no cooldown entry resume immediately (the current time).
func (t *CooldownTracker) EarliestResume(variants []Variant) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	earliest := time.Time{}
	for _, v := range variants {
		until, ok := t.resume[v.Name]
		if !ok || until.Before(now) {
			return now
		}
		if earliest.IsZero() || until.Before(earliest) {
			earliest = until
		}
	}
	if earliest.IsZero() {
		return now
	}
	return earliest
}
