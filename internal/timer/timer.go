// Package timer answers duration questions about a running conversation.
// Every function is pure: results are recomputed from timestamps on demand.
package timer

import "time"

// Policy holds the thresholds applied to public conversations.
type Policy struct {
	MaxDuration       time.Duration
	CriticalThreshold time.Duration
	DangerThreshold   time.Duration
	MinMessages       int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxDuration:       30 * time.Minute,
		CriticalThreshold: time.Minute,
		DangerThreshold:   30 * time.Second,
		MinMessages:       5,
	}
}

// Normalize fills unset fields from DefaultPolicy.
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	if p.MaxDuration <= 0 {
		p.MaxDuration = def.MaxDuration
	}
	if p.CriticalThreshold <= 0 {
		p.CriticalThreshold = def.CriticalThreshold
	}
	if p.DangerThreshold <= 0 {
		p.DangerThreshold = def.DangerThreshold
	}
	if p.MinMessages <= 0 {
		p.MinMessages = def.MinMessages
	}
	return p
}

// Remaining returns max(0, createdAt+maxDuration-now).
func Remaining(createdAt time.Time, maxDuration time.Duration, now time.Time) time.Duration {
	left := createdAt.Add(maxDuration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsExpired reports whether no time remains.
func IsExpired(createdAt time.Time, maxDuration time.Duration, now time.Time) bool {
	return Remaining(createdAt, maxDuration, now) == 0
}

// IsCritical reports whether remaining is below the critical threshold.
func (p Policy) IsCritical(remaining time.Duration) bool {
	return remaining < p.CriticalThreshold
}

// IsDanger reports whether remaining is below the danger threshold.
func (p Policy) IsDanger(remaining time.Duration) bool {
	return remaining < p.DangerThreshold
}

// CanTerminate reports whether enough messages exist for a voluntary close.
func (p Policy) CanTerminate(messageCount int) bool {
	return messageCount >= p.MinMessages
}
