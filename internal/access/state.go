// Package access classifies a scheduled window against the current time.
//
// Resolution is pure and must be re-run on every request: the stored window
// never changes but "now" does, so decisions are never cached.
package access

import (
	"time"

	"github.com/example/session-gate/internal/scheduler"
)

// State is the access classification of a window at a given instant.
type State string

const (
	// StateFinished is terminal: the window end has passed.
	StateFinished State = "FINISHED"
	// StateFarFuture means the window opens in more than NearThreshold.
	StateFarFuture State = "FAR_FUTURE"
	// StateNearFuture means the window opens within NearThreshold.
	StateNearFuture State = "NEAR_FUTURE"
	// StateActive means now lies within [start, end].
	StateActive State = "ACTIVE"
)

// NearThreshold separates NEAR_FUTURE from FAR_FUTURE, in whole minutes.
const NearThreshold = 10

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished
}

// Decision is the outcome of Resolve.
type Decision struct {
	State State
	// MinutesRemaining is the rounded-up number of minutes until the window
	// opens. It is zero unless State is NEAR_FUTURE or FAR_FUTURE.
	MinutesRemaining int
}

// HoursMinutes splits MinutesRemaining for display.
func (d Decision) HoursMinutes() (hours, minutes int) {
	return d.MinutesRemaining / 60, d.MinutesRemaining % 60
}

// Resolve classifies w at now. The end instant is inclusive for ACTIVE.
func Resolve(w scheduler.Window, now time.Time) Decision {
	if now.After(w.End) {
		return Decision{State: StateFinished}
	}
	if now.Before(w.Start) {
		delta := minutesUntil(now, w.Start)
		if delta > NearThreshold {
			return Decision{State: StateFarFuture, MinutesRemaining: delta}
		}
		return Decision{State: StateNearFuture, MinutesRemaining: delta}
	}
	return Decision{State: StateActive}
}

func minutesUntil(now, start time.Time) int {
	gap := start.Sub(now)
	minutes := int(gap / time.Minute)
	if gap%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// SelectWindow picks the window a slug resolves to when several share it:
// the active window, else the nearest upcoming one, else the most recently
// finished one. It returns false when windows is empty.
func SelectWindow(windows []scheduler.Window, now time.Time) (scheduler.Window, bool) {
	var (
		upcoming, finished         scheduler.Window
		haveUpcoming, haveFinished bool
	)
	for _, w := range windows {
		switch Resolve(w, now).State {
		case StateActive:
			return w, true
		case StateNearFuture, StateFarFuture:
			if !haveUpcoming || w.Start.Before(upcoming.Start) {
				upcoming, haveUpcoming = w, true
			}
		case StateFinished:
			if !haveFinished || w.End.After(finished.End) {
				finished, haveFinished = w, true
			}
		}
	}
	if haveUpcoming {
		return upcoming, true
	}
	return finished, haveFinished
}
