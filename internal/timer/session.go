package timer

import "time"

// Session is the timing metadata of one conversation.
type Session struct {
	CreatedAt        time.Time
	MaxDuration      time.Duration
	UsedGraceMessage bool
	Ended            bool

	// Group sessions ignore MaxDuration. WindowEnd, when known, is their
	// only bound.
	Group     bool
	WindowEnd *time.Time
}

func (s Session) maxDuration(p Policy) time.Duration {
	if s.MaxDuration > 0 {
		return s.MaxDuration
	}
	return p.MaxDuration
}

// Expired reports whether the session's bound has passed.
func (p Policy) Expired(s Session, now time.Time) bool {
	if s.Group {
		return s.WindowEnd != nil && now.After(*s.WindowEnd)
	}
	return IsExpired(s.CreatedAt, s.maxDuration(p), now)
}

// Admission is the decision for an incoming turn.
type Admission int

const (
	// AdmitTurn accepts the turn normally.
	AdmitTurn Admission = iota + 1
	// AdmitGrace accepts the single turn allowed after expiry.
	AdmitGrace
	// RejectExpired refuses a turn after expiry and grace.
	RejectExpired
	// RejectClosed refuses a turn on an ended session.
	RejectClosed
)

// String returns a stable label.
func (a Admission) String() string {
	switch a {
	case AdmitTurn:
		return "turn"
	case AdmitGrace:
		return "grace"
	case RejectExpired:
		return "expired"
	case RejectClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Accepted reports whether the turn may be stored.
func (a Admission) Accepted() bool {
	return a == AdmitTurn || a == AdmitGrace
}

// Admit decides whether a turn arriving at now may be stored. Group sessions
// never receive a grace turn.
func (p Policy) Admit(s Session, now time.Time) Admission {
	switch {
	case s.Ended:
		return RejectClosed
	case !p.Expired(s, now):
		return AdmitTurn
	case s.Group || s.UsedGraceMessage:
		return RejectExpired
	default:
		return AdmitGrace
	}
}

// MayClose reports whether a caller may voluntarily end the session. Group
// sessions are exempt from the message minimum.
func (p Policy) MayClose(s Session, messageCount int, now time.Time) bool {
	if s.Group {
		return true
	}
	return p.CanTerminate(messageCount) || p.Expired(s, now)
}

// Status is a display snapshot of a session's timer.
type Status struct {
	Remaining      time.Duration
	Bounded        bool
	Expired        bool
	Critical       bool
	Danger         bool
	CanTerminate   bool
	GraceAvailable bool
	MessageCount   int
}

// Snapshot computes a Status. Remaining is measured to the window end for
// group sessions; Critical and Danger only apply to public sessions.
func (p Policy) Snapshot(s Session, messageCount int, now time.Time) Status {
	st := Status{
		Expired:      p.Expired(s, now),
		CanTerminate: p.MayClose(s, messageCount, now),
		MessageCount: messageCount,
	}

	if s.Group {
		if s.WindowEnd != nil {
			st.Bounded = true
			st.Remaining = Remaining(*s.WindowEnd, 0, now)
		}
		return st
	}

	st.Bounded = true
	st.Remaining = Remaining(s.CreatedAt, s.maxDuration(p), now)
	st.Critical = p.IsCritical(st.Remaining)
	st.Danger = p.IsDanger(st.Remaining)
	st.GraceAvailable = !s.Ended && st.Expired && !s.UsedGraceMessage
	return st
}
