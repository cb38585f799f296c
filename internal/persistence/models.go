package persistence

import "time"

// ScheduledWindow is one bookable period for a slug. ID is the owning group
// record's id.
type ScheduledWindow struct {
	ID               string
	Slug             string
	Name             string
	Start            time.Time
	End              time.Time
	Credential       string
	CredentialFormat string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Conversation is one running or finished conversation. WindowID is nil for
// public sessions or once the owning window has been deleted.
type Conversation struct {
	ID               string
	WindowID         *string
	GroupSession     bool
	CreatedAt        time.Time
	MaxDuration      time.Duration
	UsedGraceMessage bool
	EndedAt          *time.Time
}

// Message roles.
const (
	RoleParticipant = "participant"
	RoleAssistant   = "assistant"
)

// Message is a stored conversation turn. Content holds the value written in
// ContentFormat.
type Message struct {
	ID             string
	ConversationID string
	Seq            int
	Role           string
	Content        string
	ContentFormat  string
	CreatedAt      time.Time
}

// Grant is a session-scoped authorization issued after a correct credential.
// It lives until the window it was issued for ends.
type Grant struct {
	Token     string
	WindowID  string
	Slug      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
