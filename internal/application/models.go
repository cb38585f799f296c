package application

import (
	"time"

	"github.com/example/session-gate/internal/access"
	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/timer"
)

// WindowInput captures caller provided window fields. Credential is the
// plaintext credential participants must present.
type WindowInput struct {
	Slug       string
	Name       string
	Start      time.Time
	End        time.Time
	Credential string
}

// Window is a scheduled window as returned to callers. The stored credential
// never leaves the service.
type Window struct {
	ID        string
	Slug      string
	Name      string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateWindowParams wraps the data required to create a window. ID is the
// owning group record's id; it is generated when empty.
type CreateWindowParams struct {
	ID    string
	Input WindowInput
}

// UpdateWindowParams wraps the data required to update a window. An empty
// Input.Credential keeps the stored credential.
type UpdateWindowParams struct {
	WindowID string
	Input    WindowInput
}

// AvailabilityQuery asks whether [Start, End) is free on Slug.
type AvailabilityQuery struct {
	Slug      string
	Start     time.Time
	End       time.Time
	ExcludeID string
}

// AccessDecision is the resolved state of a slug's selected window.
type AccessDecision struct {
	Window   Window
	Decision access.Decision
}

// GateResult is the outcome of the credential gate.
type GateResult struct {
	Authorized bool
	Reason     string
	State      access.State
}

// Grant is the session-scoped authorization handed to a participant.
type Grant = persistence.Grant

// CreateSessionParams describes a new conversation. A nil WindowID starts a
// public session; otherwise GrantToken must hold a live grant for it.
type CreateSessionParams struct {
	WindowID   *string
	GrantToken string
}

// Conversation is a conversation as returned to callers.
type Conversation = persistence.Conversation

// Message is a decrypted conversation turn.
type Message struct {
	ID             string
	ConversationID string
	Seq            int
	Role           string
	Content        string
	CreatedAt      time.Time
}

// DisplayMessage is a best-effort decrypted turn. Degraded is set when the
// stored value could not be opened and Content holds it unchanged.
type DisplayMessage struct {
	Message
	Status   envelope.Status
	Degraded bool
}

// ConversationStatus reports a conversation's timer state.
type ConversationStatus struct {
	Conversation Conversation
	Timer        timer.Status
	Closed       bool
}

func windowFromRecord(w persistence.ScheduledWindow) Window {
	return Window{
		ID:        w.ID,
		Slug:      w.Slug,
		Name:      w.Name,
		Start:     w.Start,
		End:       w.End,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
