package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/session-gate/internal/application"
)

// GrantTokenHeader carries the grant issued by POST /access/{slug}/authorize.
const GrantTokenHeader = "X-Grant-Token"

type conversationService interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (application.Message, error)
	ReadMessages(ctx context.Context, conversationID string) ([]application.Message, error)
	ReadMessagesForDisplay(ctx context.Context, conversationID string) ([]application.DisplayMessage, error)
	CloseSession(ctx context.Context, conversationID string) (application.Conversation, error)
	Status(ctx context.Context, conversationID string) (application.ConversationStatus, error)
}

type ConversationHandler struct {
	service   conversationService
	responder responder
}

func NewConversationHandler(service conversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{service: service, responder: newResponder(logger)}
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}

	params := application.CreateSessionParams{GrantToken: strings.TrimSpace(r.Header.Get(GrantTokenHeader))}
	if req.WindowID != nil && strings.TrimSpace(*req.WindowID) != "" {
		params.WindowID = req.WindowID
	}

	conversation, err := h.service.CreateSession(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, conversationResponse{Conversation: toConversationDTO(conversation)})
}

// Status answers GET /conversations/{id}.
func (h *ConversationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, statusResponse{
		Conversation:     toConversationDTO(status.Conversation),
		Closed:           status.Closed,
		Bounded:          status.Timer.Bounded,
		RemainingSeconds: int64(status.Timer.Remaining.Seconds()),
		Expired:          status.Timer.Expired,
		Critical:         status.Timer.Critical,
		Danger:           status.Timer.Danger,
		CanTerminate:     status.Timer.CanTerminate,
		GraceAvailable:   status.Timer.GraceAvailable,
		MessageCount:     status.Timer.MessageCount,
	})
}

func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	message, err := h.service.AppendMessage(r.Context(), id, req.Role, req.Content)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, messageResponse{Message: toMessageDTO(message)})
}

// ListMessages answers GET /conversations/{id}/messages. With display=1 the
// best-effort read is used and undecryptable turns are flagged instead of
// failing the request.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	if display := r.URL.Query().Get("display"); display == "1" || strings.EqualFold(display, "true") {
		messages, err := h.service.ReadMessagesForDisplay(r.Context(), id)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		out := make([]messageDTO, 0, len(messages))
		for _, m := range messages {
			dto := toMessageDTO(m.Message)
			dto.Status = m.Status.String()
			dto.Degraded = m.Degraded
			out = append(out, dto)
		}
		h.responder.writeJSON(r.Context(), w, http.StatusOK, listMessagesResponse{Messages: out})
		return
	}

	messages, err := h.service.ReadMessages(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]messageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageDTO(m))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMessagesResponse{Messages: out})
}

func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	conversation, err := h.service.CloseSession(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, conversationResponse{Conversation: toConversationDTO(conversation)})
}

func (h *ConversationHandler) conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", false
	}
	id, ok := ConversationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidConversationID)
		return "", false
	}
	return id, true
}

type createConversationRequest struct {
	WindowID *string `json:"window_id"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type conversationResponse struct {
	Conversation conversationDTO `json:"conversation"`
}

type statusResponse struct {
	Conversation     conversationDTO `json:"conversation"`
	Closed           bool            `json:"closed"`
	Bounded          bool            `json:"bounded"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Expired          bool            `json:"expired"`
	Critical         bool            `json:"critical"`
	Danger           bool            `json:"danger"`
	CanTerminate     bool            `json:"can_terminate"`
	GraceAvailable   bool            `json:"grace_available"`
	MessageCount     int             `json:"message_count"`
}

type messageResponse struct {
	Message messageDTO `json:"message"`
}

type listMessagesResponse struct {
	Messages []messageDTO `json:"messages"`
}

type conversationDTO struct {
	ID                 string  `json:"id"`
	WindowID           *string `json:"window_id,omitempty"`
	GroupSession       bool    `json:"group_session"`
	CreatedAt          string  `json:"created_at"`
	MaxDurationSeconds int64   `json:"max_duration_seconds"`
	UsedGraceMessage   bool    `json:"used_grace_message"`
	EndedAt            *string `json:"ended_at,omitempty"`
}

func toConversationDTO(c application.Conversation) conversationDTO {
	return conversationDTO{
		ID:                 c.ID,
		WindowID:           c.WindowID,
		GroupSession:       c.GroupSession,
		CreatedAt:          formatTime(c.CreatedAt),
		MaxDurationSeconds: int64(c.MaxDuration.Seconds()),
		UsedGraceMessage:   c.UsedGraceMessage,
		EndedAt:            formatOptionalTime(c.EndedAt),
	}
}

type messageDTO struct {
	ID        string `json:"id"`
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func toMessageDTO(m application.Message) messageDTO {
	return messageDTO{
		ID:        m.ID,
		Seq:       m.Seq,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: formatTime(m.CreatedAt),
	}
}
