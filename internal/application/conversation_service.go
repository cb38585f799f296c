package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-gate/internal/access"
	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/logging"
	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/timer"
)

// MessageCipher seals and opens message content.
type MessageCipher interface {
	Seal(plaintext string) (envelope.Record, error)
	Open(record envelope.Record) (string, error)
	SafeDecrypt(ctx context.Context, value string) envelope.Result
}

// GrantValidator resolves grant tokens.
type GrantValidator interface {
	ValidateGrant(ctx context.Context, token string) (Grant, error)
}

// ConversationService runs the conversation lifecycle: creation under a
// grant, turn admission, encrypted storage, and voluntary close.
type ConversationService struct {
	conversations persistence.ConversationRepository
	messages      persistence.MessageRepository
	windows       persistence.WindowRepository
	grants        GrantValidator
	cipher        MessageCipher
	policy        timer.Policy
	idGenerator   func() string
	now           func() time.Time
	storeTimeout  time.Duration
	logger        *slog.Logger
}

// ConversationStores groups the repositories used by ConversationService.
type ConversationStores struct {
	Conversations persistence.ConversationRepository
	Messages      persistence.MessageRepository
	Windows       persistence.WindowRepository
}

// NewConversationService constructs a ConversationService.
func NewConversationService(stores ConversationStores, grants GrantValidator, cipher MessageCipher, policy timer.Policy, idGenerator func() string, now func() time.Time, storeTimeout time.Duration) *ConversationService {
	return NewConversationServiceWithLogger(stores, grants, cipher, policy, idGenerator, now, storeTimeout, nil)
}

// NewConversationServiceWithLogger constructs a ConversationService with a specified logger.
func NewConversationServiceWithLogger(stores ConversationStores, grants GrantValidator, cipher MessageCipher, policy timer.Policy, idGenerator func() string, now func() time.Time, storeTimeout time.Duration, logger *slog.Logger) *ConversationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &ConversationService{
		conversations: stores.Conversations,
		messages:      stores.Messages,
		windows:       stores.Windows,
		grants:        grants,
		cipher:        cipher,
		policy:        policy.Normalize(),
		idGenerator:   idGenerator,
		now:           now,
		storeTimeout:  storeTimeout,
		logger:        logging.OrDefault(logger),
	}
}

func (s *ConversationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConversationService", operation, attrs...)
}

// Policy returns the timer policy applied to public conversations.
func (s *ConversationService) Policy() timer.Policy {
	return s.policy
}

// CreateSession starts a conversation. Scheduled sessions need a live grant
// for the requested window and the window must be ACTIVE.
func (s *ConversationService) CreateSession(ctx context.Context, params CreateSessionParams) (conversation Conversation, err error) {
	if s == nil {
		return Conversation{}, fmt.Errorf("ConversationService is nil")
	}

	logger := s.loggerWith(ctx, "CreateSession", "scheduled", params.WindowID != nil)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("conversation_id", conversation.ID).InfoContext(ctx, "session created")
	}()

	now := s.now().UTC()
	conversation = Conversation{
		ID:          s.idGenerator(),
		CreatedAt:   now,
		MaxDuration: s.policy.MaxDuration,
	}

	if params.WindowID != nil {
		windowID := strings.TrimSpace(*params.WindowID)
		if err = s.admitScheduled(ctx, windowID, params.GrantToken, now); err != nil {
			conversation = Conversation{}
			return
		}
		conversation.WindowID = &windowID
		conversation.GroupSession = true
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err = mapStoreError(s.conversations.CreateConversation(storeCtx, conversation)); err != nil {
		conversation = Conversation{}
		return
	}
	return
}

func (s *ConversationService) admitScheduled(ctx context.Context, windowID, token string, now time.Time) error {
	if s.grants == nil {
		return fmt.Errorf("grant validator not configured")
	}
	grant, err := s.grants.ValidateGrant(ctx, token)
	if err != nil {
		return err
	}
	if grant.WindowID != windowID {
		return ErrInvalidGrant
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	window, err := s.windows.GetWindow(storeCtx, windowID)
	if err != nil {
		return mapStoreError(err)
	}
	switch access.Resolve(toSchedulerWindow(window), now).State {
	case access.StateActive:
		return nil
	case access.StateFinished:
		return accessDenied(ReasonFinished)
	default:
		return accessDenied(ReasonNotStarted)
	}
}

// AppendMessage encrypts and stores one turn. After expiry a public
// conversation accepts exactly one more turn; the grace flag and the insert
// are committed together so concurrent callers cannot both use it.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID, role, content string) (message Message, err error) {
	if s == nil {
		return Message{}, fmt.Errorf("ConversationService is nil")
	}

	role = strings.ToLower(strings.TrimSpace(role))
	logger := s.loggerWith(ctx, "AppendMessage", "conversation_id", conversationID, "role", role)
	var admission timer.Admission
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "message append failed", "error", err, "error_kind", ErrorKind(err), "admission", admission.String())
			return
		}
		logger.With("seq", message.Seq).InfoContext(ctx, "message appended", "admission", admission.String())
	}()

	vErr := &ValidationError{}
	if role != persistence.RoleParticipant && role != persistence.RoleAssistant {
		vErr.add("role", "role must be participant or assistant")
	}
	if strings.TrimSpace(content) == "" {
		vErr.add("content", "content is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var conversation Conversation
	conversation, err = s.get(ctx, conversationID)
	if err != nil {
		return
	}
	var session timer.Session
	session, err = s.timerSession(ctx, conversation)
	if err != nil {
		return
	}

	now := s.now().UTC()
	admission = s.policy.Admit(session, now)
	switch admission {
	case timer.RejectClosed:
		err = ErrSessionClosed
		return
	case timer.RejectExpired:
		err = ErrTurnRejected
		return
	}

	var record envelope.Record
	record, err = s.cipher.Seal(content)
	if err != nil {
		err = fmt.Errorf("seal message: %w", err)
		return
	}

	stored := persistence.Message{
		ID:             s.idGenerator(),
		ConversationID: conversation.ID,
		Role:           role,
		Content:        record.Payload,
		ContentFormat:  string(record.Format),
		CreatedAt:      now,
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	stored, err = s.messages.AppendMessage(storeCtx, stored, admission == timer.AdmitGrace)
	if err != nil {
		if errors.Is(err, persistence.ErrPrecondition) {
			err = s.preconditionError(ctx, conversation.ID)
			return
		}
		err = mapStoreError(err)
		return
	}

	message = Message{
		ID:             stored.ID,
		ConversationID: stored.ConversationID,
		Seq:            stored.Seq,
		Role:           stored.Role,
		Content:        content,
		CreatedAt:      stored.CreatedAt,
	}
	return
}

// preconditionError explains a store-side rejection that raced with another
// writer: the conversation was closed or its grace turn was taken.
func (s *ConversationService) preconditionError(ctx context.Context, id string) error {
	conversation, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if conversation.EndedAt != nil {
		return ErrSessionClosed
	}
	return ErrTurnRejected
}

// ReadMessages returns every turn decrypted, ordered by sequence. Any record
// that fails authentication aborts the read with envelope.ErrIntegrity.
func (s *ConversationService) ReadMessages(ctx context.Context, conversationID string) (messages []Message, err error) {
	if s == nil {
		return nil, fmt.Errorf("ConversationService is nil")
	}

	logger := s.loggerWith(ctx, "ReadMessages", "conversation_id", conversationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "message read failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var stored []persistence.Message
	stored, err = s.list(ctx, conversationID)
	if err != nil {
		return
	}

	messages = make([]Message, 0, len(stored))
	for _, m := range stored {
		var format envelope.Format
		format, err = envelope.ParseFormat(m.ContentFormat)
		if err != nil {
			err = fmt.Errorf("message %d: %w", m.Seq, err)
			return nil, err
		}
		var plaintext string
		plaintext, err = s.cipher.Open(envelope.Record{Format: format, Payload: m.Content})
		if err != nil {
			err = fmt.Errorf("message %d: %w", m.Seq, err)
			return nil, err
		}
		messages = append(messages, messageFromRecord(m, plaintext))
	}
	return
}

// ReadMessagesForDisplay is the best-effort variant of ReadMessages. Records
// that cannot be opened are returned as stored and flagged Degraded. Its
// output must not feed analysis or audit.
func (s *ConversationService) ReadMessagesForDisplay(ctx context.Context, conversationID string) ([]DisplayMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("ConversationService is nil")
	}

	stored, err := s.list(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	logger := s.loggerWith(ctx, "ReadMessagesForDisplay", "conversation_id", conversationID)
	out := make([]DisplayMessage, 0, len(stored))
	degraded := 0
	for _, m := range stored {
		var result envelope.Result
		switch envelope.Format(m.ContentFormat) {
		case envelope.FormatPlaintext:
			result = envelope.Result{Value: m.Content, Status: envelope.StatusOpened}
		case envelope.FormatAESGCMv1:
			result = s.cipher.SafeDecrypt(ctx, m.Content)
		default:
			logger.ErrorContext(ctx, "unknown content format", "seq", m.Seq, "format", m.ContentFormat)
			result = envelope.Result{Value: m.Content, Status: envelope.StatusDegraded, Err: envelope.ErrUnknownFormat}
		}
		if result.Degraded() {
			degraded++
		}
		out = append(out, DisplayMessage{
			Message:  messageFromRecord(m, result.Value),
			Status:   result.Status,
			Degraded: result.Degraded(),
		})
	}
	if degraded > 0 {
		logger.WarnContext(ctx, "messages returned degraded", "degraded", degraded, "total", len(out))
	}
	return out, nil
}

// CloseSession ends a conversation. Closing twice returns the stored end
// instant. Public conversations may only be closed voluntarily once they
// have enough messages or have expired.
func (s *ConversationService) CloseSession(ctx context.Context, conversationID string) (conversation Conversation, err error) {
	if s == nil {
		return Conversation{}, fmt.Errorf("ConversationService is nil")
	}

	logger := s.loggerWith(ctx, "CloseSession", "conversation_id", conversationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session close failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session closed", "ended_at", conversation.EndedAt)
	}()

	conversation, err = s.get(ctx, conversationID)
	if err != nil {
		return
	}
	if conversation.EndedAt != nil {
		return
	}

	var count int
	count, err = s.count(ctx, conversation.ID)
	if err != nil {
		return
	}
	var session timer.Session
	session, err = s.timerSession(ctx, conversation)
	if err != nil {
		return
	}
	now := s.now().UTC()
	if !s.policy.MayClose(session, count, now) {
		err = ErrTerminationNotAllowed
		return
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	conversation, err = s.conversations.CloseConversation(storeCtx, conversation.ID, now)
	err = mapStoreError(err)
	return
}

// Status reports the timer snapshot of a conversation.
func (s *ConversationService) Status(ctx context.Context, conversationID string) (ConversationStatus, error) {
	if s == nil {
		return ConversationStatus{}, fmt.Errorf("ConversationService is nil")
	}

	conversation, err := s.get(ctx, conversationID)
	if err != nil {
		return ConversationStatus{}, err
	}
	count, err := s.count(ctx, conversation.ID)
	if err != nil {
		return ConversationStatus{}, err
	}
	session, err := s.timerSession(ctx, conversation)
	if err != nil {
		return ConversationStatus{}, err
	}
	return ConversationStatus{
		Conversation: conversation,
		Timer:        s.policy.Snapshot(session, count, s.now().UTC()),
		Closed:       conversation.EndedAt != nil,
	}, nil
}

// timerSession builds the timer view of a conversation. Group sessions are
// bounded by their window's end; once the window is deleted they are
// unbounded.
func (s *ConversationService) timerSession(ctx context.Context, c Conversation) (timer.Session, error) {
	session := timer.Session{
		CreatedAt:        c.CreatedAt,
		MaxDuration:      c.MaxDuration,
		UsedGraceMessage: c.UsedGraceMessage,
		Ended:            c.EndedAt != nil,
		Group:            c.GroupSession,
	}
	if !c.GroupSession || c.WindowID == nil {
		return session, nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	window, err := s.windows.GetWindow(storeCtx, *c.WindowID)
	switch {
	case err == nil:
		end := window.End
		session.WindowEnd = &end
	case errors.Is(err, persistence.ErrNotFound):
	default:
		return timer.Session{}, mapStoreError(err)
	}
	return session, nil
}

func (s *ConversationService) get(ctx context.Context, id string) (Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Conversation{}, ErrNotFound
	}
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	conversation, err := s.conversations.GetConversation(storeCtx, id)
	if err != nil {
		return Conversation{}, mapStoreError(err)
	}
	if conversation.GroupSession {
		if err := s.checkGrant(ctx, conversation); err != nil {
			return Conversation{}, err
		}
	}
	return conversation, nil
}

// checkGrant requires the grant carried by ctx to be live and issued for the
// conversation's window.
func (s *ConversationService) checkGrant(ctx context.Context, c Conversation) error {
	if s.grants == nil {
		return fmt.Errorf("grant validator not configured")
	}
	grant, err := s.grants.ValidateGrant(ctx, GrantTokenFromContext(ctx))
	if err != nil {
		return err
	}
	if c.WindowID == nil || grant.WindowID != *c.WindowID {
		return ErrInvalidGrant
	}
	return nil
}

func (s *ConversationService) list(ctx context.Context, id string) ([]persistence.Message, error) {
	conversation, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	messages, err := s.messages.ListMessages(storeCtx, conversation.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return messages, nil
}

func (s *ConversationService) count(ctx context.Context, id string) (int, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	count, err := s.messages.CountMessages(storeCtx, id)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return count, nil
}

func messageFromRecord(m persistence.Message, content string) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		Role:           m.Role,
		Content:        content,
		CreatedAt:      m.CreatedAt,
	}
}
