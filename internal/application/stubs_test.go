package application

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/scheduler"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var cheapArgon2 = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type recordingWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *recordingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *recordingWriter) Len() int {
	return len(w.String())
}

func (w *recordingWriter) Contains(s string) bool {
	return strings.Contains(w.String(), s)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{now: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func newTestCipher(t *testing.T) *envelope.Cipher {
	t.Helper()
	c, err := envelope.NewFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	return c
}

// windowRepoStub emulates the store, including its overlap constraint.
type windowRepoStub struct {
	mu      sync.Mutex
	windows map[string]persistence.ScheduledWindow

	err          error
	createErr    error
	hideOverlaps bool
	block        bool
}

func newWindowRepoStub(windows ...persistence.ScheduledWindow) *windowRepoStub {
	stub := &windowRepoStub{windows: make(map[string]persistence.ScheduledWindow)}
	for _, w := range windows {
		stub.windows[w.ID] = w
	}
	return stub
}

func (s *windowRepoStub) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *windowRepoStub) overlapping(w persistence.ScheduledWindow) bool {
	for _, existing := range s.windows {
		if existing.ID == w.ID || existing.Slug != w.Slug {
			continue
		}
		if scheduler.Overlaps(toSchedulerWindow(existing), toSchedulerWindow(w)) {
			return true
		}
	}
	return false
}

func (s *windowRepoStub) CreateWindow(ctx context.Context, window persistence.ScheduledWindow) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[window.ID]; ok {
		return persistence.ErrDuplicate
	}
	if s.overlapping(window) {
		return persistence.ErrOverlap
	}
	s.windows[window.ID] = window
	return nil
}

func (s *windowRepoStub) UpdateWindow(ctx context.Context, window persistence.ScheduledWindow) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[window.ID]; !ok {
		return persistence.ErrNotFound
	}
	if s.overlapping(window) {
		return persistence.ErrOverlap
	}
	s.windows[window.ID] = window
	return nil
}

func (s *windowRepoStub) GetWindow(ctx context.Context, id string) (persistence.ScheduledWindow, error) {
	if err := s.wait(ctx); err != nil {
		return persistence.ScheduledWindow{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return persistence.ScheduledWindow{}, persistence.ErrNotFound
	}
	return w, nil
}

func (s *windowRepoStub) ListWindowsBySlug(ctx context.Context, slug string) ([]persistence.ScheduledWindow, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ScheduledWindow
	for _, w := range s.windows {
		if w.Slug == slug {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *windowRepoStub) ListOverlapping(ctx context.Context, slug string, start, end time.Time, excludeID string) ([]persistence.ScheduledWindow, error) {
	all, err := s.ListWindowsBySlug(ctx, slug)
	if err != nil || s.hideOverlaps {
		return nil, err
	}
	var out []persistence.ScheduledWindow
	for _, w := range all {
		if w.ID != excludeID && w.Start.Before(end) && start.Before(w.End) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *windowRepoStub) DeleteWindow(ctx context.Context, id string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.windows, id)
	return nil
}

// conversationStoreStub implements the conversation and message repositories
// with the same grace and close semantics as the SQLite store.
type conversationStoreStub struct {
	mu            sync.Mutex
	conversations map[string]persistence.Conversation
	messages      map[string][]persistence.Message
	err           error
}

func newConversationStoreStub() *conversationStoreStub {
	return &conversationStoreStub{
		conversations: make(map[string]persistence.Conversation),
		messages:      make(map[string][]persistence.Message),
	}
}

func (s *conversationStoreStub) CreateConversation(ctx context.Context, c persistence.Conversation) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.conversations[c.ID] = c
	return nil
}

func (s *conversationStoreStub) GetConversation(ctx context.Context, id string) (persistence.Conversation, error) {
	if s.err != nil {
		return persistence.Conversation{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return persistence.Conversation{}, persistence.ErrNotFound
	}
	return c, nil
}

func (s *conversationStoreStub) CloseConversation(ctx context.Context, id string, endedAt time.Time) (persistence.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return persistence.Conversation{}, persistence.ErrNotFound
	}
	if c.EndedAt == nil {
		ended := endedAt
		c.EndedAt = &ended
		s.conversations[id] = c
	}
	return c, nil
}

func (s *conversationStoreStub) AppendMessage(ctx context.Context, msg persistence.Message, consumeGrace bool) (persistence.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return persistence.Message{}, persistence.ErrNotFound
	}
	if c.EndedAt != nil {
		return persistence.Message{}, persistence.ErrPrecondition
	}
	if consumeGrace {
		if c.UsedGraceMessage {
			return persistence.Message{}, persistence.ErrPrecondition
		}
		c.UsedGraceMessage = true
		s.conversations[c.ID] = c
	}
	msg.Seq = len(s.messages[c.ID]) + 1
	s.messages[c.ID] = append(s.messages[c.ID], msg)
	return msg, nil
}

func (s *conversationStoreStub) ListMessages(ctx context.Context, id string) ([]persistence.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.Message, len(s.messages[id]))
	copy(out, s.messages[id])
	return out, nil
}

func (s *conversationStoreStub) CountMessages(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[id]), nil
}

func (s *conversationStoreStub) tamper(id string, seq int, content, format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[id]
	msgs[seq-1].Content = content
	if format != "" {
		msgs[seq-1].ContentFormat = format
	}
}
