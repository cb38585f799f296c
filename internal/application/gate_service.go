package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-gate/internal/access"
	"github.com/example/session-gate/internal/logging"
	"github.com/example/session-gate/internal/persistence"
)

// grantSlack keeps a grant issued at the inclusive window end storable.
const grantSlack = time.Second

// CredentialMatcher compares a candidate with a stored credential.
type CredentialMatcher interface {
	Matches(stored, format, candidate string) (bool, error)
}

// AttemptLimiter throttles credential attempts per key.
type AttemptLimiter interface {
	Allow(key string, now time.Time) bool
}

// GateService checks participant credentials against scheduled windows and
// issues session-scoped grants.
type GateService struct {
	windows        persistence.WindowRepository
	grants         persistence.GrantStore
	credentials    CredentialMatcher
	limiter        AttemptLimiter
	tokenGenerator func() string
	now            func() time.Time
	storeTimeout   time.Duration
	logger         *slog.Logger
}

// NewGateService constructs a GateService. A nil limiter disables throttling.
func NewGateService(windows persistence.WindowRepository, grants persistence.GrantStore, credentials CredentialMatcher, limiter AttemptLimiter, tokenGenerator func() string, now func() time.Time, storeTimeout time.Duration) *GateService {
	return NewGateServiceWithLogger(windows, grants, credentials, limiter, tokenGenerator, now, storeTimeout, nil)
}

// NewGateServiceWithLogger constructs a GateService with a specified logger.
func NewGateServiceWithLogger(windows persistence.WindowRepository, grants persistence.GrantStore, credentials CredentialMatcher, limiter AttemptLimiter, tokenGenerator func() string, now func() time.Time, storeTimeout time.Duration, logger *slog.Logger) *GateService {
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &GateService{
		windows:        windows,
		grants:         grants,
		credentials:    credentials,
		limiter:        limiter,
		tokenGenerator: tokenGenerator,
		now:            now,
		storeTimeout:   storeTimeout,
		logger:         logging.OrDefault(logger),
	}
}

func (s *GateService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GateService", operation, attrs...)
}

// Verify decides whether candidate opens window at now. Only ACTIVE windows
// are checked against the credential; finished and future windows are
// rejected without reading it. The returned error reports a stored
// credential that could not be read and is never paired with Authorized.
func (s *GateService) Verify(window persistence.ScheduledWindow, candidate string, now time.Time) (GateResult, error) {
	decision := access.Resolve(toSchedulerWindow(window), now)
	result := GateResult{State: decision.State}

	switch decision.State {
	case access.StateFinished:
		result.Reason = ReasonFinished
		return result, nil
	case access.StateNearFuture, access.StateFarFuture:
		result.Reason = ReasonNotStarted
		return result, nil
	}

	ok, err := s.credentials.Matches(window.Credential, window.CredentialFormat, candidate)
	if err != nil {
		result.Reason = ReasonMismatch
		return result, fmt.Errorf("read stored credential: %w", err)
	}
	if !ok {
		result.Reason = ReasonMismatch
		return result, nil
	}
	result.Authorized = true
	return result, nil
}

// Authorize verifies candidate against the slug's selected window and issues
// a grant valid until the window ends.
func (s *GateService) Authorize(ctx context.Context, slug, candidate string) (grant Grant, err error) {
	if s == nil {
		return Grant{}, fmt.Errorf("GateService is nil")
	}

	slug = normalizeSlug(slug)
	logger := s.loggerWith(ctx, "Authorize", "slug", slug)
	defer func() {
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrTooManyAttempts) {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "authorization failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("window_id", grant.WindowID).InfoContext(ctx, "authorization granted")
	}()

	now := s.now()
	if s.limiter != nil && !s.limiter.Allow(attemptKey(ctx, slug), now) {
		err = ErrTooManyAttempts
		return
	}
	if strings.TrimSpace(candidate) == "" {
		err = accessDenied(ReasonMismatch)
		return
	}

	var window persistence.ScheduledWindow
	window, err = selectWindowRecord(ctx, s.windows, s.storeTimeout, slug, now)
	if err != nil {
		return
	}

	var result GateResult
	result, err = s.Verify(window, candidate, now)
	if err != nil {
		return
	}
	if !result.Authorized {
		err = accessDenied(result.Reason)
		return
	}

	grant = Grant{
		Token:     s.tokenGenerator(),
		WindowID:  window.ID,
		Slug:      window.Slug,
		IssuedAt:  now,
		ExpiresAt: window.End.Add(grantSlack),
	}
	if err = s.grants.SaveGrant(ctx, grant); err != nil {
		err = mapStoreError(err)
		grant = Grant{}
		return
	}
	return
}

// ValidateGrant returns the live grant for token.
func (s *GateService) ValidateGrant(ctx context.Context, token string) (Grant, error) {
	if s == nil {
		return Grant{}, fmt.Errorf("GateService is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Grant{}, ErrInvalidGrant
	}
	grant, err := s.grants.GetGrant(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Grant{}, ErrInvalidGrant
		}
		return Grant{}, mapStoreError(err)
	}
	return grant, nil
}

// RevokeGrant discards a grant.
func (s *GateService) RevokeGrant(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("GateService is nil")
	}
	return mapStoreError(s.grants.RevokeGrant(ctx, strings.TrimSpace(token)))
}
