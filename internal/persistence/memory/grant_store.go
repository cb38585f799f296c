// Package memory holds process-local stores backed by go-cache.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/example/session-gate/internal/persistence"
)

// GrantStore keeps participant grants in memory until their window ends.
// Grants are lost on restart; participants re-enter the credential.
type GrantStore struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewGrantStore creates a store that purges expired grants every
// cleanupInterval.
func NewGrantStore(cleanupInterval time.Duration, now func() time.Time) *GrantStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &GrantStore{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
		now:   now,
	}
}

// SaveGrant stores grant until its ExpiresAt.
func (s *GrantStore) SaveGrant(_ context.Context, grant persistence.Grant) error {
	if strings.TrimSpace(grant.Token) == "" {
		return persistence.ErrConstraintViolation
	}
	ttl := grant.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return persistence.ErrConstraintViolation
	}
	s.cache.Set(grant.Token, grant, ttl)
	return nil
}

// GetGrant returns a live grant. The injected clock is checked as well as
// the cache TTL so tests can move time without sleeping.
func (s *GrantStore) GetGrant(_ context.Context, token string) (persistence.Grant, error) {
	x, found := s.cache.Get(token)
	if !found {
		return persistence.Grant{}, persistence.ErrNotFound
	}
	grant := x.(persistence.Grant)
	if !s.now().Before(grant.ExpiresAt) {
		s.cache.Delete(token)
		return persistence.Grant{}, persistence.ErrNotFound
	}
	return grant, nil
}

// RevokeGrant removes a grant. Revoking an unknown token is not an error.
func (s *GrantStore) RevokeGrant(_ context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}

// Count returns the number of unexpired grants held.
func (s *GrantStore) Count() int {
	return s.cache.ItemCount()
}
