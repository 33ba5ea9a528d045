package federation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quillsign/federate/pkg/crypto"
)

// DefaultTokenTTL bounds how long an issued federation token stays exchangeable.
const DefaultTokenTTL = 5 * time.Minute

// tokenByteLength yields 64 hex characters per token.
const tokenByteLength = 32

// ErrTokenInvalidOrExpired is returned when a token is unknown, already
// exchanged, or older than the TTL. Callers cannot distinguish the three.
var ErrTokenInvalidOrExpired = errors.New("federation: invalid or expired token")

// PendingClaim is the identity and tenant context a token was issued for.
type PendingClaim struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	BusinessID   string    `json:"business_id,omitempty"`
	BusinessName string    `json:"business_name,omitempty"`
	Role         string    `json:"role,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// TokenStore hands out one-time tokens for pending claims. Exchange consumes
// the token: across any number of concurrent calls for the same token exactly
// one succeeds, and every later call fails with ErrTokenInvalidOrExpired.
type TokenStore interface {
	Issue(ctx context.Context, claim PendingClaim) (string, error)
	Exchange(ctx context.Context, token string) (PendingClaim, error)
}

// MemoryTokenStore is the default in-process TokenStore. It is suitable for
// single-instance deployments; replicated deployments should use the
// cache-backed store instead.
type MemoryTokenStore struct {
	mu     sync.Mutex
	claims map[string]PendingClaim
	ttl    time.Duration
	now    func() time.Time
}

// MemoryTokenStoreOption customises a MemoryTokenStore.
type MemoryTokenStoreOption func(*MemoryTokenStore)

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) MemoryTokenStoreOption {
	return func(s *MemoryTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the clock, primarily for tests.
func WithClock(now func() time.Time) MemoryTokenStoreOption {
	return func(s *MemoryTokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryTokenStore constructs an empty in-memory token store.
func NewMemoryTokenStore(opts ...MemoryTokenStoreOption) *MemoryTokenStore {
	store := &MemoryTokenStore{
		claims: make(map[string]PendingClaim),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue stores the claim under a fresh random token and returns the token.
func (s *MemoryTokenStore) Issue(_ context.Context, claim PendingClaim) (string, error) {
	token, err := crypto.GenerateToken(tokenByteLength)
	if err != nil {
		return "", err
	}

	claim.IssuedAt = s.now()

	s.mu.Lock()
	s.claims[token] = claim
	s.mu.Unlock()

	return token, nil
}

// Exchange atomically removes and returns the claim for a token. A present
// but stale entry is removed and reported identically to an absent one.
func (s *MemoryTokenStore) Exchange(_ context.Context, token string) (PendingClaim, error) {
	s.mu.Lock()
	claim, ok := s.claims[token]
	if ok {
		delete(s.claims, token)
	}
	s.mu.Unlock()

	if !ok {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}
	if s.now().Sub(claim.IssuedAt) > s.ttl {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}

	return claim, nil
}

// Sweep drops every entry older than the TTL and reports how many were
// removed. It runs independently of Exchange to bound memory.
func (s *MemoryTokenStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, claim := range s.claims {
		if claim.IssuedAt.Before(cutoff) {
			delete(s.claims, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of pending claims currently held.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}
