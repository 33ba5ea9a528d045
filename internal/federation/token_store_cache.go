package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillsign/federate/internal/cache"
	"github.com/quillsign/federate/pkg/crypto"
)

const tokenCacheKeyPrefix = "federation:tokens:"

// CacheTokenStore backs the one-time token map with a shared cache.Store so
// tokens issued by one replica can be exchanged on another. Single-use
// semantics come from the store's atomic GetDel; expiry is enforced both by
// the backend TTL and by the issued-at check on exchange.
type CacheTokenStore struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCacheTokenStore wraps a shared cache store as a TokenStore.
func NewCacheTokenStore(store cache.Store, ttl time.Duration) *CacheTokenStore {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &CacheTokenStore{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Issue stores the claim under a fresh random token with the configured TTL.
func (s *CacheTokenStore) Issue(ctx context.Context, claim PendingClaim) (string, error) {
	token, err := crypto.GenerateToken(tokenByteLength)
	if err != nil {
		return "", err
	}

	claim.IssuedAt = s.now()

	payload, err := json.Marshal(claim)
	if err != nil {
		return "", fmt.Errorf("token store: marshal claim: %w", err)
	}

	if err := s.store.Set(ctx, tokenCacheKeyPrefix+token, payload, s.ttl); err != nil {
		return "", fmt.Errorf("token store: store claim: %w", err)
	}

	return token, nil
}

// Exchange consumes the token via the store's atomic get-and-delete.
func (s *CacheTokenStore) Exchange(ctx context.Context, token string) (PendingClaim, error) {
	if token == "" {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}

	payload, found, err := s.store.GetDel(ctx, tokenCacheKeyPrefix+token)
	if err != nil {
		return PendingClaim{}, fmt.Errorf("token store: fetch claim: %w", err)
	}
	if !found {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}

	var claim PendingClaim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}

	if s.now().Sub(claim.IssuedAt) > s.ttl {
		return PendingClaim{}, ErrTokenInvalidOrExpired
	}

	return claim, nil
}
