package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore is the in-process deny list consulted by
// JWTMiddleware. A logged-out token ID stays listed only until the token
// would have expired anyway; past that the signature check rejects it.
type TokenRevocationStore struct {
	mu     sync.RWMutex
	denied map[string]time.Time
	now    func() time.Time
	stop   func()
}

// NewTokenRevocationStore sweeps stale entries every sweepEvery until Close.
func NewTokenRevocationStore(sweepEvery time.Duration) *TokenRevocationStore {
	ticker := time.NewTicker(sweepEvery)
	quit := make(chan struct{})
	s := &TokenRevocationStore{
		denied: make(map[string]time.Time),
		now:    time.Now,
		stop: sync.OnceFunc(func() {
			ticker.Stop()
			close(quit)
		}),
	}
	go func() {
		for {
			select {
			case <-quit:
				return
			case t := <-ticker.C:
				s.cleanup(t)
			}
		}
	}()
	return s
}

// Revoke denies jti until expiresAt. Blank IDs and already expired tokens
// are ignored.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" || !expiresAt.After(s.now()) {
		return
	}
	s.mu.Lock()
	s.denied[jti] = expiresAt
	s.mu.Unlock()
}

func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	exp, ok := s.denied[jti]
	s.mu.RUnlock()
	return ok && exp.After(s.now())
}

// Count is exported as the auth_revoked_tokens gauge.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.denied)
}

func (s *TokenRevocationStore) Close() { s.stop() }

func (s *TokenRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.denied {
		if !exp.After(now) {
			delete(s.denied, jti)
		}
	}
}
