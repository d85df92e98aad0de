// Package revocation holds the denylist of bearer token ids. It is the only
// place the stateless token scheme is broken: pure expiry cannot provide an
// immediate kill-switch for an already-minted token.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Store is an expiring set of revoked jtis. A single store is shared by all
// request handlers; construct it once at process start and inject it.
type Store struct {
	mu      sync.RWMutex
	entries map[string]int64 // jti -> expiresAt in epoch millis
}

func NewStore() *Store {
	return &Store{entries: map[string]int64{}}
}

// Revoke records that jti must be rejected until expiresAtMillis. After that
// the token is rejected by expiry anyway, so the entry becomes garbage.
func (s *Store) Revoke(jti string, expiresAtMillis int64) {
	if jti == "" {
		return
	}

	s.mu.Lock()
	s.entries[jti] = expiresAtMillis
	s.mu.Unlock()
}

func (s *Store) IsRevoked(jti string) bool {
	now := time.Now().UnixMilli()

	s.mu.RLock()
	expiresAt, exists := s.entries[jti]
	s.mu.RUnlock()

	if !exists {
		return false
	}

	if expiresAt <= now {
		// Lazy garbage collection: the underlying token is expired, so the
		// entry has no observable effect anymore.
		s.mu.Lock()
		if current, stillThere := s.entries[jti]; stillThere && current <= now {
			delete(s.entries, jti)
		}
		s.mu.Unlock()
		return false
	}

	return true
}

// Sweep drops every entry past its expiry and returns how many were removed.
func (s *Store) Sweep() int {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jti, expiresAt := range s.entries {
		if expiresAt <= now {
			delete(s.entries, jti)
			removed++
		}
	}

	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor sweeps expired entries periodically until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
