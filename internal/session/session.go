// session.go - Volatile holder for the unlocked seed.
//
// The seed lives only in process memory. Unlock replaces it, Lock clears it and
// runs the registered lock hooks so session scoped state (the staged proof
// request, callers awaiting a proof) is torn down with it.

package session

import (
	"math/big"
	"sync"

	"privacypool/internal/commitment"
	"privacypool/internal/poolerr"
)

// Session holds the unlocked seed for one user session.
type Session struct {
	mu      sync.RWMutex
	seedHex string
	seed    *big.Int
	onLock  []func()
}

// New returns a locked session.
func New() *Session {
	return &Session{}
}

// Unlock validates seedHex and makes it the session seed.
func (s *Session) Unlock(seedHex string) error {
	seed, err := commitment.ParseSeed(seedHex)
	if err != nil {
		return poolerr.Wrap(poolerr.InvalidRequest, err, "invalid seed")
	}
	s.mu.Lock()
	s.seedHex = seedHex
	s.seed = seed
	s.mu.Unlock()
	return nil
}

// Lock clears the seed and runs the lock hooks. Locking a locked session still
// runs the hooks.
func (s *Session) Lock() {
	s.mu.Lock()
	s.seedHex = ""
	s.seed = nil
	hooks := append([]func(){}, s.onLock...)
	s.mu.Unlock()

	for _, h := range hooks {
		h()
	}
}

// OnLock registers fn to run every time the session is locked.
func (s *Session) OnLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLock = append(s.onLock, fn)
}

// Seed returns a copy of the unlocked seed, or SeedLocked.
func (s *Session) Seed() (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seed == nil {
		return nil, poolerr.ErrSeedLocked
	}
	return new(big.Int).Set(s.seed), nil
}

// SeedHex returns the seed as it was supplied to Unlock, or SeedLocked.
func (s *Session) SeedHex() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seed == nil {
		return "", poolerr.ErrSeedLocked
	}
	return s.seedHex, nil
}

// Unlocked reports whether a seed is present.
func (s *Session) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seed != nil
}

// RequireUnlocked returns SeedLocked when no seed is present.
func (s *Session) RequireUnlocked() error {
	if !s.Unlocked() {
		return poolerr.ErrSeedLocked
	}
	return nil
}
