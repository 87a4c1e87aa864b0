package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacypool/internal/poolerr"
)

func TestSession(t *testing.T) {
	s := New()

	_, err := s.Seed()
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)
	assert.ErrorIs(t, s.RequireUnlocked(), poolerr.ErrSeedLocked)

	assert.ErrorIs(t, s.Unlock("not hex"), poolerr.ErrInvalidRequest)
	assert.False(t, s.Unlocked())

	require.NoError(t, s.Unlock("0a"))
	seed, err := s.Seed()
	require.NoError(t, err)
	assert.Equal(t, int64(10), seed.Int64())

	// Callers get a copy.
	seed.SetInt64(99)
	again, _ := s.Seed()
	assert.Equal(t, int64(10), again.Int64())

	hex, err := s.SeedHex()
	require.NoError(t, err)
	assert.Equal(t, "0a", hex)

	locked := 0
	s.OnLock(func() { locked++ })
	s.Lock()
	assert.Equal(t, 1, locked)
	assert.False(t, s.Unlocked())
	_, err = s.SeedHex()
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)
}
