package wallet

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/session"
	"privacypool/internal/storage"
)

func newWallet(t *testing.T) (*Wallet, *session.Session) {
	t.Helper()
	sess := session.New()
	store := operation.NewStore(storage.NewMemory(), zerolog.Nop())
	return New(sess, store, commitment.NewEngine(nil), zerolog.Nop()), sess
}

func TestGenerateRequiresSeed(t *testing.T) {
	w, sess := newWallet(t)

	_, err := w.Generate(nil)
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)
	_, err = w.Confirmed()
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)
	_, err = w.Pending()
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)
	_, _, err = w.Snapshot()
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)

	require.NoError(t, sess.Unlock("1"))
	op, err := w.Generate(operation.Metadata{"amount": "10"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), op.Index)

	seed, _ := commitment.ParseSeed("1")
	want := commitment.NewEngine(nil).Derive(seed, 0)
	assert.Equal(t, want.Hash.String(), op.Hash)

	pending, err := w.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestImport(t *testing.T) {
	w, sess := newWallet(t)

	_, err := w.Import(ImportRequest{Secret: "1", Nullifier: "2"})
	assert.ErrorIs(t, err, poolerr.ErrSeedLocked)

	require.NoError(t, sess.Unlock("1"))

	op, err := w.Import(ImportRequest{Secret: "1", Nullifier: "2"})
	require.NoError(t, err)
	assert.Equal(t, "7853200120776062878684798364095072458815029376092732009249414926327459813530", op.Hash)

	_, err = w.Import(ImportRequest{Secret: "1", Nullifier: "2", Hash: "5"})
	assert.ErrorIs(t, err, poolerr.ErrInvalidCommitment)

	_, err = w.Import(ImportRequest{Secret: "x", Nullifier: "2"})
	assert.ErrorIs(t, err, poolerr.ErrInvalidCommitment)

	// A derived operation after an import takes the next index.
	next, err := w.Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Index)
}

func TestTransitionsDoNotNeedSeed(t *testing.T) {
	w, sess := newWallet(t)
	require.NoError(t, sess.Unlock("abc"))
	op, err := w.Generate(nil)
	require.NoError(t, err)
	sess.Lock()

	_, err = w.Confirm(op.ID)
	require.NoError(t, err)
	_, err = w.Nullify(op.ID)
	require.NoError(t, err)
	_, err = w.Abort(op.ID)
	assert.ErrorIs(t, err, poolerr.ErrNotFound)
}
