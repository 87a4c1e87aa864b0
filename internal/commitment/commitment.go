// commitment.go - Deterministic derivation and import of commitment triples.

package commitment

import (
	"math/big"

	"privacypool/internal/poolerr"
)

// Triple is the secret material and commitment of one operation.
type Triple struct {
	Secret    *big.Int
	Nullifier *big.Int
	Hash      *big.Int
}

// Strings returns the decimal encodings used for storage.
func (t Triple) Strings() (secret, nullifier, hash string) {
	return t.Secret.String(), t.Nullifier.String(), t.Hash.String()
}

// Engine derives triples with a fixed Hasher.
type Engine struct {
	h Hasher
}

// NewEngine returns an Engine using h. A nil h selects Poseidon.
func NewEngine(h Hasher) *Engine {
	if h == nil {
		h = Poseidon{}
	}
	return &Engine{h: h}
}

// Hasher exposes the engine's field hash.
func (e *Engine) Hasher() Hasher { return e.h }

// Derive computes the triple for the operation at index under seed.
func (e *Engine) Derive(seed *big.Int, index uint64) Triple {
	baseSecret := e.h.Hash(seed, seed)
	secret := e.h.Hash(baseSecret, new(big.Int).SetUint64(index))
	nullifier := e.h.Hash(secret, secret)
	return Triple{
		Secret:    secret,
		Nullifier: nullifier,
		Hash:      e.h.Hash(secret, nullifier),
	}
}

// Import rebuilds a triple from an externally supplied secret and nullifier.
// Both accept decimal or 0x hex; anything else fails with InvalidCommitment.
func (e *Engine) Import(secret, nullifier string) (Triple, error) {
	s, err := ParseInt(secret)
	if err != nil {
		return Triple{}, poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid secret")
	}
	n, err := ParseInt(nullifier)
	if err != nil {
		return Triple{}, poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid nullifier")
	}
	return Triple{Secret: s, Nullifier: n, Hash: e.h.Hash(s, n)}, nil
}

// Verify checks that hash equals H(secret, nullifier) for stored decimal values.
func (e *Engine) Verify(secret, nullifier, hash string) error {
	t, err := e.Import(secret, nullifier)
	if err != nil {
		return err
	}
	h, err := ParseInt(hash)
	if err != nil {
		return poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid hash")
	}
	if t.Hash.Cmp(h) != 0 {
		return poolerr.New(poolerr.InvalidCommitment, "hash does not match secret and nullifier")
	}
	return nil
}
