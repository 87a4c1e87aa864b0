// hasher.go - Field hash used for every commitment in the pool.

package commitment

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hasher is a two-input hash over the BN254 scalar field.
type Hasher interface {
	Hash(a, b *big.Int) *big.Int
}

// Poseidon is the circomlib-compatible Poseidon hash with two inputs.
type Poseidon struct{}

// Hash returns Poseidon(a mod p, b mod p).
// Inputs are reduced first, so the field check in the underlying library never fails.
func (Poseidon) Hash(a, b *big.Int) *big.Int {
	out, err := poseidon.Hash([]*big.Int{Reduce(a), Reduce(b)})
	if err != nil {
		panic(fmt.Sprintf("poseidon: reduced inputs rejected: %v", err))
	}
	return out
}

// Modulus returns the BN254 scalar field prime.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Reduce returns x mod p as a new value in [0, p).
func Reduce(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, fr.Modulus())
}
