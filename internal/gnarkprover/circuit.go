// circuit.go - Ownership circuit proving knowledge of a commitment opening.
//
// Public:  NullifierHash = MiMC(nullifier), Commitment = MiMC(secret, nullifier)
// Private: Secret, Nullifier

package gnarkprover

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CircuitName identifies the ownership circuit in program artifacts.
const CircuitName = "ownership"

type OwnershipCircuit struct {
	// Public
	NullifierHash frontend.Variable `gnark:",public"`
	Commitment    frontend.Variable `gnark:",public"`

	// Private
	Secret    frontend.Variable
	Nullifier frontend.Variable
}

func (c *OwnershipCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(c.Nullifier)
	api.AssertIsEqual(c.NullifierHash, h.Sum())

	h.Reset()
	h.Write(c.Secret, c.Nullifier)
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}

// MiMC hashes field elements with the native hasher matching the circuit's.
func MiMC(inputs ...*big.Int) *big.Int {
	h := mimcNative.NewMiMC()
	for _, x := range inputs {
		var e fr.Element
		e.SetBigInt(x)
		b := e.Bytes()
		h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Assign builds a full assignment for secret and nullifier.
func Assign(secret, nullifier *big.Int) (*OwnershipCircuit, error) {
	if secret == nil || nullifier == nil {
		return nil, fmt.Errorf("secret and nullifier are required")
	}
	s := new(big.Int).Mod(secret, fr.Modulus())
	n := new(big.Int).Mod(nullifier, fr.Modulus())
	return &OwnershipCircuit{
		NullifierHash: MiMC(n),
		Commitment:    MiMC(s, n),
		Secret:        s,
		Nullifier:     n,
	}, nil
}
