// encoder.go - EVM calldata for Groth16 BN254 proofs.
//
// Calldata layout: the eight proof words in the order expected by the
// Solidity verifier (Ar, Bs with the imaginary part first, Krs) followed by
// the public inputs.

package gnarkprover

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"

	"privacypool/internal/proof"
)

// Calldata variants.
const (
	VariantWithPublicInputs = 0
	VariantProofOnly        = 1
)

// Encoder implements proof.CalldataEncoder for Backend proofs.
type Encoder struct{}

// ParsedProof is a proof bundled with its public inputs.
type ParsedProof struct {
	Proof  groth16bn254.Proof
	Public []*big.Int
}

func (Encoder) ParseVerifyingKey(raw []byte) (proof.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	return vk, nil
}

// ReconstructProof prefixes proof with its public inputs: a big-endian uint32
// count followed by the 32-byte words.
func (Encoder) ReconstructProof(publicInputs, p []byte) []byte {
	out := make([]byte, 4, 4+len(publicInputs)+len(p))
	binary.BigEndian.PutUint32(out, uint32(len(publicInputs)/32))
	out = append(out, publicInputs...)
	return append(out, p...)
}

func (Encoder) ParseProof(raw []byte) (proof.ParsedProof, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("proof too short")
	}
	n := int(binary.BigEndian.Uint32(raw))
	raw = raw[4:]
	if len(raw) < n*32 {
		return nil, fmt.Errorf("proof truncated: %d public inputs declared", n)
	}
	pp := &ParsedProof{Public: make([]*big.Int, n)}
	for i := 0; i < n; i++ {
		pp.Public[i] = new(big.Int).SetBytes(raw[i*32 : (i+1)*32])
	}
	r := bytes.NewReader(raw[n*32:])
	if _, err := pp.Proof.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("decode proof: %d trailing bytes", r.Len())
	}
	return pp, nil
}

func (Encoder) EncodeCalldata(p proof.ParsedProof, vk proof.VerifyingKey, variant int) ([]*big.Int, error) {
	pp, ok := p.(*ParsedProof)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type %T", p)
	}
	key, ok := vk.(groth16.VerifyingKey)
	if !ok {
		return nil, fmt.Errorf("unexpected verifying key type %T", vk)
	}
	if len(pp.Proof.Commitments) > 0 {
		return nil, fmt.Errorf("proofs with commitments are not supported")
	}
	if got, want := len(pp.Public), key.NbPublicWitness(); got != want {
		return nil, fmt.Errorf("got %d public inputs, verifying key expects %d", got, want)
	}

	pr := &pp.Proof
	words := []*big.Int{
		pr.Ar.X.BigInt(new(big.Int)),
		pr.Ar.Y.BigInt(new(big.Int)),
		pr.Bs.X.A1.BigInt(new(big.Int)),
		pr.Bs.X.A0.BigInt(new(big.Int)),
		pr.Bs.Y.A1.BigInt(new(big.Int)),
		pr.Bs.Y.A0.BigInt(new(big.Int)),
		pr.Krs.X.BigInt(new(big.Int)),
		pr.Krs.Y.BigInt(new(big.Int)),
	}
	switch variant {
	case VariantWithPublicInputs:
		return append(words, pp.Public...), nil
	case VariantProofOnly:
		return words, nil
	default:
		return nil, fmt.Errorf("unknown calldata variant %d", variant)
	}
}
