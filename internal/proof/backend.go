// backend.go - Proving backend and calldata encoder interfaces.

package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"privacypool/internal/commitment"
	"privacypool/internal/witness"
)

// Program is the compiled circuit artifact fetched from Circuit.JSONURL.
type Program struct {
	Backend  string          `json:"backend"`
	Circuit  string          `json:"circuit"`
	Bytecode string          `json:"bytecode,omitempty"`
	ABI      json.RawMessage `json:"abi,omitempty"`
}

// Witness is a backend specific solved witness.
type Witness []byte

// ProofOptions selects the transcript hash used by prover and verifier.
type ProofOptions struct {
	Hashing string
}

// HashingKeccak selects a keccak transcript so the proof verifies on chain.
const HashingKeccak = "keccak"

// ProofData is a raw proof and its public inputs as field hex strings.
type ProofData struct {
	Proof        []byte
	PublicInputs []string
}

// Backend executes a program and produces and verifies proofs.
type Backend interface {
	Name() string
	Execute(ctx context.Context, prog *Program, in witness.Input) (Witness, error)
	GenerateProof(ctx context.Context, prog *Program, w Witness, opts ProofOptions) (*ProofData, error)
	VerifyProof(ctx context.Context, prog *Program, p *ProofData, opts ProofOptions) (bool, error)
}

// VerifyingKey and ParsedProof are opaque to the orchestration layer.
type (
	VerifyingKey any
	ParsedProof  any
)

// CalldataEncoder turns a backend proof into the verifier contract's calldata.
type CalldataEncoder interface {
	ParseVerifyingKey(raw []byte) (VerifyingKey, error)
	ReconstructProof(publicInputs, proof []byte) []byte
	ParseProof(raw []byte) (ParsedProof, error)
	EncodeCalldata(p ParsedProof, vk VerifyingKey, variant int) ([]*big.Int, error)
}

const fieldBytes = 32

// FlattenFields packs field elements as consecutive 32-byte big-endian words.
func FlattenFields(fields []string) ([]byte, error) {
	out := make([]byte, 0, len(fields)*fieldBytes)
	for i, f := range fields {
		x, err := commitment.ParseInt(f)
		if err != nil {
			return nil, fmt.Errorf("public input %d: %w", i, err)
		}
		if x.BitLen() > 8*fieldBytes {
			return nil, fmt.Errorf("public input %d exceeds %d bytes", i, fieldBytes)
		}
		out = append(out, x.FillBytes(make([]byte, fieldBytes))...)
	}
	return out, nil
}

// FormatCalldata renders calldata as a length-prefixed list of 0x hex words.
func FormatCalldata(words []*big.Int) []string {
	out := make([]string, 0, len(words)+1)
	out = append(out, commitment.Hex(big.NewInt(int64(len(words)))))
	for _, w := range words {
		out = append(out, commitment.Hex(w))
	}
	return out
}
