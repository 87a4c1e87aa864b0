package proof

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/witness"
)

type fakeBackend struct {
	mu       sync.Mutex
	reject   bool
	proveErr error
	inputs   []witness.Input
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Execute(_ context.Context, _ *Program, in witness.Input) (Witness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return Witness("w"), nil
}

func (f *fakeBackend) GenerateProof(_ context.Context, _ *Program, _ Witness, opts ProofOptions) (*ProofData, error) {
	if opts.Hashing != HashingKeccak {
		return nil, errors.New("expected keccak transcript")
	}
	if f.proveErr != nil {
		return nil, f.proveErr
	}
	return &ProofData{Proof: []byte{0xaa, 0xbb}, PublicInputs: []string{"0x1", "0x2"}}, nil
}

func (f *fakeBackend) VerifyProof(context.Context, *Program, *ProofData, ProofOptions) (bool, error) {
	return !f.reject, nil
}

func (f *fakeBackend) lastInput() witness.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}

// fakeEncoder emits [len(reconstructed), pub0, pub1].
type fakeEncoder struct{}

func (fakeEncoder) ParseVerifyingKey(raw []byte) (VerifyingKey, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty vk")
	}
	return string(raw), nil
}

func (fakeEncoder) ReconstructProof(pub, proof []byte) []byte {
	return append(append([]byte{}, pub...), proof...)
}

func (fakeEncoder) ParseProof(raw []byte) (ParsedProof, error) { return raw, nil }

func (fakeEncoder) EncodeCalldata(p ParsedProof, _ VerifyingKey, _ int) ([]*big.Int, error) {
	raw := p.([]byte)
	return []*big.Int{
		big.NewInt(int64(len(raw))),
		new(big.Int).SetBytes(raw[:32]),
		new(big.Int).SetBytes(raw[32:64]),
	}, nil
}

// Calldata produced by fakeBackend and fakeEncoder.
var fakeCalldata = []string{"0x3", "0x42", "0x1", "0x2"}

type fakeArtifacts struct {
	prog Program
	vk   []byte
	err  error
}

func (f fakeArtifacts) Fetch(context.Context, Circuit) (*Program, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	p := f.prog
	return &p, f.vk, nil
}

var testCircuit = Circuit{JSONURL: "https://circuits.test/withdraw.json", VKURL: "https://circuits.test/withdraw.vk"}

func derivedOp(t *testing.T, id string, index uint64) operation.Operation {
	t.Helper()
	tr := commitment.NewEngine(nil).Derive(big.NewInt(1), index)
	s, n, h := tr.Strings()
	return operation.Operation{ID: id, Index: index, Secret: s, Nullifier: n, Hash: h}
}

type fakeSnapshot struct {
	confirmed []operation.Operation
	pending   []operation.Operation
	err       error
}

func (f fakeSnapshot) Snapshot() ([]operation.Operation, []operation.Operation, error) {
	return f.confirmed, f.pending, f.err
}
