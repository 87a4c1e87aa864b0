package proof

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/witness"
)

func newTestProver(b *fakeBackend, arts ArtifactSource, rt *Runtime) *Prover {
	return NewProver("prover", b, fakeEncoder{}, arts, rt, nil, zerolog.Nop())
}

var okArtifacts = fakeArtifacts{prog: Program{Backend: "fake", Circuit: "withdraw"}, vk: []byte("vk")}

func TestProverExecute(t *testing.T) {
	b := &fakeBackend{}
	p := newTestProver(b, okArtifacts, nil)
	op := derivedOp(t, "a", 0)

	req := &Request{
		ID:      "r1",
		Circuit: testCircuit,
		Witness: witness.Skeleton{
			"root":                "0x99",
			witness.DepositsField: []any{0},
		},
		Confirmed: []operation.Operation{op},
	}
	calldata, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fakeCalldata, calldata)

	in := b.lastInput()
	wantSecret, _ := commitment.DecimalToHex(op.Secret)
	wantNullifier, _ := commitment.DecimalToHex(op.Nullifier)
	assert.Equal(t, wantSecret, in["secret_1"])
	assert.Equal(t, wantNullifier, in["nullifier_1"])
	assert.Equal(t, "0x99", in["root"])
	assert.NotContains(t, in, witness.DepositsField)
}

func TestProverExecuteFailures(t *testing.T) {
	skeleton := witness.Skeleton{witness.DepositsField: []any{3}}

	t.Run("missing deposit keeps its kind", func(t *testing.T) {
		p := newTestProver(&fakeBackend{}, okArtifacts, nil)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: skeleton})
		assert.ErrorIs(t, err, poolerr.ErrDepositNotFound)
	})

	t.Run("verification false", func(t *testing.T) {
		p := newTestProver(&fakeBackend{reject: true}, okArtifacts, nil)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: witness.Skeleton{}})
		require.ErrorIs(t, err, poolerr.ErrProofFailed)
		assert.Equal(t, "proof verification failed", err.Error())
	})

	t.Run("prove error", func(t *testing.T) {
		p := newTestProver(&fakeBackend{proveErr: errors.New("constraint #3 not satisfied")}, okArtifacts, nil)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: witness.Skeleton{}})
		require.ErrorIs(t, err, poolerr.ErrProofFailed)
		assert.Contains(t, err.Error(), "constraint #3 not satisfied")
	})

	t.Run("fetch error", func(t *testing.T) {
		p := newTestProver(&fakeBackend{}, fakeArtifacts{err: errors.New("404")}, nil)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: witness.Skeleton{}})
		assert.ErrorIs(t, err, poolerr.ErrProofFailed)
	})

	t.Run("backend mismatch", func(t *testing.T) {
		arts := fakeArtifacts{prog: Program{Backend: "other"}, vk: []byte("vk")}
		p := newTestProver(&fakeBackend{}, arts, nil)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: witness.Skeleton{}})
		assert.ErrorIs(t, err, poolerr.ErrProofFailed)
	})

	t.Run("runtime init", func(t *testing.T) {
		rt := NewRuntime(func(context.Context) error { return errors.New("no wasm") })
		p := newTestProver(&fakeBackend{}, okArtifacts, rt)
		_, err := p.Execute(context.Background(), &Request{Circuit: testCircuit, Witness: witness.Skeleton{}})
		assert.ErrorIs(t, err, poolerr.ErrProofFailed)
	})
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	p := errorPayload(poolerr.New(poolerr.RefundNotFound, "no pending operation with id x"))
	assert.Equal(t, poolerr.RefundNotFound, p.Kind)
	err := p.Err()
	assert.ErrorIs(t, err, poolerr.ErrRefundNotFound)
	assert.Equal(t, "no pending operation with id x", err.Error())

	p = errorPayload(errors.New("boom"))
	assert.Equal(t, poolerr.ProofFailed, p.Kind)
}
