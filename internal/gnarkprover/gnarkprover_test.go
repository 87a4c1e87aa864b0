package gnarkprover

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/proof"
	"privacypool/internal/witness"
)

var program = &proof.Program{Backend: Name, Circuit: CircuitName}

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, b.Setup(context.Background()))
	return b
}

func derivedInput(t *testing.T) witness.Input {
	t.Helper()
	tr := commitment.NewEngine(nil).Derive(big.NewInt(1), 0)
	return witness.Input{
		"secret_1":    commitment.Hex(tr.Secret),
		"nullifier_1": commitment.Hex(tr.Nullifier),
	}
}

func TestAssignSatisfiesCircuit(t *testing.T) {
	ccs, err := Compile()
	require.NoError(t, err)

	a, err := Assign(big.NewInt(7), big.NewInt(11))
	require.NoError(t, err)
	w, err := frontend.NewWitness(a, ecc.BN254.ScalarField())
	require.NoError(t, err)
	assert.NoError(t, ccs.IsSolved(w))

	a.Commitment = MiMC(big.NewInt(8), big.NewInt(11))
	w, err = frontend.NewWitness(a, ecc.BN254.ScalarField())
	require.NoError(t, err)
	assert.Error(t, ccs.IsSolved(w))
}

func TestBackendRequiresSetup(t *testing.T) {
	b := NewBackend(t.TempDir(), zerolog.Nop())
	_, err := b.Execute(context.Background(), program, derivedInput(t))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestBackendProveVerify(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	opts := proof.ProofOptions{Hashing: proof.HashingKeccak}

	w, err := b.Execute(ctx, program, derivedInput(t))
	require.NoError(t, err)
	pd, err := b.GenerateProof(ctx, program, w, opts)
	require.NoError(t, err)
	require.Len(t, pd.PublicInputs, 2)

	ok, err := b.VerifyProof(ctx, program, pd, opts)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := *pd
	tampered.PublicInputs = []string{pd.PublicInputs[0], "0x1"}
	ok, err = b.VerifyProof(ctx, program, &tampered, opts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackendRejectsOtherCircuit(t *testing.T) {
	b := setupBackend(t)
	_, err := b.Execute(context.Background(), &proof.Program{Backend: Name, Circuit: "withdraw"}, derivedInput(t))
	assert.Error(t, err)
}

func TestBackendMissingInput(t *testing.T) {
	b := setupBackend(t)
	_, err := b.Execute(context.Background(), program, witness.Input{"secret_1": "0x1"})
	assert.ErrorContains(t, err, "nullifier_1")
}

func TestSetupReloadsKeys(t *testing.T) {
	dir := t.TempDir()
	first := NewBackend(dir, zerolog.Nop())
	require.NoError(t, first.Setup(context.Background()))
	before, err := os.ReadFile(filepath.Join(dir, CircuitName+".vk"))
	require.NoError(t, err)

	second := NewBackend(dir, zerolog.Nop())
	require.NoError(t, second.Setup(context.Background()))
	after, err := os.ReadFile(filepath.Join(dir, CircuitName+".vk"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCalldataEncoding(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	opts := proof.ProofOptions{Hashing: proof.HashingKeccak}

	arts, err := b.ExportArtifacts(t.TempDir())
	require.NoError(t, err)
	rawVK, err := os.ReadFile(arts.VKPath)
	require.NoError(t, err)

	w, err := b.Execute(ctx, program, derivedInput(t))
	require.NoError(t, err)
	pd, err := b.GenerateProof(ctx, program, w, opts)
	require.NoError(t, err)

	var enc Encoder
	vk, err := enc.ParseVerifyingKey(rawVK)
	require.NoError(t, err)
	pub, err := proof.FlattenFields(pd.PublicInputs)
	require.NoError(t, err)
	parsed, err := enc.ParseProof(enc.ReconstructProof(pub, pd.Proof))
	require.NoError(t, err)

	words, err := enc.EncodeCalldata(parsed, vk, VariantWithPublicInputs)
	require.NoError(t, err)
	require.Len(t, words, 10)
	assert.Equal(t, pd.PublicInputs[0], commitment.Hex(words[8]))
	assert.Equal(t, pd.PublicInputs[1], commitment.Hex(words[9]))

	words, err = enc.EncodeCalldata(parsed, vk, VariantProofOnly)
	require.NoError(t, err)
	assert.Len(t, words, 8)

	_, err = enc.ParseProof([]byte{0, 0, 0, 9})
	assert.Error(t, err)
}

func TestProverWithFileArtifacts(t *testing.T) {
	b := NewBackend(t.TempDir(), zerolog.Nop())
	rt := proof.NewRuntime(b.Setup)
	require.NoError(t, rt.Ensure(context.Background()))

	artDir := t.TempDir()
	arts, err := b.ExportArtifacts(artDir)
	require.NoError(t, err)

	tr := commitment.NewEngine(nil).Derive(big.NewInt(1), 0)
	s, n, h := tr.Strings()
	p := proof.NewProver("prover", b, Encoder{}, proof.NewHTTPArtifacts(0, artDir), rt, nil, zerolog.Nop())

	calldata, err := p.Execute(context.Background(), &proof.Request{
		Circuit:   proof.Circuit{JSONURL: "file://" + arts.ProgramPath, VKURL: "file://" + arts.VKPath},
		Witness:   witness.Skeleton{witness.DepositsField: []any{0}},
		Confirmed: []operation.Operation{{ID: "a", Index: 0, Secret: s, Nullifier: n, Hash: h}},
	})
	require.NoError(t, err)
	require.Len(t, calldata, 11)
	assert.Equal(t, "0xa", calldata[0])

	wantNH := MiMC(tr.Nullifier)
	assert.Equal(t, commitment.Hex(wantNH), calldata[9])
}
