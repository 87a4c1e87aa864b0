// backend.go - Groth16 proving backend for the ownership circuit.

package gnarkprover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	gnarkwitness "github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"privacypool/internal/commitment"
	"privacypool/internal/proof"
	"privacypool/internal/witness"
)

// Name identifies this backend in program artifacts.
const Name = "gnark-groth16"

// ErrNotReady is returned when the backend is used before Setup.
var ErrNotReady = errors.New("gnark backend not initialised")

// Backend implements proof.Backend with Groth16 over BN254.
type Backend struct {
	keyDir string
	log    zerolog.Logger

	mu  sync.RWMutex
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewBackend returns a backend keeping its keys under keyDir.
func NewBackend(keyDir string, log zerolog.Logger) *Backend {
	return &Backend{
		keyDir: keyDir,
		log:    log.With().Str("component", "gnark-backend").Logger(),
	}
}

func (b *Backend) Name() string { return Name }

// Setup compiles the circuit and loads or generates its keys.
func (b *Backend) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.keyDir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	ccs, err := Compile()
	if err != nil {
		return fmt.Errorf("compile %s circuit: %w", CircuitName, err)
	}
	pk, vk, err := SetupOrLoadKeys(ccs, b.keyPath("pk"), b.keyPath("vk"))
	if err != nil {
		return fmt.Errorf("groth16 keys: %w", err)
	}

	b.mu.Lock()
	b.ccs, b.pk, b.vk = ccs, pk, vk
	b.mu.Unlock()

	b.log.Info().Int("constraints", ccs.GetNbConstraints()).Str("key_dir", b.keyDir).Msg("backend ready")
	return nil
}

func (b *Backend) keyPath(ext string) string {
	return filepath.Join(b.keyDir, CircuitName+"."+ext)
}

func (b *Backend) keys() (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ccs == nil {
		return nil, nil, nil, ErrNotReady
	}
	return b.ccs, b.pk, b.vk, nil
}

func checkProgram(prog *proof.Program) error {
	if prog == nil {
		return fmt.Errorf("missing program")
	}
	if prog.Circuit != CircuitName {
		return fmt.Errorf("unsupported circuit %q", prog.Circuit)
	}
	return nil
}

// Execute solves the circuit for the first deposit of in and returns the
// serialized full witness.
func (b *Backend) Execute(_ context.Context, prog *proof.Program, in witness.Input) (proof.Witness, error) {
	if err := checkProgram(prog); err != nil {
		return nil, err
	}
	ccs, _, _, err := b.keys()
	if err != nil {
		return nil, err
	}

	secret, err := inputInt(in, "secret_1")
	if err != nil {
		return nil, err
	}
	nullifier, err := inputInt(in, "nullifier_1")
	if err != nil {
		return nil, err
	}
	assignment, err := Assign(secret, nullifier)
	if err != nil {
		return nil, err
	}

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	if err := ccs.IsSolved(w); err != nil {
		return nil, fmt.Errorf("witness does not satisfy %s: %w", CircuitName, err)
	}
	return w.MarshalBinary()
}

func inputInt(in witness.Input, key string) (*big.Int, error) {
	raw, ok := in[key]
	if !ok {
		return nil, fmt.Errorf("missing witness input %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	v, err := commitment.ParseInt(s)
	if err != nil {
		return nil, fmt.Errorf("witness input %s: %w", key, err)
	}
	return v, nil
}

func transcript(opts proof.ProofOptions) (hash.Hash, error) {
	switch opts.Hashing {
	case "":
		return nil, nil
	case proof.HashingKeccak:
		return sha3.NewLegacyKeccak256(), nil
	default:
		return nil, fmt.Errorf("unsupported hashing %q", opts.Hashing)
	}
}

// GenerateProof proves the serialized witness w.
func (b *Backend) GenerateProof(_ context.Context, prog *proof.Program, w proof.Witness, opts proof.ProofOptions) (*proof.ProofData, error) {
	if err := checkProgram(prog); err != nil {
		return nil, err
	}
	ccs, pk, _, err := b.keys()
	if err != nil {
		return nil, err
	}

	full, err := gnarkwitness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	if err := full.UnmarshalBinary(w); err != nil {
		return nil, fmt.Errorf("decode witness: %w", err)
	}

	h, err := transcript(opts)
	if err != nil {
		return nil, err
	}
	var proverOpts []backend.ProverOption
	if h != nil {
		proverOpts = append(proverOpts, backend.WithProverHashToFieldFunction(h))
	}

	p, err := groth16.Prove(ccs, pk, full, proverOpts...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}

	pub, err := full.Public()
	if err != nil {
		return nil, err
	}
	vec, ok := pub.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector %T", pub.Vector())
	}
	inputs := make([]string, len(vec))
	for i := range vec {
		inputs[i] = hexutil.EncodeBig(vec[i].BigInt(new(big.Int)))
	}
	return &proof.ProofData{Proof: buf.Bytes(), PublicInputs: inputs}, nil
}

// VerifyProof checks p against the backend's verifying key.
func (b *Backend) VerifyProof(_ context.Context, prog *proof.Program, p *proof.ProofData, opts proof.ProofOptions) (bool, error) {
	if err := checkProgram(prog); err != nil {
		return false, err
	}
	_, _, vk, err := b.keys()
	if err != nil {
		return false, err
	}
	if len(p.PublicInputs) != 2 {
		return false, fmt.Errorf("expected 2 public inputs, got %d", len(p.PublicInputs))
	}
	nh, err := commitment.ParseInt(p.PublicInputs[0])
	if err != nil {
		return false, err
	}
	cm, err := commitment.ParseInt(p.PublicInputs[1])
	if err != nil {
		return false, err
	}

	pub, err := frontend.NewWitness(&OwnershipCircuit{NullifierHash: nh, Commitment: cm}, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}
	gp := groth16.NewProof(ecc.BN254)
	if _, err := gp.ReadFrom(bytes.NewReader(p.Proof)); err != nil {
		return false, fmt.Errorf("decode proof: %w", err)
	}

	h, err := transcript(opts)
	if err != nil {
		return false, err
	}
	var verifierOpts []backend.VerifierOption
	if h != nil {
		verifierOpts = append(verifierOpts, backend.WithVerifierHashToFieldFunction(h))
	}
	if err := groth16.Verify(gp, vk, pub, verifierOpts...); err != nil {
		b.log.Debug().Err(err).Msg("proof rejected")
		return false, nil
	}
	return true, nil
}

// Artifacts are the files a controller references in a proof ask.
type Artifacts struct {
	ProgramPath string
	VKPath      string
}

type programABI struct {
	Public  []string `json:"public"`
	Private []string `json:"private"`
}

// ExportArtifacts writes the program descriptor and the verifying key to dir.
func (b *Backend) ExportArtifacts(dir string) (Artifacts, error) {
	ccs, _, vk, err := b.keys()
	if err != nil {
		return Artifacts{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, err
	}

	abi, err := json.Marshal(programABI{
		Public:  []string{"nullifier_hash", "commitment"},
		Private: []string{"secret_1", "nullifier_1"},
	})
	if err != nil {
		return Artifacts{}, err
	}
	prog := proof.Program{
		Backend:  Name,
		Circuit:  CircuitName,
		Bytecode: fmt.Sprintf("r1cs:%d", ccs.GetNbConstraints()),
		ABI:      abi,
	}
	raw, err := json.MarshalIndent(prog, "", "  ")
	if err != nil {
		return Artifacts{}, err
	}

	out := Artifacts{
		ProgramPath: filepath.Join(dir, CircuitName+".json"),
		VKPath:      filepath.Join(dir, CircuitName+".vk"),
	}
	if err := os.WriteFile(out.ProgramPath, raw, 0o644); err != nil {
		return Artifacts{}, err
	}
	if err := SaveVerifyingKey(out.VKPath, vk); err != nil {
		return Artifacts{}, err
	}
	return out, nil
}
