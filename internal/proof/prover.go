// prover.go - Prover side of proof orchestration.

package proof

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"privacypool/internal/metrics"
	"privacypool/internal/poolerr"
	"privacypool/internal/witness"
	"privacypool/p2p"
)

// CalldataVariant selects the verifier flavour passed to EncodeCalldata.
const CalldataVariant = 0

// Prover answers GENERATE_PROOF messages.
type Prover struct {
	id        string
	backend   Backend
	encoder   CalldataEncoder
	artifacts ArtifactSource
	assembler *witness.Assembler
	runtime   *Runtime
	log       zerolog.Logger
}

// NewProver builds a Prover. A nil runtime needs no initialisation and a nil
// assembler hashes with Poseidon.
func NewProver(id string, backend Backend, encoder CalldataEncoder, artifacts ArtifactSource, runtime *Runtime, assembler *witness.Assembler, log zerolog.Logger) *Prover {
	if runtime == nil {
		runtime = NewRuntime(nil)
	}
	if assembler == nil {
		assembler = witness.NewAssembler(nil)
	}
	return &Prover{
		id:        id,
		backend:   backend,
		encoder:   encoder,
		artifacts: artifacts,
		assembler: assembler,
		runtime:   runtime,
		log:       log.With().Str("component", "prover").Logger(),
	}
}

// Register installs the prover's handler on node.
func (p *Prover) Register(node *p2p.Node) {
	node.RegisterHandler(p2p.TypeGenerateProof, p.handleGenerate)
}

func (p *Prover) handleGenerate(ctx context.Context, link *p2p.Link, msg p2p.Message) {
	log := p.log.With().Str("request_id", msg.RequestID).Logger()

	var req Request
	if err := msg.Decode(&req); err != nil {
		p.reply(ctx, link, msg.RequestID, nil, poolerr.Wrap(poolerr.InvalidRequest, err, "malformed proof request"))
		return
	}
	if req.ID == "" {
		req.ID = msg.RequestID
	}

	log.Info().Msg("generating proof")
	calldata, err := p.Execute(ctx, &req)
	if err != nil {
		log.Warn().Err(err).Msg("proof generation failed")
	} else {
		log.Info().Int("words", len(calldata)).Msg("proof generated")
	}
	p.reply(ctx, link, msg.RequestID, calldata, err)
}

func (p *Prover) reply(ctx context.Context, link *p2p.Link, requestID string, calldata []string, err error) {
	var sendErr error
	if err != nil {
		sendErr = link.SendPayload(ctx, p2p.TypeProofError, requestID, p.id, errorPayload(err))
	} else {
		sendErr = link.SendPayload(ctx, p2p.TypeProofResponse, requestID, p.id, ResponsePayload{Calldata: calldata})
	}
	if sendErr != nil {
		p.log.Error().Err(sendErr).Str("request_id", requestID).Msg("failed to deliver proof result")
	}
}

// Execute fills the witness from the request snapshot, proves it and returns
// the formatted calldata. Failures carry their own kind when one was assigned
// (DepositNotFound, RefundNotFound) and ProofFailed otherwise.
func (p *Prover) Execute(ctx context.Context, req *Request) ([]string, error) {
	in, err := p.assembler.Assemble(req.Witness, req.Confirmed, req.Pending)
	if err != nil {
		return nil, err
	}

	if err := stage("init", func() error { return p.runtime.Ensure(ctx) }); err != nil {
		return nil, proofFailure(err, "prover initialisation failed")
	}

	var (
		prog  *Program
		rawVK []byte
	)
	if err := stage("fetch", func() (err error) {
		prog, rawVK, err = p.artifacts.Fetch(ctx, req.Circuit)
		return err
	}); err != nil {
		return nil, proofFailure(err, "failed to fetch circuit artifacts")
	}
	if prog.Backend != "" && prog.Backend != p.backend.Name() {
		return nil, poolerr.ProofFailure("unsupported proving backend " + prog.Backend)
	}

	var w Witness
	if err := stage("execute", func() (err error) {
		w, err = p.backend.Execute(ctx, prog, in)
		return err
	}); err != nil {
		return nil, proofFailure(err, "witness execution failed")
	}

	opts := ProofOptions{Hashing: HashingKeccak}
	var pd *ProofData
	if err := stage("prove", func() (err error) {
		pd, err = p.backend.GenerateProof(ctx, prog, w, opts)
		return err
	}); err != nil {
		return nil, proofFailure(err, "proof generation failed")
	}

	var ok bool
	if err := stage("verify", func() (err error) {
		ok, err = p.backend.VerifyProof(ctx, prog, pd, opts)
		return err
	}); err != nil {
		return nil, proofFailure(err, "proof verification failed")
	}
	if !ok {
		return nil, poolerr.ProofFailure("proof verification failed")
	}

	var calldata []string
	if err := stage("encode", func() error {
		var err error
		calldata, err = p.encode(pd, rawVK)
		return err
	}); err != nil {
		return nil, proofFailure(err, "calldata encoding failed")
	}
	return calldata, nil
}

func (p *Prover) encode(pd *ProofData, rawVK []byte) ([]string, error) {
	vk, err := p.encoder.ParseVerifyingKey(rawVK)
	if err != nil {
		return nil, err
	}
	pub, err := FlattenFields(pd.PublicInputs)
	if err != nil {
		return nil, err
	}
	parsed, err := p.encoder.ParseProof(p.encoder.ReconstructProof(pub, pd.Proof))
	if err != nil {
		return nil, err
	}
	words, err := p.encoder.EncodeCalldata(parsed, vk, CalldataVariant)
	if err != nil {
		return nil, err
	}
	return FormatCalldata(words), nil
}

func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordProofStage(name, time.Since(start))
	return err
}

// proofFailure keeps classified errors and files everything else as ProofFailed.
func proofFailure(err error, reason string) error {
	var pe *poolerr.Error
	if errors.As(err, &pe) {
		return err
	}
	return poolerr.Wrap(poolerr.ProofFailed, err, reason)
}
