// types.go - Proof request and response types.

package proof

import (
	"time"

	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/witness"
)

// Circuit locates the compiled program and its verifying key.
type Circuit struct {
	JSONURL string `json:"jsonUrl"`
	VKURL   string `json:"vkUrl"`
}

// Ask is what a caller submits to obtain a proof.
type Ask struct {
	Circuit Circuit          `json:"circuit"`
	Witness witness.Skeleton `json:"witnessInput"`
}

// Request is a staged ask bound to a snapshot of the pools. It is also the
// GENERATE_PROOF payload sent to the prover.
type Request struct {
	ID        string                `json:"id"`
	Circuit   Circuit               `json:"circuit"`
	Witness   witness.Skeleton      `json:"witnessInput"`
	Confirmed []operation.Operation `json:"confirmedOperations"`
	Pending   []operation.Operation `json:"pendingOperations"`
	StagedAt  time.Time             `json:"stagedAt"`
	ExpiresAt time.Time             `json:"expiresAt"`
}

// Result is the single outcome delivered to the caller of a request.
type Result struct {
	RequestID string
	Calldata  []string
	Err       error
}

// ResponsePayload is carried by PROOF_RESPONSE.
type ResponsePayload struct {
	Calldata []string `json:"calldata"`
}

// ErrorPayload is carried by PROOF_ERROR.
type ErrorPayload struct {
	Kind  poolerr.Kind `json:"kind"`
	Error string       `json:"error"`
}

// errorPayload classifies err for the wire.
func errorPayload(err error) ErrorPayload {
	kind := poolerr.KindOf(err)
	if kind == poolerr.Internal {
		kind = poolerr.ProofFailed
	}
	return ErrorPayload{Kind: kind, Error: err.Error()}
}

// Err rebuilds the classified error on the receiving side.
func (p ErrorPayload) Err() error {
	kind := p.Kind
	if kind == "" {
		kind = poolerr.ProofFailed
	}
	return &poolerr.Error{Kind: kind, Message: p.Error}
}
