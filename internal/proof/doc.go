// Package proof orchestrates zero-knowledge proof requests.
//
// A caller asks for a proof with a circuit reference and a witness skeleton.
// The Controller stages the ask together with a snapshot of the operation
// pools and holds the caller's response open. Once the user approves, the
// staged request is taken atomically, forwarded to a Prover over the proof
// channel, and the Prover's answer is delivered back to the caller exactly once.
//
// The Prover fills the witness from the snapshot, runs the proving Backend and
// encodes the proof as verifier calldata.
package proof
