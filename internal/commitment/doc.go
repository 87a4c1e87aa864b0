// Package commitment derives and verifies the secret/nullifier/commitment triples
// that identify pool operations.
//
// Overview:
//   - Every value is an element of the BN254 scalar field (the field the pool
//     circuits are defined over); inputs are reduced modulo its prime before hashing
//   - H is the two-input Poseidon hash with circomlib parameters
//   - A triple for a seed and an index is derived as
//     baseSecret = H(seed, seed), secret = H(baseSecret, index),
//     nullifier = H(secret, secret), hash = H(secret, nullifier)
//   - Imported operations recompute hash = H(secret, nullifier) from the supplied pair
//
// Encoding:
//   - Triples are stored as decimal strings and handed to circuits as 0x-prefixed
//     lowercase hex without padding
//
// The derivation is part of the pool's on-chain contract: commitments issued in the
// past can only be spent if the same seed and index reproduce the same triple.
package commitment
