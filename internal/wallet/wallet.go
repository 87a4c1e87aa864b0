// wallet.go - Seed gated operation service.
//
// The wallet ties the session seed, the commitment engine and the operation store
// together: it derives or imports commitments, drives pool transitions and gates
// every read of operation lists behind an unlocked session.

package wallet

import (
	"github.com/rs/zerolog"

	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/session"
)

// ImportRequest carries an externally generated operation.
// Hash is optional; when present it must equal H(secret, nullifier).
type ImportRequest struct {
	Secret    string             `json:"secret"`
	Nullifier string             `json:"nullifier"`
	Hash      string             `json:"hash,omitempty"`
	Metadata  operation.Metadata `json:"metadata,omitempty"`
}

// Wallet is the user's view over the operation pools.
type Wallet struct {
	session *session.Session
	store   *operation.Store
	engine  *commitment.Engine
	log     zerolog.Logger
}

// New builds a Wallet.
func New(sess *session.Session, store *operation.Store, engine *commitment.Engine, log zerolog.Logger) *Wallet {
	return &Wallet{
		session: sess,
		store:   store,
		engine:  engine,
		log:     log.With().Str("component", "wallet").Logger(),
	}
}

// Generate derives the next operation from the session seed and stores it as pending.
func (w *Wallet) Generate(metadata operation.Metadata) (operation.Operation, error) {
	seed, err := w.session.Seed()
	if err != nil {
		return operation.Operation{}, err
	}
	return w.store.Create("derived", func(index uint64) (commitment.Triple, error) {
		return w.engine.Derive(seed, index), nil
	}, metadata)
}

// Import stores an externally generated operation as pending after recomputing its hash.
func (w *Wallet) Import(req ImportRequest) (operation.Operation, error) {
	if err := w.session.RequireUnlocked(); err != nil {
		return operation.Operation{}, err
	}
	triple, err := w.engine.Import(req.Secret, req.Nullifier)
	if err != nil {
		return operation.Operation{}, err
	}
	if req.Hash != "" {
		claimed, err := commitment.ParseInt(req.Hash)
		if err != nil {
			return operation.Operation{}, poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid hash")
		}
		if claimed.Cmp(triple.Hash) != 0 {
			return operation.Operation{}, poolerr.New(poolerr.InvalidCommitment, "hash does not match secret and nullifier")
		}
	}
	return w.store.Create("imported", func(uint64) (commitment.Triple, error) {
		return triple, nil
	}, req.Metadata)
}

// Confirm marks a pending operation as accepted by the pool.
func (w *Wallet) Confirm(id string) (operation.Operation, error) {
	return w.store.Confirm(id)
}

// Abort drops a pending operation that never reached the pool.
func (w *Wallet) Abort(id string) (operation.Operation, error) {
	return w.store.Abort(id)
}

// Nullify retires a confirmed operation whose nullifier has been spent.
func (w *Wallet) Nullify(id string) (operation.Operation, error) {
	return w.store.Nullify(id)
}

// Confirmed lists confirmed operations. Requires an unlocked session.
func (w *Wallet) Confirmed() ([]operation.Operation, error) {
	return w.List(operation.Confirmed)
}

// Pending lists pending operations. Requires an unlocked session.
func (w *Wallet) Pending() ([]operation.Operation, error) {
	return w.List(operation.Pending)
}

// List returns the operations in pool p. Requires an unlocked session.
func (w *Wallet) List(p operation.Pool) ([]operation.Operation, error) {
	if err := w.session.RequireUnlocked(); err != nil {
		return nil, err
	}
	return w.store.List(p)
}

// Snapshot returns the confirmed and pending pools for a proof request.
// Requires an unlocked session.
func (w *Wallet) Snapshot() (confirmed, pending []operation.Operation, err error) {
	if err := w.session.RequireUnlocked(); err != nil {
		return nil, nil, err
	}
	return w.store.Snapshot()
}

// Find returns the operation with id and the pool holding it. Requires an
// unlocked session.
func (w *Wallet) Find(id string) (operation.Operation, operation.Pool, error) {
	if err := w.session.RequireUnlocked(); err != nil {
		return operation.Operation{}, "", err
	}
	return w.store.Find(id)
}
