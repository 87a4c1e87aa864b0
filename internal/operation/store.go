// store.go - Durable operation pools and their state machine.
//
// Every pool is one JSON array stored under its Pool.Key. Transitions are
// read-modify-write sequences over one or two pools; they run under a single
// writer lock and commit through one atomic KV.Apply, so concurrent creates
// never observe a stale count and a moved record is never lost or duplicated.

package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"privacypool/internal/commitment"
	"privacypool/internal/metrics"
	"privacypool/internal/poolerr"
	"privacypool/internal/storage"
)

// Store owns the four operation pools.
type Store struct {
	mu  sync.Mutex
	kv  storage.KV
	log zerolog.Logger
}

// NewStore wraps kv.
func NewStore(kv storage.KV, log zerolog.Logger) *Store {
	return &Store{
		kv:  kv,
		log: log.With().Str("component", "operation-store").Logger(),
	}
}

// Builder produces the commitment triple for the operation about to receive index.
type Builder func(index uint64) (commitment.Triple, error)

// Create appends a new pending operation. Its index is the total number of
// operations across all pools at the time of the call.
func (s *Store) Create(source string, build Builder, metadata Metadata) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools, err := s.loadAll()
	if err != nil {
		return Operation{}, err
	}

	var index uint64
	for _, p := range Pools {
		index += uint64(len(pools[p]))
	}

	triple, err := build(index)
	if err != nil {
		return Operation{}, err
	}
	secret, nullifier, hash := triple.Strings()

	op := Operation{
		ID:        uuid.NewString(),
		Index:     index,
		Secret:    secret,
		Nullifier: nullifier,
		Hash:      hash,
		Metadata:  metadata,
	}
	pending := append(pools[Pending], op)

	if err := s.write(map[Pool][]Operation{Pending: pending}); err != nil {
		return Operation{}, err
	}

	metrics.OperationsCreated.WithLabelValues(source).Inc()
	s.log.Info().Str("id", op.ID).Uint64("index", op.Index).Str("source", source).Msg("operation created")
	return op, nil
}

// Confirm moves a pending operation to the confirmed pool.
func (s *Store) Confirm(id string) (Operation, error) {
	return s.move("confirm", id, Pending, Confirmed)
}

// Abort moves a pending operation to the aborted pool.
func (s *Store) Abort(id string) (Operation, error) {
	return s.move("abort", id, Pending, Aborted)
}

// Nullify moves a confirmed operation to the nullified pool.
func (s *Store) Nullify(id string) (Operation, error) {
	return s.move("nullify", id, Confirmed, Nullified)
}

// move transfers the record with id from one pool to another, preserving every
// field. A missing id fails with NotFound and leaves both pools untouched.
func (s *Store) move(transition, id string, from, to Pool) (op Operation, err error) {
	defer func() { metrics.RecordTransition(transition, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.load(from)
	if err != nil {
		return Operation{}, err
	}
	pos := -1
	for i := range src {
		if src[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Operation{}, poolerr.New(poolerr.NotFound, "operation %s not in %s pool", id, from)
	}

	dst, err := s.load(to)
	if err != nil {
		return Operation{}, err
	}

	op = src[pos]
	rest := make([]Operation, 0, len(src)-1)
	rest = append(rest, src[:pos]...)
	rest = append(rest, src[pos+1:]...)
	dst = append(dst, op)

	if err := s.write(map[Pool][]Operation{from: rest, to: dst}); err != nil {
		return Operation{}, err
	}

	s.log.Info().Str("id", op.ID).Uint64("index", op.Index).Str("from", string(from)).Str("to", string(to)).Msg("operation moved")
	return op, nil
}

// List returns a copy of the operations in pool p, in insertion order.
func (s *Store) List(p Pool) ([]Operation, error) {
	if !p.Valid() {
		return nil, poolerr.New(poolerr.InvalidRequest, "unknown pool %q", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(p)
}

// Snapshot returns the confirmed and pending pools read under one lock.
func (s *Store) Snapshot() (confirmed, pending []Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confirmed, err = s.load(Confirmed); err != nil {
		return nil, nil, err
	}
	if pending, err = s.load(Pending); err != nil {
		return nil, nil, err
	}
	return confirmed, pending, nil
}

// Find locates an operation by id in any pool.
func (s *Store) Find(id string) (Operation, Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools, err := s.loadAll()
	if err != nil {
		return Operation{}, "", err
	}
	for _, p := range Pools {
		for _, op := range pools[p] {
			if op.ID == id {
				return op, p, nil
			}
		}
	}
	return Operation{}, "", poolerr.New(poolerr.NotFound, "operation %s not found", id)
}

// Ping checks that the backing store is readable.
func (s *Store) Ping() error {
	_, _, err := s.kv.Get(Pending.Key())
	return err
}

func (s *Store) load(p Pool) ([]Operation, error) {
	raw, ok, err := s.kv.Get(p.Key())
	if err != nil {
		return nil, fmt.Errorf("load %s pool: %w", p, err)
	}
	ops := make([]Operation, 0)
	if !ok || len(raw) == 0 {
		return ops, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ops); err != nil {
		return nil, fmt.Errorf("decode %s pool: %w", p, err)
	}
	return ops, nil
}

func (s *Store) loadAll() (map[Pool][]Operation, error) {
	out := make(map[Pool][]Operation, len(Pools))
	for _, p := range Pools {
		ops, err := s.load(p)
		if err != nil {
			return nil, err
		}
		out[p] = ops
	}
	return out, nil
}

func (s *Store) write(pools map[Pool][]Operation) error {
	writes := make(map[string][]byte, len(pools))
	for p, ops := range pools {
		raw, err := json.Marshal(ops)
		if err != nil {
			return fmt.Errorf("encode %s pool: %w", p, err)
		}
		writes[p.Key()] = raw
	}
	if err := s.kv.Apply(writes); err != nil {
		return fmt.Errorf("commit pools: %w", err)
	}
	for p, ops := range pools {
		metrics.PoolSize.WithLabelValues(string(p)).Set(float64(len(ops)))
	}
	return nil
}
