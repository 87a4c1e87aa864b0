// witness.go - Assembly of circuit inputs from selected operations.
//
// A proof ask carries a witness skeleton: arbitrary named circuit inputs plus two
// selector arrays. "deposits_id" lists indices of confirmed operations to spend
// and "refunds_id" lists {id, decimals} of pending operations to refund. The
// assembler removes both selectors and writes, 1-indexed in selector order:
//
//	secret_i, nullifier_i                  for each deposit
//	refund_secret_i, refund_nullifier_i,
//	refund_amount_i, refund_commitment_hash_i  for each refund
//
// with refund_commitment_hash_i = H(H(hash, exactAmount), tokenAddress).

package witness

import (
	"encoding/json"
	"fmt"
	"math/big"

	"privacypool/internal/amount"
	"privacypool/internal/commitment"
	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
)

const (
	DepositsField = "deposits_id"
	RefundsField  = "refunds_id"

	// MaxDecimals is the largest token precision a refund selector may ask
	// for: the digit count of a uint256.
	MaxDecimals = 77

	MetadataAmount       = "amount"
	MetadataTokenAddress = "tokenAddress"
)

// Skeleton is the witness as supplied by the caller.
type Skeleton map[string]any

// Input is the populated witness handed to the proving backend.
type Input map[string]any

// RefundSelector picks a pending operation and the decimals of its token.
type RefundSelector struct {
	ID       string `json:"id"`
	Decimals uint   `json:"decimals"`
}

// Selection is the pair of selector lists carried by a skeleton.
type Selection struct {
	Deposits []uint64
	Refunds  []RefundSelector
}

// Split returns a copy of sk without the selector fields, and the parsed selectors.
// A missing selector field is an empty list.
func Split(sk Skeleton) (Skeleton, Selection, error) {
	rest := make(Skeleton, len(sk))
	var sel Selection
	for k, v := range sk {
		switch k {
		case DepositsField:
			if err := decodeField(v, &sel.Deposits); err != nil {
				return nil, Selection{}, poolerr.Wrap(poolerr.InvalidRequest, err, "invalid "+DepositsField)
			}
		case RefundsField:
			if err := decodeField(v, &sel.Refunds); err != nil {
				return nil, Selection{}, poolerr.Wrap(poolerr.InvalidRequest, err, "invalid "+RefundsField)
			}
			for _, r := range sel.Refunds {
				if r.Decimals > MaxDecimals {
					return nil, Selection{}, poolerr.New(poolerr.InvalidRequest,
						"refund %s: decimals %d exceeds %d", r.ID, r.Decimals, MaxDecimals)
				}
			}
		default:
			rest[k] = v
		}
	}
	return rest, sel, nil
}

// decodeField converts a loosely typed JSON value into dst.
func decodeField(v any, dst any) error {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Assembler fills skeletons from operation snapshots.
type Assembler struct {
	h commitment.Hasher
}

// NewAssembler returns an Assembler hashing with h. A nil h selects Poseidon.
func NewAssembler(h commitment.Hasher) *Assembler {
	if h == nil {
		h = commitment.Poseidon{}
	}
	return &Assembler{h: h}
}

// Assemble splits sk and populates it from confirmed and pending.
func (a *Assembler) Assemble(sk Skeleton, confirmed, pending []operation.Operation) (Input, error) {
	base, sel, err := Split(sk)
	if err != nil {
		return nil, err
	}
	return a.AssembleSelection(base, sel, confirmed, pending)
}

// AssembleSelection populates base with the operations named by sel. base is
// not modified.
func (a *Assembler) AssembleSelection(base Skeleton, sel Selection, confirmed, pending []operation.Operation) (Input, error) {
	out := make(Input, len(base)+2*len(sel.Deposits)+4*len(sel.Refunds))
	for k, v := range base {
		out[k] = v
	}

	byIndex := make(map[uint64]operation.Operation, len(confirmed))
	for _, op := range confirmed {
		byIndex[op.Index] = op
	}
	for i, idx := range sel.Deposits {
		op, ok := byIndex[idx]
		if !ok {
			return nil, poolerr.New(poolerr.DepositNotFound, "no confirmed operation at index %d", idx)
		}
		secret, nullifier, err := secretHex(op)
		if err != nil {
			return nil, err
		}
		n := i + 1
		out[fmt.Sprintf("secret_%d", n)] = secret
		out[fmt.Sprintf("nullifier_%d", n)] = nullifier
	}

	byID := make(map[string]operation.Operation, len(pending))
	for _, op := range pending {
		byID[op.ID] = op
	}
	for i, r := range sel.Refunds {
		op, ok := byID[r.ID]
		if !ok {
			return nil, poolerr.New(poolerr.RefundNotFound, "no pending operation with id %s", r.ID)
		}
		secret, nullifier, err := secretHex(op)
		if err != nil {
			return nil, err
		}
		exact, cm, err := a.RefundCommitment(op, r.Decimals)
		if err != nil {
			return nil, err
		}
		n := i + 1
		out[fmt.Sprintf("refund_secret_%d", n)] = secret
		out[fmt.Sprintf("refund_nullifier_%d", n)] = nullifier
		out[fmt.Sprintf("refund_amount_%d", n)] = commitment.Hex(exact)
		out[fmt.Sprintf("refund_commitment_hash_%d", n)] = commitment.Hex(cm)
	}
	return out, nil
}

// RefundCommitment normalizes the operation's amount to decimals and binds it to
// the operation hash and token: H(H(hash, exact), tokenAddress).
func (a *Assembler) RefundCommitment(op operation.Operation, decimals uint) (exact, cm *big.Int, err error) {
	if decimals > MaxDecimals {
		return nil, nil, poolerr.New(poolerr.InvalidRequest, "decimals %d exceeds %d", decimals, MaxDecimals)
	}
	rawAmount, ok := op.Metadata.String(MetadataAmount)
	if !ok {
		return nil, nil, poolerr.New(poolerr.InvalidRequest, "operation %s has no amount", op.ID)
	}
	rawToken, ok := op.Metadata.String(MetadataTokenAddress)
	if !ok {
		return nil, nil, poolerr.New(poolerr.InvalidRequest, "operation %s has no token address", op.ID)
	}
	token, err := commitment.ParseInt(rawToken)
	if err != nil {
		return nil, nil, poolerr.Wrap(poolerr.InvalidRequest, err, "invalid token address")
	}
	hash, err := commitment.ParseInt(op.Hash)
	if err != nil {
		return nil, nil, poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid stored hash")
	}

	exact = amount.Normalize(rawAmount, decimals).Exact
	intermediate := a.h.Hash(hash, exact)
	return exact, a.h.Hash(intermediate, token), nil
}

func secretHex(op operation.Operation) (secret, nullifier string, err error) {
	if secret, err = commitment.DecimalToHex(op.Secret); err != nil {
		return "", "", poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid stored secret")
	}
	if nullifier, err = commitment.DecimalToHex(op.Nullifier); err != nil {
		return "", "", poolerr.Wrap(poolerr.InvalidCommitment, err, "invalid stored nullifier")
	}
	return secret, nullifier, nil
}
