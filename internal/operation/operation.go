// operation.go - Operation records and the pools that hold them.
//
// An Operation is a single deposit or refund known to the wallet. Its fields never
// change after creation; only the pool it belongs to does:
//
//	pending -> confirmed -> nullified
//	pending -> aborted
//
// Nullified and aborted are terminal.

package operation

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// Pool names one of the four disjoint operation sets.
type Pool string

const (
	Pending   Pool = "pending"
	Confirmed Pool = "confirmed"
	Nullified Pool = "nullified"
	Aborted   Pool = "aborted"
)

// Pools lists every pool in storage order.
var Pools = []Pool{Pending, Confirmed, Nullified, Aborted}

// Key is the storage key holding the pool's document.
func (p Pool) Key() string {
	return string(p) + "Operations"
}

// Valid reports whether p is one of the four pools.
func (p Pool) Valid() bool {
	switch p {
	case Pending, Confirmed, Nullified, Aborted:
		return true
	}
	return false
}

// Metadata is the caller supplied payload attached to an operation.
// Refund operations carry at least "amount" and "tokenAddress".
type Metadata map[string]any

// String returns the value at key rendered as a string. JSON numbers are
// formatted without exponent so amounts survive a round trip through storage.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return plainDecimal(x.String())
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	}
	return "", false
}

// Operation is one committed deposit or refund.
// Secret, Nullifier and Hash are decimal encoded field elements.
type Operation struct {
	ID        string   `json:"id"`
	Index     uint64   `json:"index"`
	Secret    string   `json:"secret"`
	Nullifier string   `json:"nullifier"`
	Hash      string   `json:"hash"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// plainDecimal rewrites a JSON number in exponent form ("1e-7") as a plain
// decimal ("0.0000001"). Other numbers are returned unchanged.
func plainDecimal(s string) (string, bool) {
	if !strings.ContainsAny(s, "eE") {
		return s, true
	}
	f, _, err := big.ParseFloat(s, 10, 512, big.ToNearestEven)
	if err != nil {
		return "", false
	}
	return f.Text('f', -1), true
}
