// field.go - Parsing and formatting of field values.

package commitment

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseInt parses a non-negative integer written either in decimal or as 0x-prefixed hex.
func ParseInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative integer: %q", s)
	}
	return v, nil
}

// ParseSeed interprets a hex-encoded seed (with or without 0x prefix) as an integer.
func ParseSeed(seedHex string) (*big.Int, error) {
	s := strings.TrimSpace(seedHex)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("empty seed")
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("seed is not hex")
	}
	return v, nil
}

// Hex formats x as 0x-prefixed lowercase hex with no leading zeros ("0x0" for zero).
func Hex(x *big.Int) string {
	return hexutil.EncodeBig(x)
}

// DecimalToHex converts a stored decimal string to its circuit hex form.
func DecimalToHex(s string) (string, error) {
	v, err := ParseInt(s)
	if err != nil {
		return "", err
	}
	return Hex(v), nil
}
