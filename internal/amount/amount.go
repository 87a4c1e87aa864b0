// amount.go - Fixed-point normalization of user supplied token amounts.
//
// A raw amount string and a token's decimal precision produce an exact on-chain
// integer plus the display string shown back to the user. User facing precision is
// capped at four fractional digits while Exact keeps the token's full scale; Exact
// feeds refund commitments, so the rules below must not drift.

package amount

import (
	"math/big"
	"strings"
)

// MaxFractionDigits caps the fractional digits accepted from the user.
const MaxFractionDigits = 4

// Normalized is the result of Normalize.
type Normalized struct {
	Display string
	Exact   *big.Int
}

// Normalize cleans raw and scales it to decimals.
//
// Rules, applied in order:
//  1. keep only digits and '.'
//  2. the first '.' is the decimal point; later dots are dropped, their digits kept
//  3. leading zeros are stripped unless the value starts with "0."
//  4. an empty result is {"", 0}
//  5. decimals == 0 drops the fraction
//  6. otherwise the fraction is truncated to min(decimals, 4) digits and the
//     padded digits are scaled by 10^(decimals-k)
func Normalize(raw string, decimals uint) Normalized {
	s := clean(raw)
	if s == "" {
		return Normalized{Display: "", Exact: new(big.Int)}
	}

	if decimals == 0 {
		intPart, _, _ := strings.Cut(s, ".")
		return Normalized{Display: intPart, Exact: digits(intPart)}
	}

	k := decimals
	if k > MaxFractionDigits {
		k = MaxFractionDigits
	}

	intPart, frac, hasDot := strings.Cut(s, ".")
	if uint(len(frac)) > k {
		frac = frac[:k]
	}
	if intPart == "" {
		intPart = "0"
	}
	padded := frac + strings.Repeat("0", int(k)-len(frac))

	exact := digits(intPart + padded)
	exact.Mul(exact, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-k)), nil))

	var display string
	switch {
	case decimals < MaxFractionDigits:
		display = intPart + "." + padded
	case hasDot:
		display = intPart + "." + frac
	default:
		display = intPart
	}
	return Normalized{Display: display, Exact: exact}
}

// clean applies rules 1 to 3.
func clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	if strings.Count(s, ".") > 1 {
		parts := strings.Split(s, ".")
		s = parts[0] + "." + strings.Join(parts[1:], "")
	}

	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		s = strings.TrimLeft(s, "0")
	}
	return s
}

// digits parses a run of ASCII digits; the empty string is zero.
func digits(s string) *big.Int {
	v := new(big.Int)
	if s == "" {
		return v
	}
	v.SetString(s, 10)
	return v
}
