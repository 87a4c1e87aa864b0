package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		decimals uint
		display  string
		exact    string
	}{
		{"leading zeros and truncation", "0005.12345", 2, "5.12", "512"},
		{"empty", "", 6, "", "0"},
		{"zero decimals drops fraction", "3.999999", 0, "3", "3"},
		{"pads to token precision below four", "5", 2, "5.00", "500"},
		{"keeps a single zero before the point", "0.5", 3, "0.500", "500"},
		{"caps user precision at four digits", "1.123456", 18, "1.1234", "1123400000000000000"},
		{"no dot means no fraction in display", "42", 6, "42", "42000000"},
		{"trailing dot is kept for wide tokens", "7.", 8, "7.", "700000000"},
		{"strips foreign characters", "$1,234.5 USDC", 6, "1234.5", "1234500000"},
		{"extra dots join the fraction", "1.2.3", 6, "1.23", "1230000"},
		{"bare fraction gets a zero integer", ".25", 4, "0.25", "2500"},
		{"all zeros collapse to empty", "000", 6, "", "0"},
		{"zero decimals with bare fraction", ".5", 0, "", "0"},
		{"exactly four decimals", "9.87654", 4, "9.8765", "98765"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw, tc.decimals)
			assert.Equal(t, tc.display, got.Display)
			assert.Equal(t, tc.exact, got.Exact.String())
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"0005.12345", "", "3.999999", "12", "0.0001", "1.2.3.4", "abc", "00.75", "7.", "100000.99999"}
	for _, raw := range inputs {
		for _, d := range []uint{0, 1, 2, 3, 4, 6, 18} {
			first := Normalize(raw, d)
			second := Normalize(first.Display, d)
			if first.Exact.Cmp(second.Exact) != 0 {
				t.Errorf("Normalize(%q, %d): exact %s, renormalized %s (display %q)",
					raw, d, first.Exact, second.Exact, first.Display)
			}
		}
	}
}
