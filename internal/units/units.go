// Package units turns raw byte counts into the short power-of-1000 sizes
// shown next to every storage object.
package units

import (
	"math/big"
	"strings"
)

// Unknown is returned for both halves of the pair when a size cannot be
// formatted.
const Unknown = "unknown"

// ladder holds the unit steps. The leading empty step mirrors the "no unit"
// position below bytes.
var ladder = []string{"", "B", "KB", "MB", "GB", "TB", "PB", "EB"}

var thousand = big.NewInt(1000)

// Normalize returns the raw decimal string and a human readable size.
//
// The value is floor-divided by 1000 while it has more than three digits,
// moving one unit step each time. Input that is not a non-negative integer,
// or that runs past EB, yields (Unknown, Unknown).
func Normalize(raw string) (string, string) {
	raw = strings.TrimSpace(raw)

	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return Unknown, Unknown
	}

	step := 1
	for len(n.String()) > 3 {
		step++
		if step >= len(ladder) {
			return Unknown, Unknown
		}
		n.Quo(n, thousand)
	}

	return raw, n.String() + " " + ladder[step]
}

// NormalizeUint is Normalize for values that already arrived as integers.
func NormalizeUint(v uint64) (string, string) {
	return Normalize(new(big.Int).SetUint64(v).String())
}
