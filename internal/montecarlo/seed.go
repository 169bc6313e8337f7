// Package montecarlo implements deterministic seed derivation, bootstrap
// TP/SL probability estimation, and per-user ruin simulation (C8).
//
// Seed derivation is ported verbatim (not reinterpreted) from the
// original implementation's generate_deterministic_seed: it is
// normative, not a design choice, so any divergence is a bug.
package montecarlo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DeriveSeed reproduces generate_deterministic_seed(date, symbol):
// seed_string = YYYYMMDD + SYMBOL_UPPER, sha256 hex digest, first 8 hex
// chars parsed as a base-16 integer, reduced mod (2^31 - 1).
func DeriveSeed(date time.Time, symbol string) int64 {
	dateStr := date.UTC().Format("20060102")
	symbolUpper := strings.ToUpper(symbol)
	seedString := dateStr + symbolUpper

	sum := sha256.Sum256([]byte(seedString))
	hexDigest := hex.EncodeToString(sum[:])
	prefix := hexDigest[:8]

	var n uint64
	fmt.Sscanf(prefix, "%x", &n)

	const mersenne31 = (1 << 31) - 1
	return int64(n % mersenne31)
}
