package core

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// DMKey derives the key addressing the direct message conversation between two
// public keys. The result does not depend on the argument order.
func DMKey(a, b string) string {
	keys := []string{a, b}
	sort.Strings(keys)
	sum := blake2b.Sum256([]byte(keys[0] + ":" + keys[1]))
	return hex.EncodeToString(sum[:])
}
