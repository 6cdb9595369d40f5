package sqlfrag

import (
	"crypto/sha1" //nolint:gosec // content-addressing, not a security boundary; matches the reference implementation's hash_query.
	"encoding/hex"
)

// hashFragment computes the stable fragment identity hash (§3 "hash"):
// SHA-1 over the canonicalized SQL text plus the partition key name, so
// that the same fragment shape computed for two different partition keys
// never collides.
func hashFragment(canonicalSQL, partitionKey string) string {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(partitionKey))
	h.Write([]byte{0})
	h.Write([]byte(canonicalSQL))

	return hex.EncodeToString(h.Sum(nil))
}

// HashQuery hashes an arbitrary query string the same way the original
// (unfragmented) query is hashed (§4.1 "hash_query"), so that callers can
// key the original-query-status table (§4.4) with the same function used
// internally.
func HashQuery(query, partitionKey string) string {
	return hashFragment(normalizeWhitespace(stripComments(query)), partitionKey)
}
