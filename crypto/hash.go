package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 digest of v's canonical-JSON encoding. This is
// the sole hashing primitive used throughout the ledger: block hashes,
// Merkle leaves and signing digests all route through Hash so that every
// implementation of the protocol agrees byte-for-byte.
func Hash(v any) ([32]byte, error) {
	encoded, err := CanonicalJSON(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(encoded), nil
}

// HashBytes hashes raw bytes directly, bypassing canonical-JSON encoding.
// Used for Merkle internal nodes, which hash the concatenation of two
// child digests rather than a JSON value.
func HashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HashHex is a convenience wrapper returning the hex-encoded digest.
func HashHex(v any) (string, error) {
	sum, err := Hash(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}
