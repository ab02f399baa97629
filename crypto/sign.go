package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Sign produces a deterministic Ed25519 signature over v's canonical-JSON
// encoding.
func Sign(priv ed25519.PrivateKey, v any) ([]byte, error) {
	encoded, err := CanonicalJSON(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return ed25519.Sign(priv, encoded), nil
}

// Verify checks an Ed25519 signature produced by Sign against v's
// canonical-JSON encoding.
func Verify(pub ed25519.PublicKey, v any, signature []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: verify: invalid public key length %d", len(pub))
	}
	encoded, err := CanonicalJSON(v)
	if err != nil {
		return false, fmt.Errorf("crypto: verify: %w", err)
	}
	return ed25519.Verify(pub, encoded, signature), nil
}
