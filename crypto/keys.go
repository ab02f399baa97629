package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// NodeIDPrefix is prepended to the hex-encoded public key digest that
// identifies a node (spec §4.1).
const NodeIDPrefix = "node_"

// IdentityHRP is the bech32 human-readable part used when exporting a
// public key for display or out-of-band sharing.
const IdentityHRP = "srishtipub"

// KeyPair is an Ed25519 identity keypair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// ImportPrivateKey reconstructs a keypair from a raw Ed25519 private key
// seed-plus-public-key byte string (ed25519.PrivateKeySize bytes).
func ImportPrivateKey(raw []byte) (*KeyPair, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: import private key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), raw...))
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Public: pub, Private: priv}, nil
}

// NodeID derives the canonical node identifier from a raw Ed25519 public
// key: "node_" || hex(SHA-256(publicKeyRaw))[:16].
func NodeID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return NodeIDPrefix + hex.EncodeToString(sum[:])[:16]
}

// NodeID returns the node identifier derived from this keypair's public key.
func (k *KeyPair) NodeID() string {
	return NodeID(k.Public)
}

// ExportPublicKey renders the public key as a bech32 string suitable for
// out-of-band sharing (QR codes, identity exports, support tickets).
func ExportPublicKey(pub ed25519.PublicKey) (string, error) {
	conv, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("crypto: export public key: %w", err)
	}
	encoded, err := bech32.Encode(IdentityHRP, conv)
	if err != nil {
		return "", fmt.Errorf("crypto: export public key: %w", err)
	}
	return encoded, nil
}

// ImportPublicKey decodes a bech32 public key produced by ExportPublicKey.
func ImportPublicKey(encoded string) (ed25519.PublicKey, error) {
	hrp, data, err := bech32.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: import public key: %w", err)
	}
	if hrp != IdentityHRP {
		return nil, fmt.Errorf("crypto: import public key: unexpected prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("crypto: import public key: %w", err)
	}
	if len(conv) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: import public key: invalid length %d", len(conv))
	}
	return ed25519.PublicKey(conv), nil
}
