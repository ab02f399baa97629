package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// mnemonicEntropyBits is 128 bits, yielding the spec's 12-word phrase with
// an 11-bit index per word and a 4-bit checksum folded into the last word.
const mnemonicEntropyBits = 128

// RecoveryPhrase deterministically derives a 12-word BIP-39 English
// wordlist phrase from a keypair's private key bytes. The same private key
// always yields the same phrase, so the phrase can be regenerated for
// display without being stored in plaintext.
func RecoveryPhrase(priv ed25519.PrivateKey) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("crypto: recovery phrase: invalid private key length %d", len(priv))
	}
	// Fold the private key down to 128 bits of entropy; SHA-256 keeps the
	// derivation deterministic without ever reusing the raw key material
	// as the mnemonic entropy directly.
	digest := sha256.Sum256(priv)
	entropy := digest[:mnemonicEntropyBits/8]
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("crypto: recovery phrase: %w", err)
	}
	return phrase, nil
}

// RecoveryPhraseHash hashes a recovery phrase for on-chain commitment
// (spec §3 NODE_JOIN.recoveryPhraseHash): the phrase itself never touches
// the chain, only its digest.
func RecoveryPhraseHash(phrase string) string {
	sum := sha256.Sum256([]byte(phrase))
	return fmt.Sprintf("%x", sum)
}

// ValidateMnemonic reports whether phrase is a well-formed BIP-39 English
// wordlist mnemonic (word count and checksum).
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}
