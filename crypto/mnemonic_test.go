package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecoveryPhraseIsTwelveValidWords(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	phrase, err := RecoveryPhrase(kp.Private)
	require.NoError(t, err)
	require.Len(t, strings.Fields(phrase), 12)
	require.True(t, ValidateMnemonic(phrase))
}

func TestRecoveryPhraseIsDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	p1, err := RecoveryPhrase(kp.Private)
	require.NoError(t, err)
	p2, err := RecoveryPhrase(kp.Private)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestRecoveryPhraseHashIsStable(t *testing.T) {
	require.Equal(t, RecoveryPhraseHash("abandon abandon"), RecoveryPhraseHash("abandon abandon"))
	require.NotEqual(t, RecoveryPhraseHash("abandon abandon"), RecoveryPhraseHash("abandon ability"))
}

func TestValidateMnemonicRejectsGarbage(t *testing.T) {
	require.False(t, ValidateMnemonic("not a real recovery phrase at all"))
}
