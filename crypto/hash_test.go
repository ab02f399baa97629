package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	v := orderedPair{A: "x", B: 7}
	h1, err := Hash(v)
	require.NoError(t, err)
	h2, err := Hash(v)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashDiffersOnInputChange(t *testing.T) {
	h1, err := Hash(orderedPair{A: "x", B: 1})
	require.NoError(t, err)
	h2, err := Hash(orderedPair{A: "x", B: 2})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestHashBytesMatchesSHA256OfEmptyString(t *testing.T) {
	sum := HashBytes([]byte(""))
	// SHA-256("") is a well-known constant.
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hashHexOf(sum))
}

func hashHexOf(sum [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 0, 64)
	for _, b := range sum {
		out = append(out, hextable[b>>4], hextable[b&0x0f])
	}
	return string(out)
}
