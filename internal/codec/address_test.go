package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x1")
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("0", 63)+"1", got)

	upper, err := NormalizeAddress("0XABCDEF")
	require.NoError(t, err)
	lower, err := NormalizeAddress("abcdef")
	require.NoError(t, err)
	require.Equal(t, lower, upper)

	for _, bad := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("a", 65)} {
		_, err := NormalizeAddress(bad)
		require.ErrorIs(t, err, ErrMalformed, bad)
	}
}

func TestSameAddress(t *testing.T) {
	require.True(t, SameAddress("0x01", "0x0000000000000000000000000000000000000000000000000000000000000001"))
	require.False(t, SameAddress("0x01", "0x02"))
	require.False(t, SameAddress("nope", "nope"))
}
