package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]uint64{
		"5.99":       599_000_000,
		"3":          300_000_000,
		"3.00":       300_000_000,
		"0.00000001": 1,
		".5":         50_000_000,
		"2.99 APT":   299_000_000,
		"0":          0,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "-1", "1.000000001", "abc", "1.2.3"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, bad)
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "Free", FormatAmount(0))
	require.Equal(t, "5.99 APT", FormatAmount(599_000_000))
	require.Equal(t, "2.99 APT", FormatAmount(599_000_000-300_000_000))
	require.Equal(t, "0.00000001 APT", FormatAmount(1))
	require.Equal(t, "12 APT", FormatAmount(12*OctasPerCoin))
}

func TestFormatDecimal_ParsesBack(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint64Range(0, 1<<60).Draw(t, "octas")
		got, err := ParseAmount(FormatDecimal(v))
		if err != nil {
			t.Fatalf("parse %q: %v", FormatDecimal(v), err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %q -> %d", v, FormatDecimal(v), got)
		}
	})
}

func TestU64_UnmarshalJSON(t *testing.T) {
	var v struct {
		A U64 `json:"a"`
		B U64 `json:"b"`
		C U64 `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"18446744073709551615","b":42,"c":null}`), &v))
	require.Equal(t, U64(18446744073709551615), v.A)
	require.Equal(t, U64(42), v.B)
	require.Equal(t, U64(0), v.C)

	require.Error(t, json.Unmarshal([]byte(`{"a":"-1"}`), &v))

	b, err := json.Marshal(U64(7))
	require.NoError(t, err)
	require.Equal(t, `"7"`, string(b))
}
