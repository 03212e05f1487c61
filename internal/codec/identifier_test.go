package codec

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeIdentifier_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := strings.TrimSpace(rapid.StringMatching(`[ -~]{0,64}`).Draw(t, "s"))

		got := DecodeIdentifier(FromBytes(EncodeIdentifier(s)))
		if got != s {
			t.Fatalf("round trip mismatch: %q -> %q", s, got)
		}

		gotHex := DecodeIdentifier(FromHex(EncodeIdentifierHex(s)))
		if gotHex != s {
			t.Fatalf("hex round trip mismatch: %q -> %q", s, gotHex)
		}
	})
}

func TestDecodeIdentifier_HexAndArrayAgree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOfN(rapid.Byte(), 0, 48).Draw(t, "bytes")

		fromArray := DecodeIdentifier(FromBytes(b))
		fromHex := DecodeIdentifier(FromHex(hex.EncodeToString(b)))
		fromPrefixed := DecodeIdentifier(FromHex("0x" + hex.EncodeToString(b)))

		if fromArray != fromHex || fromHex != fromPrefixed {
			t.Fatalf("encodings disagree: array=%q hex=%q prefixed=%q", fromArray, fromHex, fromPrefixed)
		}
	})
}

func TestDecodeIdentifier_FiltersPaddingAndControlBytes(t *testing.T) {
	raw := FromBytes([]byte{0, 0, 'g', 'a', 0x01, 'm', 'e', 0x7f, 0xff, ' ', 0})
	require.Equal(t, "game", DecodeIdentifier(raw))

	require.Equal(t, "42", DecodeIdentifier(FromHex("0x00003432000000")))
	require.Equal(t, "42", DecodeIdentifier(FromHex("3432")))

	require.Equal(t, "abcd", DecodeIdentifier(FromBytes([]byte("a\nb\tc\rd"))))
	require.Equal(t, "abcd", DecodeIdentifier(FromHex(EncodeIdentifierHex("\ta\nb\tc\rd\n"))))
}

func TestDecodeIdentifier_MalformedNeverFails(t *testing.T) {
	s, err := DecodeIdentifierStrict(FromHex("0x41zz42"))
	require.ErrorIs(t, err, ErrMalformed)
	require.Equal(t, "", s)

	s, err = DecodeIdentifierStrict(FromHex("0x414"))
	require.ErrorIs(t, err, ErrMalformed)
	require.Equal(t, "", s)
	require.Equal(t, "", DecodeIdentifier(FromHex("Zelda")))

	require.Equal(t, "", DecodeIdentifier(Raw{}))
	require.Equal(t, "", DecodeIdentifier(FromInts([]int{-1, 300, 0})))
}

func TestRaw_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind Kind
		want string
	}{
		{name: "prefixed hex", in: `"0x48616c6f"`, kind: KindHex, want: "Halo"},
		{name: "bare hex", in: `"48616c6f"`, kind: KindHex, want: "Halo"},
		{name: "number array", in: `[72,97,108,111]`, kind: KindBytes, want: "Halo"},
		{name: "null", in: `null`, kind: KindEmpty, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Raw
			require.NoError(t, json.Unmarshal([]byte(tc.in), &r))
			require.Equal(t, tc.kind, r.Kind())
			require.Equal(t, tc.want, DecodeIdentifier(r))
		})
	}

	var r Raw
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &r))
}

func TestRaw_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(FromBytes([]byte("hi")))
	require.NoError(t, err)
	require.Equal(t, `"0x6869"`, string(b))

	_, err = json.Marshal(FromInts([]int{256}))
	require.ErrorIs(t, err, ErrMalformed)
}
