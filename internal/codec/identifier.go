// Package codec converts between human readable strings and the byte-array
// and hex encodings the ledger uses for identifiers and metadata.
//
// The ledger returns Move vector<u8> values either as "0x.." hex strings or as
// JSON number arrays depending on the endpoint, and values are frequently
// zero padded. Decoding is therefore tolerant: non-printable bytes are dropped
// and the result is trimmed.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMalformed marks input that could not be interpreted as bytes at all.
var ErrMalformed = errors.New("codec: malformed byte encoding")

// Kind tags which wire representation a Raw value arrived in.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindHex
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindHex:
		return "hex"
	case KindBytes:
		return "bytes"
	default:
		return "empty"
	}
}

// Raw is a byte value as the ledger returned it: a hex string or a numeric
// byte array. Exactly one of hex/bytes is meaningful, selected by kind.
type Raw struct {
	kind  Kind
	hex   string
	bytes []int
}

// FromHex wraps a hex string, with or without the 0x prefix.
func FromHex(s string) Raw {
	return Raw{kind: KindHex, hex: s}
}

// FromBytes wraps a raw byte slice.
func FromBytes(b []byte) Raw {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return Raw{kind: KindBytes, bytes: out}
}

// FromInts wraps a numeric array as decoded from JSON. Values outside 0..255
// are kept and filtered at decode time.
func FromInts(v []int) Raw {
	return Raw{kind: KindBytes, bytes: append([]int(nil), v...)}
}

func (r Raw) Kind() Kind { return r.kind }

func (r Raw) IsZero() bool { return r.kind == KindEmpty }

// UnmarshalJSON accepts "0x..", bare hex strings, number arrays and null.
func (r *Raw) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*r = Raw{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(ErrMalformed, err.Error())
		}
		*r = FromHex(s)
		return nil
	case '[':
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return errors.Wrap(ErrMalformed, err.Error())
		}
		*r = FromInts(ints)
		return nil
	default:
		return errors.Wrapf(ErrMalformed, "unexpected json token %q", trimmed[:1])
	}
}

// MarshalJSON renders the value as a 0x-prefixed hex string, the form the
// ledger accepts for vector<u8> arguments.
func (r Raw) MarshalJSON() ([]byte, error) {
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(b))
}

// Bytes returns the decoded bytes without any printable filtering.
// Array entries outside 0..255 and odd trailing hex nibbles are errors.
func (r Raw) Bytes() ([]byte, error) {
	switch r.kind {
	case KindEmpty:
		return []byte{}, nil
	case KindBytes:
		out := make([]byte, 0, len(r.bytes))
		for i, v := range r.bytes {
			if v < 0 || v > 255 {
				return nil, errors.Wrapf(ErrMalformed, "byte %d out of range: %d", i, v)
			}
			out = append(out, byte(v))
		}
		return out, nil
	default:
		return decodeHexStrict(r.hex)
	}
}

func (r Raw) String() string {
	switch r.kind {
	case KindHex:
		return r.hex
	case KindBytes:
		return fmt.Sprint(r.bytes)
	default:
		return ""
	}
}

// EncodeIdentifier returns the UTF-8 bytes of text.
func EncodeIdentifier(text string) []byte {
	return []byte(text)
}

// EncodeHex renders bytes as a 0x-prefixed hex string.
func EncodeHex(b []byte) string {
	return hexutil.Encode(b)
}

// EncodeIdentifierHex is EncodeHex(EncodeIdentifier(text)).
func EncodeIdentifierHex(text string) string {
	return EncodeHex(EncodeIdentifier(text))
}

// DecodeIdentifier never fails: malformed input decodes to "".
func DecodeIdentifier(r Raw) string {
	s, _ := DecodeIdentifierStrict(r)
	return s
}

// DecodeIdentifierStrict decodes like DecodeIdentifier but also reports
// malformed input, for callers that want to log it. The returned string is
// always what DecodeIdentifier would return.
func DecodeIdentifierStrict(r Raw) (string, error) {
	var (
		vals []int
		err  error
	)

	switch r.kind {
	case KindEmpty:
		return "", nil
	case KindBytes:
		vals = r.bytes
	default:
		vals, err = hexPairs(r.hex)
		if err != nil {
			return "", err
		}
	}

	return printable(vals), nil
}

// printable keeps printable ASCII (0x20..0x7e), then trims surrounding
// spaces.
func printable(vals []int) string {
	var sb strings.Builder
	sb.Grow(len(vals))
	for _, v := range vals {
		if v < 0x20 || v > 0x7e {
			continue
		}
		sb.WriteByte(byte(v))
	}
	return strings.TrimSpace(sb.String())
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// hexPairs reads two characters at a time and reports the first invalid
// pair or a dangling nibble.
func hexPairs(s string) ([]int, error) {
	h := trimHexPrefix(s)
	out := make([]int, 0, len(h)/2)
	var bad error
	for i := 0; i+1 < len(h); i += 2 {
		hi, okHi := nibble(h[i])
		lo, okLo := nibble(h[i+1])
		if !okHi || !okLo {
			if bad == nil {
				bad = errors.Wrapf(ErrMalformed, "invalid hex pair %q at offset %d", h[i:i+2], i)
			}
			continue
		}
		out = append(out, hi<<4|lo)
	}
	if len(h)%2 == 1 && bad == nil {
		bad = errors.Wrap(ErrMalformed, "odd length hex string")
	}
	return out, bad
}

func decodeHexStrict(s string) ([]byte, error) {
	vals, err := hexPairs(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	return out, nil
}

func nibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
