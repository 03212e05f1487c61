package codec

import (
	"strings"

	"github.com/cockroachdb/errors"
)

const addressHexLen = 64

// NormalizeAddress lowercases an account address and left pads it to the
// full 32 byte form, so "0x1" and "0x0000..01" compare equal.
func NormalizeAddress(s string) (string, error) {
	h := strings.ToLower(trimHexPrefix(s))
	if h == "" {
		return "", errors.Wrap(ErrMalformed, "empty address")
	}
	if len(h) > addressHexLen {
		return "", errors.Wrapf(ErrMalformed, "address too long: %d hex chars", len(h))
	}
	for i := 0; i < len(h); i++ {
		if _, ok := nibble(h[i]); !ok {
			return "", errors.Wrapf(ErrMalformed, "address has non-hex character %q", h[i])
		}
	}
	return "0x" + strings.Repeat("0", addressHexLen-len(h)) + h, nil
}

// SameAddress compares two addresses after normalization. Malformed input
// never matches.
func SameAddress(a, b string) bool {
	na, err := NormalizeAddress(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeAddress(b)
	if err != nil {
		return false
	}
	return na == nb
}
