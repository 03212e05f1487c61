package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OctasPerCoin is the fixed-point scale for every amount in the client:
// prices, balances and shortfalls are all integers at this scale.
const OctasPerCoin uint64 = 100_000_000

// CoinDecimals is log10(OctasPerCoin).
const CoinDecimals = 8

// CoinSymbol is appended by FormatAmount.
const CoinSymbol = "APT"

// U64 decodes ledger integers, which arrive as JSON strings ("123") from
// most endpoints and as numbers from a few.
type U64 uint64

func (u *U64) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*u = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(ErrMalformed, "u64 %q", s)
	}
	*u = U64(v)
	return nil
}

// MarshalJSON renders the value as a decimal string, which is how the
// ledger expects u64 arguments.
func (u U64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u U64) String() string { return strconv.FormatUint(uint64(u), 10) }

// FormatAmount renders octas as a human readable coin amount.
// Zero renders as "Free".
func FormatAmount(octas uint64) string {
	if octas == 0 {
		return "Free"
	}
	return FormatDecimal(octas) + " " + CoinSymbol
}

// FormatDecimal renders octas as a decimal number with trailing zeros
// removed, e.g. 599000000 -> "5.99".
func FormatDecimal(octas uint64) string {
	whole := octas / OctasPerCoin
	frac := octas % OctasPerCoin
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := strconv.FormatUint(frac, 10)
	fs = strings.Repeat("0", CoinDecimals-len(fs)) + fs
	fs = strings.TrimRight(fs, "0")
	return strconv.FormatUint(whole, 10) + "." + fs
}

// ParseAmount parses a decimal coin amount ("5.99") into octas without
// going through floating point. More than CoinDecimals fractional digits is
// an error rather than silently truncated.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), CoinSymbol))
	if s == "" {
		return 0, errors.New("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, errors.Newf("amount %q is negative", s)
	}

	wholePart, fracPart, _ := strings.Cut(s, ".")
	if wholePart == "" {
		wholePart = "0"
	}
	whole, err := strconv.ParseUint(wholePart, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "amount %q", s)
	}
	if len(fracPart) > CoinDecimals {
		return 0, errors.Newf("amount %q has more than %d decimals", s, CoinDecimals)
	}

	var frac uint64
	if fracPart != "" {
		frac, err = strconv.ParseUint(fracPart+strings.Repeat("0", CoinDecimals-len(fracPart)), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "amount %q", s)
		}
	}

	if whole > (math.MaxUint64-frac)/OctasPerCoin {
		return 0, errors.Newf("amount %q overflows", s)
	}
	return whole*OctasPerCoin + frac, nil
}
