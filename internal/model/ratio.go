package model

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// RatioPlaces is the number of decimal places every derived value is rounded to.
const RatioPlaces = 4

// Ratio is an exact decimal rounded to RatioPlaces, half away from zero.
// Its text and JSON forms always carry exactly RatioPlaces decimals.
type Ratio struct {
	d decimal.Decimal
}

// ZeroRatio is the ratio used for guarded divisions and absent categories.
var ZeroRatio = Ratio{d: decimal.Zero}

// NewRatio divides num by den and rounds the quotient. den must not be zero.
func NewRatio(num, den int64) Ratio {
	return Ratio{d: decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), RatioPlaces)}
}

// RatioFromDecimal rounds d to RatioPlaces.
func RatioFromDecimal(d decimal.Decimal) Ratio {
	return Ratio{d: d.Round(RatioPlaces)}
}

// ParseRatio parses a decimal string and rounds it.
func ParseRatio(s string) (Ratio, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Ratio{}, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	return RatioFromDecimal(d), nil
}

// Decimal exposes the underlying value.
func (r Ratio) Decimal() decimal.Decimal { return r.d }

// Float64 returns the nearest float64.
func (r Ratio) Float64() float64 { return r.d.InexactFloat64() }

// Equal reports whether both ratios hold the same value.
func (r Ratio) Equal(o Ratio) bool { return r.d.Equal(o.d) }

// IsZero reports whether the ratio is zero.
func (r Ratio) IsZero() bool { return r.d.IsZero() }

func (r Ratio) String() string { return r.d.StringFixed(RatioPlaces) }

// MarshalJSON renders the ratio as a bare number with fixed decimals.
func (r Ratio) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted strings.
func (r *Ratio) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*r = ZeroRatio
		return nil
	}
	parsed, err := ParseRatio(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
