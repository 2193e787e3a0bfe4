package domain

import (
	"github.com/shopspring/decimal"
)

// Decimal wraps shopspring decimal to keep the stored scale on the wire.
// decimal.Decimal.String trims trailing zeros, which would turn a payment of
// 100.00 into "100" in event payloads; consumers compare amounts as exact
// strings, so the scale must survive serialization.
type Decimal struct {
	decimal.Decimal
}

// Dec wraps a shopspring decimal.
func Dec(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// DecFromString parses a decimal string, preserving its scale.
func DecFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

// MustDec parses a decimal string and panics on failure. Only for use with
// literals, such as configuration defaults and tests.
func MustDec(s string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(s)}
}

// MarshalJSON serializes the decimal as a quoted exact-precision string at
// its stored scale.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Canonical() + `"`), nil
}

// Canonical returns the decimal rendered at its stored scale, e.g. a value
// parsed from "100.00" renders as "100.00".
func (d Decimal) Canonical() string {
	places := -d.Exponent()
	if places < 0 {
		places = 0
	}
	return d.StringFixed(places)
}
