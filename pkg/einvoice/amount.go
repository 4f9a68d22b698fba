package einvoice

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a decimal value that travels as a JSON number. The portal
// rejects quoted numbers, which is decimal.Decimal's default encoding.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses s ("112", "12.50").
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("einvoice: invalid amount %q: %w", s, err)
	}
	return Amount{d}, nil
}

// MustAmount is NewAmount that panics; for literals.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromInt returns v as an Amount.
func AmountFromInt(v int64) Amount {
	return Amount{decimal.NewFromInt(v)}
}

// AmountFromFloat returns v rounded to 2 places.
func AmountFromFloat(v float64) Amount {
	return Amount{decimal.NewFromFloat(v).Round(2)}
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Percent returns rate percent of a, rounded to 2 places.
func (a Amount) Percent(rate Amount) Amount {
	return Amount{a.Mul(rate.Decimal).Div(decimal.NewFromInt(100)).Round(2)}
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts numbers and numeric strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}

	d, err := decimal.NewFromString(string(bytes.Trim(b, `"`)))
	if err != nil {
		return fmt.Errorf("einvoice: invalid amount %s: %w", b, err)
	}
	a.Decimal = d
	return nil
}
