package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

const minorUnitExp = 2

var minorPerMajor = decimal.New(1, minorUnitExp)

// AmountFromDecimal converts a major-unit decimal (110.50) into minor units.
// Values with more than two decimal places are rejected rather than rounded.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(minorPerMajor)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidInput, d.String(), minorUnitExp)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrInvalidInput, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// ParseAmount parses a major-unit string such as "110" or "110.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	return AmountFromDecimal(d)
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorUnitExp)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorUnitExp)
}

func (a Amount) IsPositive() bool { return a > 0 }

// MarshalJSON renders the amount in major units as a string, e.g. "110.50".
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts major units as either a JSON number or a string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: amount: %v", ErrInvalidInput, err)
	}
	v, err := AmountFromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
