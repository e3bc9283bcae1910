package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CentPlaces is the fixed precision every derived amount is rounded to
const CentPlaces = 2

// PercentPlaces matches the scale of the NUMERIC(7, 4) percent columns
const PercentPlaces = 4

var hundred = decimal.NewFromInt(100)

// Money is a single-currency amount held at cent precision.
// Every derivation rounds half-to-even (banker's rounding) to CentPlaces.
type Money struct {
	d decimal.Decimal
}

// ZeroMoney is the zero amount
var ZeroMoney = Money{d: decimal.Zero}

// NewMoney rounds d to cents and wraps it
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.RoundBank(CentPlaces)}
}

// MoneyFromCents builds an amount from an integer number of cents
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -CentPlaces)}
}

// ParseMoney parses a decimal string such as "9812.00"
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

// MustMoney is ParseMoney that panics; intended for constants and tests
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying value
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// Cents returns the amount as an integer number of cents
func (m Money) Cents() int64 {
	return m.d.Shift(CentPlaces).IntPart()
}

// Add returns m + o
func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

// Sub returns m - o
func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d)}
}

// ApplyPercent returns m * p / 100 rounded to cents
func (m Money) ApplyPercent(p Percent) Money {
	return NewMoney(m.d.Mul(p.d).Div(hundred))
}

// DivideBy splits m into n equal parts, rounded to cents.
// n must be positive; callers validate payment counts at the write boundary.
func (m Money) DivideBy(n int) Money {
	return NewMoney(m.d.Div(decimal.NewFromInt(int64(n))))
}

// Equal compares by value, so 5000 equals 5000.00
func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

// LessThan reports m < o
func (m Money) LessThan(o Money) bool {
	return m.d.LessThan(o.d)
}

// LessThanOrEqual reports m <= o
func (m Money) LessThanOrEqual(o Money) bool {
	return m.d.LessThanOrEqual(o.d)
}

// GreaterThan reports m > o
func (m Money) GreaterThan(o Money) bool {
	return m.d.GreaterThan(o.d)
}

// IsNegative reports m < 0
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsZero reports m == 0
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// Abs returns |m|
func (m Money) Abs() Money {
	return Money{d: m.d.Abs()}
}

// String renders the amount with exactly two decimal places
func (m Money) String() string {
	return m.d.StringFixed(CentPlaces)
}

// SumMoney adds up a list of amounts
func SumMoney(amounts ...Money) Money {
	total := ZeroMoney
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Percent is a percentage in the closed range [0, 100]
type Percent struct {
	d decimal.Decimal
}

// NewPercent wraps d without validation; call Validate at write boundaries
func NewPercent(d decimal.Decimal) Percent {
	return Percent{d: d}
}

// PercentFromInt is a convenience for whole percentages
func PercentFromInt(v int64) Percent {
	return Percent{d: decimal.NewFromInt(v)}
}

// ParsePercent parses a decimal string such as "33.33"
func ParsePercent(s string) (Percent, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Percent{}, fmt.Errorf("failed to parse percentage %q: %w", s, err)
	}
	return Percent{d: d}, nil
}

// MustPercent is ParsePercent that panics
func MustPercent(s string) Percent {
	p, err := ParsePercent(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Decimal exposes the underlying value
func (p Percent) Decimal() decimal.Decimal {
	return p.d
}

// IsZero reports p == 0
func (p Percent) IsZero() bool {
	return p.d.IsZero()
}

// Equal compares by value, so 50 equals 50.0000
func (p Percent) Equal(o Percent) bool {
	return p.d.Equal(o.d)
}

func (p Percent) String() string {
	return p.d.String()
}

// Validate rejects values outside [0, 100] and values finer than
// PercentPlaces, which the percent columns could not store exactly
func (p Percent) Validate(field string) error {
	if p.d.IsNegative() || p.d.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s must be between 0 and 100, got %s", ErrInvalidPercentage, field, p.d.String())
	}
	if !p.d.Equal(p.d.Truncate(PercentPlaces)) {
		return fmt.Errorf("%w: %s allows at most %d decimal places, got %s", ErrInvalidPercentage, field, PercentPlaces, p.d.String())
	}
	return nil
}
