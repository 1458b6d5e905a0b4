// Package fixed provides checked unsigned fixed-point arithmetic for the
// betting engine. Amounts are raw integers in the settlement asset's base
// unit; odds and fee rates are scaled by Precision.
//
// Every helper fails instead of wrapping or truncating to zero on division.
package fixed

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Precision is the fixed-point scale for odds and fee rates (basis points).
const Precision = 10_000

var (
	// ErrDivisionByZero is returned before any division by a zero divisor.
	ErrDivisionByZero = errors.New("fixed: division by zero")

	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixed: arithmetic overflow")

	precision = uint256.NewInt(Precision)
)

// Zero returns a fresh zero value.
func Zero() uint256.Int { return uint256.Int{} }

// New returns v as a uint256 value.
func New(v uint64) uint256.Int { return *uint256.NewInt(v) }

// Scale returns the Precision constant.
func Scale() uint256.Int { return *precision }

// Parse reads a base-10 integer string.
func Parse(s string) (uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return *v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Add returns x + y.
func Add(x, y uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&x, &y); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x - y and fails when y > x.
func Sub(x, y uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&x, &y); underflow {
		return uint256.Int{}, fmt.Errorf("%w: %s - %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// SatSub returns max(0, x - y).
func SatSub(x, y uint256.Int) uint256.Int {
	if x.Cmp(&y) <= 0 {
		return uint256.Int{}
	}
	var z uint256.Int
	z.Sub(&x, &y)
	return z
}

// Mul returns x * y.
func Mul(x, y uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(&x, &y); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Div returns floor(x / y).
func Div(x, y uint256.Int) (uint256.Int, error) {
	if y.IsZero() {
		return uint256.Int{}, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, x.Dec())
	}
	var z uint256.Int
	z.Div(&x, &y)
	return z, nil
}

// MulDiv returns floor(x * y / d). The intermediate product is checked for
// overflow so callers get the same result as an unbounded computation or
// an error.
func MulDiv(x, y, d uint256.Int) (uint256.Int, error) {
	p, err := Mul(x, y)
	if err != nil {
		return uint256.Int{}, err
	}
	return Div(p, d)
}

// Ratio returns x * Precision / y.
func Ratio(x, y uint256.Int) (uint256.Int, error) {
	return MulDiv(x, *precision, y)
}

// Apply returns x * rate / Precision, where rate is in basis points.
func Apply(x, rate uint256.Int) (uint256.Int, error) {
	return MulDiv(x, rate, *precision)
}

// Sum adds all values.
func Sum(xs []uint256.Int) (uint256.Int, error) {
	var total uint256.Int
	for _, x := range xs {
		var err error
		if total, err = Add(total, x); err != nil {
			return uint256.Int{}, err
		}
	}
	return total, nil
}

// Min returns the smaller of x and y.
func Min(x, y uint256.Int) uint256.Int {
	if x.Cmp(&y) <= 0 {
		return x
	}
	return y
}

// AbsDiff returns |x - y| and whether x >= y.
func AbsDiff(x, y uint256.Int) (uint256.Int, bool) {
	var z uint256.Int
	if x.Cmp(&y) >= 0 {
		z.Sub(&x, &y)
		return z, true
	}
	z.Sub(&y, &x)
	return z, false
}
