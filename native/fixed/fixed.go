// Package fixed implements the checked fixed-point arithmetic used by the
// ledger engines. Balances are wads (18 decimals), rates and ratios are rays
// (27 decimals) and aggregate debt values are rads (45 decimals). Every
// operation returns a fresh value and reports overflow, underflow and division
// by zero as errors wrapping ErrArithmetic; no operation saturates silently.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmetic is the root of every arithmetic fault.
	ErrArithmetic = errors.New("arithmetic fault")
	// ErrOverflow indicates a result exceeded 256 bits.
	ErrOverflow = fmt.Errorf("%w: overflow", ErrArithmetic)
	// ErrUnderflow indicates a subtraction dropped below zero.
	ErrUnderflow = fmt.Errorf("%w: underflow", ErrArithmetic)
	// ErrDivByZero indicates a zero divisor.
	ErrDivByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)
)

const (
	WadDecimals = 18
	RayDecimals = 27
	RadDecimals = 45
)

var (
	wad = uint256.MustFromDecimal("1000000000000000000")
	ray = uint256.MustFromDecimal("1000000000000000000000000000")
	rad = uint256.MustFromDecimal("1000000000000000000000000000000000000000000000")
	max = new(uint256.Int).SetAllOne()
)

// WAD returns 10^18.
func WAD() *uint256.Int { return new(uint256.Int).Set(wad) }

// RAY returns 10^27.
func RAY() *uint256.Int { return new(uint256.Int).Set(ray) }

// RAD returns 10^45.
func RAD() *uint256.Int { return new(uint256.Int).Set(rad) }

// Max returns 2^256-1.
func Max() *uint256.Int { return new(uint256.Int).Set(max) }

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// Wad scales a whole number into wad precision. It panics on overflow and is
// intended for constants and tests.
func Wad(n uint64) *uint256.Int { return mustScale(n, wad) }

// Ray scales a whole number into ray precision.
func Ray(n uint64) *uint256.Int { return mustScale(n, ray) }

// Rad scales a whole number into rad precision.
func Rad(n uint64) *uint256.Int { return mustScale(n, rad) }

func mustScale(n uint64, unit *uint256.Int) *uint256.Int {
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(n), unit)
	if overflow {
		panic("fixed: scale overflow")
	}
	return out
}

// Parse converts a decimal string such as "1.05" into a fixed-point integer
// with the requested number of decimals. Digits beyond the precision are
// rejected rather than rounded.
func Parse(value string, decimals int) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("fixed: empty value")
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("fixed: negative value %q", value)
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("fixed: %q has no digits", value)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("fixed: %q exceeds %d decimals", value, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	out, err := uint256.FromDecimal(strings.TrimLeft(digits, "0"))
	if err != nil {
		if strings.Trim(digits, "0") == "" {
			return Zero(), nil
		}
		return nil, fmt.Errorf("fixed: parse %q: %w", value, err)
	}
	return out, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(value string, decimals int) *uint256.Int {
	out, err := Parse(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// Format renders a fixed-point integer as a decimal string with trailing
// fractional zeros removed.
func Format(x *uint256.Int, decimals int) string {
	if x == nil {
		return "0"
	}
	digits := x.Dec()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns x - y.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return out, nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDiv returns floor(x * y / d) with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDivUp is MulDiv rounded towards positive infinity.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	num := new(big.Int).Mul(x.ToBig(), y.ToBig())
	q, r := new(big.Int).QuoRem(num, d.ToBig(), new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	out, overflow := uint256.FromBig(q)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Div returns floor(x / y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// Wmul returns x * y / WAD.
func Wmul(x, y *uint256.Int) (*uint256.Int, error) { return MulDiv(x, y, wad) }

// Rmul returns x * y / RAY.
func Rmul(x, y *uint256.Int) (*uint256.Int, error) { return MulDiv(x, y, ray) }

// Wdiv returns x * WAD / y.
func Wdiv(x, y *uint256.Int) (*uint256.Int, error) { return MulDiv(x, wad, y) }

// Rdiv returns x * RAY / y.
func Rdiv(x, y *uint256.Int) (*uint256.Int, error) { return MulDiv(x, ray, y) }

// Rpow raises the ray x to the integer power n using exponentiation by
// squaring with half-up rounding at each step.
func Rpow(x *uint256.Int, n uint64) (*uint256.Int, error) {
	half := new(uint256.Int).Rsh(ray, 1)
	z := RAY()
	if n == 0 {
		return z, nil
	}
	if x.IsZero() {
		return Zero(), nil
	}
	base := new(uint256.Int).Set(x)
	for ; n > 0; n >>= 1 {
		if n&1 == 1 {
			next, err := rmulHalfUp(z, base, half)
			if err != nil {
				return nil, err
			}
			z = next
		}
		if n > 1 {
			next, err := rmulHalfUp(base, base, half)
			if err != nil {
				return nil, err
			}
			base = next
		}
	}
	return z, nil
}

func rmulHalfUp(x, y, half *uint256.Int) (*uint256.Int, error) {
	prod, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	prod, err = Add(prod, half)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(prod, ray), nil
}

// Min returns a copy of the smaller argument.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// ApplyDelta returns x + d for a signed delta d.
func ApplyDelta(x *uint256.Int, d *big.Int) (*uint256.Int, error) {
	if d == nil || d.Sign() == 0 {
		return new(uint256.Int).Set(x), nil
	}
	abs, overflow := uint256.FromBig(new(big.Int).Abs(d))
	if overflow {
		return nil, ErrOverflow
	}
	if d.Sign() > 0 {
		return Add(x, abs)
	}
	return Sub(x, abs)
}

// Abs returns |d| as an unsigned value.
func Abs(d *big.Int) (*uint256.Int, error) {
	if d == nil {
		return Zero(), nil
	}
	abs, overflow := uint256.FromBig(new(big.Int).Abs(d))
	if overflow {
		return nil, ErrOverflow
	}
	return abs, nil
}
