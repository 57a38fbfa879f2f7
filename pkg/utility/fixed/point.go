package fixed

import (
	"database/sql/driver"
	"fmt"

	"github.com/govalues/decimal"
)

// Point is an unsafe wrapper around decimal implementation. Caller must make sure the calculations
// are correct and will not result in an error state, otherwise it will panic.
// Fallible variants (TryX) are provided where inputs are not under the caller's control.
type Point struct {
	v decimal.Decimal
}

func FromInt(value int, scale int) Point {
	return Point{must(decimal.New(int64(value), scale))}
}

func FromInt64(value int64, scale int) Point {
	return Point{must(decimal.New(value, scale))}
}

// FromFloat64 is meant for constants and test fixtures only, never for values
// that take part in bookkeeping.
func FromFloat64(value float64) Point {
	return Point{must(decimal.NewFromFloat64(value))}
}

func Parse(s string) (Point, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return Point{}, fmt.Errorf("unable to parse %q as decimal: %w", s, err)
	}
	return Point{d}, nil
}

func MustParse(s string) Point {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Point) String() string           { return p.v.String() }
func (p Point) Float64() (float64, bool) { return p.v.Float64() }

// F64 converts p for reporting, ignoring precision loss.
func (p Point) F64() float64 {
	f, _ := p.v.Float64()
	return f
}

func (p Point) Scale() int { return p.v.Scale() }
func (p Point) Sign() int  { return p.v.Sign() }

func (p Point) Abs() Point { return Point{p.v.Abs()} }
func (p Point) Neg() Point { return Point{p.v.Neg()} }

func (p Point) Add(o Point) Point { return Point{must(p.v.Add(o.v))} }
func (p Point) Sub(o Point) Point { return Point{must(p.v.Sub(o.v))} }
func (p Point) Mul(o Point) Point { return Point{must(p.v.Mul(o.v))} }
func (p Point) Div(o Point) Point { return Point{must(p.v.Quo(o.v))} }

func (p Point) MulInt64(o int64) Point { return Point{must(p.v.Mul(decimal.MustNew(o, 0)))} }
func (p Point) MulInt(o int) Point     { return Point{must(p.v.Mul(decimal.MustNew(int64(o), 0)))} }
func (p Point) DivInt64(o int64) Point { return Point{must(p.v.Quo(decimal.MustNew(o, 0)))} }
func (p Point) DivInt(o int) Point     { return Point{must(p.v.Quo(decimal.MustNew(int64(o), 0)))} }

func (p Point) Eq(o Point) bool  { return p.v.Cmp(o.v) == 0 }
func (p Point) Gt(o Point) bool  { return p.v.Cmp(o.v) > 0 }
func (p Point) Lt(o Point) bool  { return p.v.Cmp(o.v) < 0 }
func (p Point) Gte(o Point) bool { return p.v.Cmp(o.v) >= 0 }
func (p Point) Lte(o Point) bool { return p.v.Cmp(o.v) <= 0 }
func (p Point) Cmp(o Point) int  { return p.v.Cmp(o.v) }

func (p Point) IsZero() bool { return p.v.IsZero() }
func (p Point) IsNeg() bool  { return p.v.IsNeg() }
func (p Point) IsPos() bool  { return p.v.IsPos() }

func (p Point) Min(o Point) Point {
	if p.Lte(o) {
		return p
	}
	return o
}

func (p Point) Max(o Point) Point {
	if p.Gte(o) {
		return p
	}
	return o
}

func (p Point) Rescale(scale int) Point { return Point{p.v.Rescale(scale)} }
func (p Point) Round(scale int) Point   { return Point{p.v.Round(scale)} }
func (p Point) Trunc(scale int) Point   { return Point{p.v.Trunc(scale)} }
func (p Point) Trim(scale int) Point    { return Point{p.v.Trim(scale)} }

func (p Point) Pow(o Point) Point { return Point{must(p.v.Pow(o.v))} }
func (p Point) Sqrt() Point       { return Point{must(p.v.Sqrt())} }

func (p Point) Exp() Point { return Point{must(p.v.Exp())} }
func (p Point) Log() Point { return Point{must(p.v.Log())} }

func (p Point) TryMul(o Point) (Point, error) {
	v, err := p.v.Mul(o.v)
	return Point{v}, err
}

func (p Point) TryDiv(o Point) (Point, error) {
	v, err := p.v.Quo(o.v)
	return Point{v}, err
}

func (p Point) TryExp() (Point, error) {
	v, err := p.v.Exp()
	return Point{v}, err
}

func (p Point) TryLog() (Point, error) {
	v, err := p.v.Log()
	return Point{v}, err
}

func (p Point) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Point) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan accepts the textual and numeric representations database drivers hand
// out for DECIMAL / NUMERIC / DOUBLE columns.
func (p *Point) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Zero
		return nil
	case string:
		return p.UnmarshalText([]byte(v))
	case []byte:
		return p.UnmarshalText(v)
	case int64:
		*p = FromInt64(v, 0)
		return nil
	case float64:
		d, err := decimal.NewFromFloat64(v)
		if err != nil {
			return fmt.Errorf("unable to scan %v: %w", v, err)
		}
		*p = Point{d}
		return nil
	default:
		return fmt.Errorf("unable to scan %T into fixed.Point", src)
	}
}

func must(v decimal.Decimal, err error) decimal.Decimal {
	if err == nil {
		// Return in the happy path
		return v
	}
	panic(err)
}
