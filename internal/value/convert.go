package value

import (
	"math"
	"math/big"
	"math/cmplx"
)

// Abs returns the modulus of a complex value.
func Abs(c Complex) float64 { return cmplx.Abs(c.C) }

// Arg returns the argument of a complex value.
func Arg(c Complex) float64 { return cmplx.Phase(c.C) }

// AsLong extracts an int64 from an integer-bearing value.
func AsLong(v Value) (int64, bool) {
	switch x := v.(type) {
	case Long:
		return int64(x), true
	case BigInt:
		if x.Int.IsInt64() {
			return x.Int.Int64(), true
		}
	}
	return 0, false
}

// AsDouble extracts a float64 from any real numeric value.
func AsDouble(v Value) (float64, bool) {
	switch x := v.(type) {
	case Long:
		return float64(x), true
	case Double:
		return float64(x), true
	case BigInt:
		f, _ := new(big.Float).SetInt(x.Int).Float64()
		return f, true
	case Rational:
		return float64(x.Num) / float64(x.Den), true
	case BigRational:
		f, _ := x.Rat.Float64()
		return f, true
	}
	return 0, false
}

// IsNumeric reports whether v belongs to a real numeric kind.
func IsNumeric(v Value) bool {
	switch v.(type) {
	case Long, Double, BigInt, Rational, BigRational:
		return true
	}
	return false
}

// Equal compares two values, null-safe, by kind-aware deep equality.
// Numeric values of different kinds are compared after widening.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if IsNumeric(a) && IsNumeric(b) {
		return numericEqual(a, b)
	}
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Complex:
		y, ok := b.(Complex)
		return ok && x.C == y.C
	case String:
		y, ok := b.(String)
		return ok && x == y
	case DateTime:
		y, ok := b.(DateTime)
		return ok && x.Time.Equal(y.Time)
	case Elapsed:
		y, ok := b.(Elapsed)
		return ok && x.Duration == y.Duration
	case State:
		y, ok := b.(State)
		if !ok {
			return false
		}
		if x.Name != "" || y.Name != "" {
			return x.Name == y.Name
		}
		if x.Code == nil || y.Code == nil {
			return x.Code == nil && y.Code == nil
		}
		return *x.Code == *y.Code
	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || len(x.Entries) != len(y.Entries) {
			return false
		}
		for k, v := range x.Entries {
			w, present := y.Entries[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	case Opaque:
		y, ok := b.(Opaque)
		return ok && x.X == y.X
	}
	return false
}

func numericEqual(a, b Value) bool {
	ra, exactA := toRat(a)
	rb, exactB := toRat(b)
	if exactA && exactB {
		return ra.Cmp(rb) == 0
	}
	fa, _ := AsDouble(a)
	fb, _ := AsDouble(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false
	}
	return fa == fb
}

func toRat(v Value) (*big.Rat, bool) {
	switch x := v.(type) {
	case Long:
		return new(big.Rat).SetInt64(int64(x)), true
	case BigInt:
		return new(big.Rat).SetInt(x.Int), true
	case Rational:
		return x.Rat(), true
	case BigRational:
		return x.Rat, true
	case Double:
		f := float64(x)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, false
		}
		r := new(big.Rat).SetFloat64(f)
		return r, false
	}
	return nil, false
}
