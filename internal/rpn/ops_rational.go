package rpn

import (
	"math/big"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// narrowRat reduces a big rational to the 64-bit Rational kind, failing on
// overflow of either component.
func narrowRat(r *big.Rat) (value.Rational, *rpnerror.Error) {
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return value.Rational{}, &rpnerror.Error{Kind: rpnerror.ConvertFailed}
	}
	return value.Rational{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

func popRational(t *Task) (value.Rational, *rpnerror.Error) {
	v, err := t.Stack.Pop()
	if err != nil {
		return value.Rational{}, err
	}
	r, ok := v.(value.Rational)
	if !ok {
		return value.Rational{}, rpnerror.New(rpnerror.CastMismatch,
			"expected rational, got %s", v.Kind())
	}
	return r, nil
}

// registerRationalOps installs the 64-bit rational operations. Arithmetic
// runs exactly over big rationals and narrows the result.
func registerRationalOps(r *Registry) {
	pair := top2Are(value.KindRational)
	top := topIs(value.KindRational)

	binary := func(fn func(z, x, y *big.Rat) *rpnerror.Error) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popRational(t)
			if err != nil {
				return err
			}
			x, err := popRational(t)
			if err != nil {
				return err
			}
			z := new(big.Rat)
			if err := fn(z, x.Rat(), y.Rat()); err != nil {
				return err
			}
			narrowed, err := narrowRat(z)
			if err != nil {
				return err
			}
			t.Stack.Push(narrowed)
			return nil
		}
	}

	r.register("+", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Add(x, y)
		return nil
	}))
	r.register("-", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Sub(x, y)
		return nil
	}))
	r.register("*", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Mul(x, y)
		return nil
	}))
	r.register("/", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		if y.Sign() == 0 {
			return divisionByZero()
		}
		z.Quo(x, y)
		return nil
	}))

	r.register("1/", top, func(t *Task, ref Reference) error {
		x, err := popRational(t)
		if err != nil {
			return err
		}
		if x.Num == 0 {
			return divisionByZero()
		}
		narrowed, err := narrowRat(new(big.Rat).Inv(x.Rat()))
		if err != nil {
			return err
		}
		t.Stack.Push(narrowed)
		return nil
	})
	r.register("abs", top, func(t *Task, ref Reference) error {
		x, err := popRational(t)
		if err != nil {
			return err
		}
		if x.Num < 0 {
			x.Num = -x.Num
		}
		t.Stack.Push(x)
		return nil
	})
	r.register("neg", top, func(t *Task, ref Reference) error {
		x, err := popRational(t)
		if err != nil {
			return err
		}
		x.Num = -x.Num
		t.Stack.Push(x)
		return nil
	})
	r.register("sgn", top, func(t *Task, ref Reference) error {
		x, err := popRational(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Long(int64(x.Rat().Sign())))
		return nil
	})
	r.register("split", top, func(t *Task, ref Reference) error {
		x, err := popRational(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Long(x.Num))
		t.Stack.Push(value.Long(x.Den))
		return nil
	})

	// rat builds a rational from a "N/D" string, from two integers, or by
	// narrowing a big rational.
	r.register("rat", topIs(value.KindString), func(t *Task, ref Reference) error {
		s, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		rat, ok := parseRat(s)
		if !ok {
			return rpnerror.New(rpnerror.ConvertFailed, "cannot parse rational %q", s)
		}
		narrowed, err := narrowRat(rat)
		if err != nil {
			return err
		}
		t.Stack.Push(narrowed)
		return nil
	})
	r.register("rat", top2AreLong(), func(t *Task, ref Reference) error {
		den, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		num, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		if den == 0 {
			return divisionByZero()
		}
		narrowed, err := narrowRat(big.NewRat(num, den))
		if err != nil {
			return err
		}
		t.Stack.Push(narrowed)
		return nil
	})
	r.register("rat", topIs(value.KindBigRational), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		narrowed, nerr := narrowRat(v.(value.BigRational).Rat)
		if nerr != nil {
			return nerr
		}
		t.Stack.Push(narrowed)
		return nil
	})
	r.register("rat", topIs(value.KindRational), func(t *Task, ref Reference) error {
		return nil // already a rational
	})
}

// registerBigRationalOps installs the arbitrary-precision rational
// operations; the filters also accept 64-bit rationals so mixed pairs
// widen.
func registerBigRationalOps(r *Registry) {
	either := func(i int) *Filter {
		return NewFilter().Is(i, value.KindBigRational).Is(i, value.KindRational).Or()
	}
	pair := NewFilter().
		Is(0, value.KindBigRational).Is(1, value.KindBigRational).And().
		Is(0, value.KindBigRational).Is(1, value.KindRational).And().Or().
		Is(0, value.KindRational).Is(1, value.KindBigRational).And().Or()
	top := topIs(value.KindBigRational)

	popWide := func(t *Task) (*big.Rat, *rpnerror.Error) {
		v, err := t.Stack.Pop()
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case value.Rational:
			return x.Rat(), nil
		case value.BigRational:
			return x.Rat, nil
		}
		return nil, rpnerror.New(rpnerror.CastMismatch, "expected rational, got %s", v.Kind())
	}

	binary := func(fn func(z, x, y *big.Rat) *rpnerror.Error) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popWide(t)
			if err != nil {
				return err
			}
			x, err := popWide(t)
			if err != nil {
				return err
			}
			z := new(big.Rat)
			if err := fn(z, x, y); err != nil {
				return err
			}
			t.Stack.Push(value.BigRational{Rat: z})
			return nil
		}
	}

	r.register("+", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Add(x, y)
		return nil
	}))
	r.register("-", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Sub(x, y)
		return nil
	}))
	r.register("*", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		z.Mul(x, y)
		return nil
	}))
	r.register("/", pair, binary(func(z, x, y *big.Rat) *rpnerror.Error {
		if y.Sign() == 0 {
			return divisionByZero()
		}
		z.Quo(x, y)
		return nil
	}))

	r.register("1/", top, func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		if x.Sign() == 0 {
			return divisionByZero()
		}
		t.Stack.Push(value.BigRational{Rat: new(big.Rat).Inv(x)})
		return nil
	})
	r.register("abs", top, func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.BigRational{Rat: new(big.Rat).Abs(x)})
		return nil
	})
	r.register("neg", top, func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.BigRational{Rat: new(big.Rat).Neg(x)})
		return nil
	})
	r.register("sgn", top, func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Long(int64(x.Sign())))
		return nil
	})
	r.register("split", top, func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.NewBigInt(new(big.Int).Set(x.Num())))
		t.Stack.Push(value.NewBigInt(new(big.Int).Set(x.Denom())))
		return nil
	})

	// bigrat widens a rational, parses a "N/D" string, or builds from two
	// integers.
	r.register("bigrat", either(0), func(t *Task, ref Reference) error {
		x, err := popWide(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.BigRational{Rat: x})
		return nil
	})
	r.register("bigrat", topIs(value.KindString), func(t *Task, ref Reference) error {
		s, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		rat, ok := parseRat(s)
		if !ok {
			return rpnerror.New(rpnerror.ConvertFailed, "cannot parse rational %q", s)
		}
		t.Stack.Push(value.BigRational{Rat: rat})
		return nil
	})
	r.register("bigrat", NewFilter().IsInteger(0).IsInteger(1).And(), func(t *Task, ref Reference) error {
		den, err := popBigInt(t)
		if err != nil {
			return err
		}
		num, err := popBigInt(t)
		if err != nil {
			return err
		}
		if den.Sign() == 0 {
			return divisionByZero()
		}
		t.Stack.Push(value.BigRational{Rat: new(big.Rat).SetFrac(num, den)})
		return nil
	})
}

// parseRat parses "N/D" or a plain integer.
func parseRat(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if r, ok := new(big.Rat).SetString(s); ok {
		return r, true
	}
	return nil, false
}
