package rpn

import (
	"math/cmplx"
	"strconv"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

func popComplex(t *Task) (value.Complex, *rpnerror.Error) {
	v, err := t.Stack.Pop()
	if err != nil {
		return value.Complex{}, err
	}
	switch x := v.(type) {
	case value.Complex:
		return x, nil
	case value.Long:
		return value.Complex{C: complex(float64(x), 0)}, nil
	case value.Double:
		return value.Complex{C: complex(float64(x), 0)}, nil
	}
	if f, ok := value.AsDouble(v); ok {
		return value.Complex{C: complex(f, 0)}, nil
	}
	return value.Complex{}, rpnerror.New(rpnerror.CastMismatch,
		"expected complex, got %s", v.Kind())
}

// registerComplexOps installs the complex-number operations. Binary
// filters accept a complex with either another complex or a real number;
// the polar flag of the left operand wins for the result presentation.
func registerComplexOps(r *Registry) {
	isCplx := func(i int) *Filter { return NewFilter().Is(i, value.KindComplex) }
	pair := NewFilter().
		Is(0, value.KindComplex).Is(1, value.KindComplex).And().
		Is(0, value.KindComplex).IsNumber(1).And().Or().
		IsNumber(0).Is(1, value.KindComplex).And().Or()
	top := isCplx(0)

	binary := func(fn func(x, y complex128) complex128) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popComplex(t)
			if err != nil {
				return err
			}
			x, err := popComplex(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Complex{C: fn(x.C, y.C), Polar: x.Polar})
			return nil
		}
	}
	unary := func(fn func(x complex128) complex128) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := popComplex(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Complex{C: fn(x.C), Polar: x.Polar})
			return nil
		}
	}
	real1 := func(fn func(x complex128) float64) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := popComplex(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Double(fn(x.C)))
			return nil
		}
	}

	r.register("+", pair, binary(func(x, y complex128) complex128 { return x + y }))
	r.register("-", pair, binary(func(x, y complex128) complex128 { return x - y }))
	r.register("*", pair, binary(func(x, y complex128) complex128 { return x * y }))
	r.register("/", pair, binary(func(x, y complex128) complex128 { return x / y }))
	r.register("pow", pair, binary(cmplx.Pow))
	r.register("**", pair, binary(cmplx.Pow))

	r.register("abs", top, real1(cmplx.Abs))
	r.register("arg", top, real1(cmplx.Phase))
	r.register("real", top, real1(func(x complex128) float64 { return real(x) }))
	r.register("imag", top, real1(func(x complex128) float64 { return imag(x) }))
	r.register("conj", top, unary(cmplx.Conj))
	r.register("neg", top, unary(func(x complex128) complex128 { return -x }))
	r.register("sgn", top, unary(func(x complex128) complex128 {
		abs := cmplx.Abs(x)
		if abs == 0 {
			return 0
		}
		return x / complex(abs, 0)
	}))

	r.register("sin", top, unary(cmplx.Sin))
	r.register("cos", top, unary(cmplx.Cos))
	r.register("tan", top, unary(cmplx.Tan))
	r.register("asin", top, unary(cmplx.Asin))
	r.register("acos", top, unary(cmplx.Acos))
	r.register("atan", top, unary(cmplx.Atan))
	r.register("sinh", top, unary(cmplx.Sinh))
	r.register("cosh", top, unary(cmplx.Cosh))
	r.register("tanh", top, unary(cmplx.Tanh))
	r.register("exp", top, unary(cmplx.Exp))
	r.register("log", top, unary(cmplx.Log))
	r.register("sqrt", top, unary(cmplx.Sqrt))

	r.register("i", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Complex{C: complex(0, 1)})
		return nil
	})

	// split pushes real then imaginary for a cartesian value, magnitude
	// then angle for a polar one.
	r.register("split", top, func(t *Task, ref Reference) error {
		x, err := popComplex(t)
		if err != nil {
			return err
		}
		if x.Polar {
			t.Stack.Push(value.Double(cmplx.Abs(x.C)))
			t.Stack.Push(value.Double(cmplx.Phase(x.C)))
		} else {
			t.Stack.Push(value.Double(real(x.C)))
			t.Stack.Push(value.Double(imag(x.C)))
		}
		return nil
	})

	convert := func(polar bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			v, err := t.Stack.Pop()
			if err != nil {
				return err
			}
			switch x := v.(type) {
			case value.Complex:
				x.Polar = polar
				t.Stack.Push(x)
				return nil
			case value.String:
				c, ok := parseComplex(string(x))
				if !ok {
					return rpnerror.New(rpnerror.ConvertFailed, "cannot parse complex %q", x)
				}
				t.Stack.Push(value.Complex{C: c, Polar: polar})
				return nil
			}
			// two numbers: the popped value is the second component.
			second, ok := value.AsDouble(v)
			if !ok {
				return rpnerror.New(rpnerror.CastMismatch, "expected complex, string or numbers")
			}
			first, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			if polar {
				t.Stack.Push(value.Complex{C: cmplx.Rect(first, second), Polar: true})
			} else {
				t.Stack.Push(value.Complex{C: complex(first, second)})
			}
			return nil
		}
	}
	r.register("cplx", topPresent(), convert(false))
	r.register("polar", topPresent(), convert(true))
}

// parseComplex reads "a+bj" / "a-bj" / "bj" / "a" forms.
func parseComplex(s string) (complex128, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "()"))
	if s == "" {
		return 0, false
	}
	if !strings.ContainsAny(s, "ij") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return complex(f, 0), true
	}
	body := strings.TrimRight(s, "ij")
	// find the sign separating real and imaginary parts, skipping a
	// leading sign and exponent signs.
	split := -1
	for i := 1; i < len(body); i++ {
		if (body[i] == '+' || body[i] == '-') && body[i-1] != 'e' && body[i-1] != 'E' {
			split = i
		}
	}
	if split < 0 {
		im, err := strconv.ParseFloat(body, 64)
		if err != nil {
			if body == "" || body == "+" {
				im, err = 1, nil
			} else if body == "-" {
				im, err = -1, nil
			} else {
				return 0, false
			}
		}
		return complex(0, im), true
	}
	re, err := strconv.ParseFloat(body[:split], 64)
	if err != nil {
		return 0, false
	}
	imText := body[split:]
	var im float64
	switch imText {
	case "+":
		im = 1
	case "-":
		im = -1
	default:
		im, err = strconv.ParseFloat(imText, 64)
		if err != nil {
			return 0, false
		}
	}
	return complex(re, im), true
}
