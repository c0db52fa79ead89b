package rpn

import (
	"math"
	"strconv"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// registerDoubleOps installs the IEEE-754 operations. Their filters accept
// any real numeric operands, making this module the fallback for mixed
// numeric arithmetic; the exact domains register after it and take
// precedence on their own kinds.
func registerDoubleOps(r *Registry) {
	pair := top2AreNumber()
	top := topIsNumber()

	binary := func(fn func(x, y float64) float64) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			x, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			t.Stack.Push(value.Double(fn(x, y)))
			return nil
		}
	}
	unary := func(fn func(x float64) float64) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			t.Stack.Push(value.Double(fn(x)))
			return nil
		}
	}
	compare := func(fn func(x, y float64) bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			x, err := t.Stack.PopDouble()
			if err != nil {
				return err
			}
			t.Stack.Push(value.Bool(fn(x, y)))
			return nil
		}
	}

	r.register("+", pair, binary(func(x, y float64) float64 { return x + y }))
	r.register("-", pair, binary(func(x, y float64) float64 { return x - y }))
	r.register("*", pair, binary(func(x, y float64) float64 { return x * y }))
	r.register("/", pair, binary(func(x, y float64) float64 { return x / y }))
	r.register("%", pair, binary(floatRem))
	r.register("mod", pair, binary(func(x, y float64) float64 {
		z := floatRem(x, y)
		if z < 0 {
			z += math.Abs(y)
		}
		return z
	}))
	r.register("**", pair, binary(math.Pow))
	r.register("hypot", pair, binary(math.Hypot))

	r.register("abs", top, unary(math.Abs))
	r.register("neg", top, unary(func(x float64) float64 { return -x }))
	r.register("sgn", top, unary(func(x float64) float64 {
		switch {
		case x < 0:
			return -1
		case x > 0:
			return 1
		}
		return x
	}))
	r.register("min", pair, binary(math.Min))
	r.register("max", pair, binary(math.Max))

	// round is half-up: ties go toward positive infinity.
	r.register("round", top, unary(func(x float64) float64 {
		return math.Floor(x + 0.5)
	}))
	r.register("floor", top, unary(math.Floor))
	r.register("ceil", top, unary(math.Ceil))
	r.register("sqrt", top, unary(math.Sqrt))
	r.register("cbrt", top, unary(math.Cbrt))

	r.register("sin", top, unary(math.Sin))
	r.register("cos", top, unary(math.Cos))
	r.register("tan", top, unary(math.Tan))
	r.register("asin", top, unary(math.Asin))
	r.register("acos", top, unary(math.Acos))
	r.register("atan", top, unary(math.Atan))
	r.register("sinh", top, unary(math.Sinh))
	r.register("cosh", top, unary(math.Cosh))
	r.register("tanh", top, unary(math.Tanh))
	r.register("exp", top, unary(math.Exp))
	r.register("log", top, unary(math.Log))
	r.register("log10", top, unary(math.Log10))

	constant := func(x float64) ExecFunc {
		return func(t *Task, ref Reference) error {
			t.Stack.Push(value.Double(x))
			return nil
		}
	}
	r.register("pi", nil, constant(math.Pi))
	r.register("e", nil, constant(math.E))
	r.register("+inf", nil, constant(math.Inf(1)))
	r.register("-inf", nil, constant(math.Inf(-1)))
	r.register("nan", nil, constant(math.NaN()))

	r.register("eq", pair, compare(func(x, y float64) bool { return x == y }))
	r.register("ne", pair, compare(func(x, y float64) bool { return x != y }))
	r.register("lt", pair, compare(func(x, y float64) bool { return x < y }))
	r.register("le", pair, compare(func(x, y float64) bool { return x <= y }))
	r.register("gt", pair, compare(func(x, y float64) bool { return x > y }))
	r.register("ge", pair, compare(func(x, y float64) bool { return x >= y }))

	r.register("nan?", top, func(t *Task, ref Reference) error {
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(math.IsNaN(x)))
		return nil
	})
	r.register("inf?", top, func(t *Task, ref Reference) error {
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(math.IsInf(x, 0)))
		return nil
	})
	r.register("0?", top, func(t *Task, ref Reference) error {
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(x == 0))
		return nil
	})
	r.register("0+?", top, func(t *Task, ref Reference) error {
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(x >= 0))
		return nil
	})
	r.register("0-?", top, func(t *Task, ref Reference) error {
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(x <= 0))
		return nil
	})

	// 0~? and eq~ take a tolerance from the top of stack.
	r.register("0~?", pair, func(t *Task, ref Reference) error {
		tolerance, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(math.Abs(x) <= math.Abs(tolerance)))
		return nil
	})
	r.register("eq~", NewFilter().IsNumber(0).IsNumber(1).And().IsNumber(2).And(), func(t *Task, ref Reference) error {
		tolerance, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		y, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		x, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(math.Abs(x-y) <= math.Abs(tolerance)))
		return nil
	})

	r.register("float", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		f, ok := doubleFrom(v)
		if !ok {
			return rpnerror.New(rpnerror.ConvertFailed, "cannot convert %s to float", v.Kind())
		}
		t.Stack.Push(value.Double(f))
		return nil
	})
	r.register("float?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		_, ok := doubleFrom(v)
		t.Stack.Push(value.Bool(ok))
		return nil
	})
}

// floatRem normalizes the divisor sign before taking the remainder.
func floatRem(x, y float64) float64 {
	if y < 0 {
		x, y = -x, -y
	}
	return math.Mod(x, y)
}

func doubleFrom(v value.Value) (float64, bool) {
	if f, ok := value.AsDouble(v); ok {
		return f, true
	}
	if s, ok := v.(value.String); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
