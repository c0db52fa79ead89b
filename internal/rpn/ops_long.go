package rpn

import (
	"strconv"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

func divisionByZero() *rpnerror.Error {
	return &rpnerror.Error{Kind: rpnerror.DivisionError}
}

func popLong2(t *Task) (x, y int64, err *rpnerror.Error) {
	y, err = t.Stack.PopLong()
	if err != nil {
		return
	}
	x, err = t.Stack.PopLong()
	return
}

// registerLongOps installs the 64-bit integer operations. The filters are
// strict on Long pairs so that mixed numeric operands fall through to the
// wider domains.
func registerLongOps(r *Registry) {
	longPair := NewFilter().Is(0, value.KindLong).Is(1, value.KindLong).And()
	longTop := topIs(value.KindLong)

	binary := func(fn func(x, y int64) (int64, *rpnerror.Error)) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, y, err := popLong2(t)
			if err != nil {
				return err
			}
			z, err := fn(x, y)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Long(z))
			return nil
		}
	}
	unary := func(fn func(x int64) int64) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := t.Stack.PopLong()
			if err != nil {
				return err
			}
			t.Stack.Push(value.Long(fn(x)))
			return nil
		}
	}
	compare := func(fn func(x, y int64) bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, y, err := popLong2(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Bool(fn(x, y)))
			return nil
		}
	}

	r.register("+", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x + y, nil
	}))
	r.register("-", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x - y, nil
	}))
	r.register("*", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x * y, nil
	}))
	r.register("/", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		if y == 0 {
			return 0, divisionByZero()
		}
		return x / y, nil
	}))
	r.register("%", longPair, binary(longRem))
	r.register("mod", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		z, err := longRem(x, y)
		if err != nil {
			return 0, err
		}
		if z < 0 {
			if y < 0 {
				z -= y
			} else {
				z += y
			}
		}
		return z, nil
	}))
	r.register("/%", longPair, func(t *Task, ref Reference) error {
		x, y, err := popLong2(t)
		if err != nil {
			return err
		}
		if y == 0 {
			return divisionByZero()
		}
		t.Stack.Push(value.Long(x % y))
		t.Stack.Push(value.Long(x / y))
		return nil
	})

	r.register("abs", longTop, unary(func(x int64) int64 {
		if x < 0 {
			return -x
		}
		return x
	}))
	r.register("neg", longTop, unary(func(x int64) int64 { return -x }))
	r.register("++", longTop, unary(func(x int64) int64 { return x + 1 }))
	r.register("--", longTop, unary(func(x int64) int64 { return x - 1 }))
	r.register("sgn", longTop, unary(func(x int64) int64 {
		switch {
		case x < 0:
			return -1
		case x > 0:
			return 1
		}
		return 0
	}))
	r.register("min", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		if y < x {
			return y, nil
		}
		return x, nil
	}))
	r.register("max", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		if y > x {
			return y, nil
		}
		return x, nil
	}))

	r.register("eq", longPair, compare(func(x, y int64) bool { return x == y }))
	r.register("ne", longPair, compare(func(x, y int64) bool { return x != y }))
	r.register("lt", longPair, compare(func(x, y int64) bool { return x < y }))
	r.register("le", longPair, compare(func(x, y int64) bool { return x <= y }))
	r.register("gt", longPair, compare(func(x, y int64) bool { return x > y }))
	r.register("ge", longPair, compare(func(x, y int64) bool { return x >= y }))

	r.register("and", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x & y, nil
	}))
	r.register("or", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x | y, nil
	}))
	r.register("xor", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x ^ y, nil
	}))
	r.register("not", longTop, unary(func(x int64) int64 { return ^x }))
	r.register("lshft", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x << uint64(y&63), nil
	}))
	r.register("rshft", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return x >> uint64(y&63), nil
	}))
	r.register("rshftz", longPair, binary(func(x, y int64) (int64, *rpnerror.Error) {
		return int64(uint64(x) >> uint64(y&63)), nil
	}))

	r.register("0?", longTop, compare0(func(x int64) bool { return x == 0 }))
	r.register("0+?", longTop, compare0(func(x int64) bool { return x >= 0 }))
	r.register("0-?", longTop, compare0(func(x int64) bool { return x <= 0 }))

	r.register("int", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		i, ok := longFrom(v)
		if !ok {
			return rpnerror.New(rpnerror.ConvertFailed, "cannot convert %s to int", v.Kind())
		}
		t.Stack.Push(value.Long(i))
		return nil
	})
	r.register("int?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		_, ok := longFrom(v)
		t.Stack.Push(value.Bool(ok))
		return nil
	})
}

func compare0(fn func(x int64) bool) ExecFunc {
	return func(t *Task, ref Reference) error {
		x, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(fn(x)))
		return nil
	}
}

// longRem is the remainder with the divisor sign normalized: a negative
// divisor negates both operands first.
func longRem(x, y int64) (int64, *rpnerror.Error) {
	if y == 0 {
		return 0, divisionByZero()
	}
	if y < 0 {
		x, y = -x, -y
	}
	return x % y, nil
}

func longFrom(v value.Value) (int64, bool) {
	switch x := v.(type) {
	case value.Long:
		return int64(x), true
	case value.Double:
		return int64(x), true
	case value.BigInt:
		if x.Int.IsInt64() {
			return x.Int.Int64(), true
		}
	case value.String:
		if i, err := strconv.ParseInt(strings.TrimSpace(string(x)), 0, 64); err == nil {
			return i, true
		}
	case value.Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
