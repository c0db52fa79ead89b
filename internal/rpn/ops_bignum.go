package rpn

import (
	"math"
	"math/big"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

func popBigInt(t *Task) (*big.Int, *rpnerror.Error) {
	v, err := t.Stack.Pop()
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case value.Long:
		return big.NewInt(int64(x)), nil
	case value.BigInt:
		return x.Int, nil
	}
	return nil, rpnerror.New(rpnerror.CastMismatch, "expected integer, got %s", v.Kind())
}

// registerBigIntOps installs the arbitrary-precision integer operations.
// The filters accept any integer pair; the long module registers after
// this one and keeps Long pairs for itself.
func registerBigIntOps(r *Registry) {
	pair := NewFilter().IsInteger(0).IsInteger(1).And()
	top := NewFilter().IsInteger(0)

	binary := func(fn func(z, x, y *big.Int) *rpnerror.Error) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popBigInt(t)
			if err != nil {
				return err
			}
			x, err := popBigInt(t)
			if err != nil {
				return err
			}
			z := new(big.Int)
			if err := fn(z, x, y); err != nil {
				return err
			}
			t.Stack.Push(value.NewBigInt(z))
			return nil
		}
	}
	unary := func(fn func(z, x *big.Int)) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := popBigInt(t)
			if err != nil {
				return err
			}
			z := new(big.Int)
			fn(z, x)
			t.Stack.Push(value.NewBigInt(z))
			return nil
		}
	}
	compare := func(fn func(cmp int) bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popBigInt(t)
			if err != nil {
				return err
			}
			x, err := popBigInt(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Bool(fn(x.Cmp(y))))
			return nil
		}
	}

	r.register("+", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Add(x, y)
		return nil
	}))
	r.register("-", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Sub(x, y)
		return nil
	}))
	r.register("*", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Mul(x, y)
		return nil
	}))
	r.register("/", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		if y.Sign() == 0 {
			return divisionByZero()
		}
		z.Quo(x, y)
		return nil
	}))
	r.register("%", pair, binary(bigRem))
	r.register("mod", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		if err := bigRem(z, x, y); err != nil {
			return err
		}
		if z.Sign() < 0 {
			z.Add(z, new(big.Int).Abs(y))
		}
		return nil
	}))
	r.register("/%", pair, func(t *Task, ref Reference) error {
		y, err := popBigInt(t)
		if err != nil {
			return err
		}
		x, err := popBigInt(t)
		if err != nil {
			return err
		}
		if y.Sign() == 0 {
			return divisionByZero()
		}
		quo, rem := new(big.Int).QuoRem(x, y, new(big.Int))
		t.Stack.Push(value.NewBigInt(rem))
		t.Stack.Push(value.NewBigInt(quo))
		return nil
	})
	r.register("gcd", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.GCD(nil, nil, new(big.Int).Abs(x), new(big.Int).Abs(y))
		return nil
	}))

	r.register("abs", top, unary(func(z, x *big.Int) { z.Abs(x) }))
	r.register("neg", top, unary(func(z, x *big.Int) { z.Neg(x) }))
	r.register("++", top, unary(func(z, x *big.Int) { z.Add(x, big.NewInt(1)) }))
	r.register("--", top, unary(func(z, x *big.Int) { z.Sub(x, big.NewInt(1)) }))
	r.register("min", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		if x.Cmp(y) <= 0 {
			z.Set(x)
		} else {
			z.Set(y)
		}
		return nil
	}))
	r.register("max", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		if x.Cmp(y) >= 0 {
			z.Set(x)
		} else {
			z.Set(y)
		}
		return nil
	}))
	r.register("sgn", top, func(t *Task, ref Reference) error {
		x, err := popBigInt(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Long(int64(x.Sign())))
		return nil
	})

	r.register("eq", pair, compare(func(cmp int) bool { return cmp == 0 }))
	r.register("ne", pair, compare(func(cmp int) bool { return cmp != 0 }))
	r.register("lt", pair, compare(func(cmp int) bool { return cmp < 0 }))
	r.register("le", pair, compare(func(cmp int) bool { return cmp <= 0 }))
	r.register("gt", pair, compare(func(cmp int) bool { return cmp > 0 }))
	r.register("ge", pair, compare(func(cmp int) bool { return cmp >= 0 }))

	r.register("and", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.And(x, y)
		return nil
	}))
	r.register("or", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Or(x, y)
		return nil
	}))
	r.register("xor", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Xor(x, y)
		return nil
	}))
	r.register("not", NewFilter().Is(0, value.KindBigInt), unary(func(z, x *big.Int) {
		z.Not(x)
	}))
	r.register("lshft", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Lsh(x, uint(y.Uint64()))
		return nil
	}))
	r.register("rshft", pair, binary(func(z, x, y *big.Int) *rpnerror.Error {
		z.Rsh(x, uint(y.Uint64()))
		return nil
	}))

	r.register("bits", NewFilter().Is(0, value.KindBigInt), func(t *Task, ref Reference) error {
		x, err := popBigInt(t)
		if err != nil {
			return err
		}
		var bits int
		for _, w := range x.Bits() {
			bits += popCount(uint(w))
		}
		t.Stack.Push(value.Long(int64(bits)))
		return nil
	})
	r.register("low1", NewFilter().Is(0, value.KindBigInt), func(t *Task, ref Reference) error {
		x, err := popBigInt(t)
		if err != nil {
			return err
		}
		if x.Sign() == 0 {
			t.Stack.Push(value.Long(-1))
			return nil
		}
		low := 0
		for x.Bit(low) == 0 {
			low++
		}
		t.Stack.Push(value.Long(int64(low)))
		return nil
	})

	bitOp := func(fn func(z *big.Int, bit int)) ExecFunc {
		return func(t *Task, ref Reference) error {
			bit, err := t.Stack.PopLong()
			if err != nil {
				return err
			}
			x, err := popBigInt(t)
			if err != nil {
				return err
			}
			if bit < 0 || bit > math.MaxInt32 {
				return rpnerror.New(rpnerror.LimitExceeded, "bit index %d out of range", bit)
			}
			z := new(big.Int).Set(x)
			fn(z, int(bit))
			t.Stack.Push(value.NewBigInt(z))
			return nil
		}
	}
	bigAndIndex := NewFilter().IsLong(0).Is(1, value.KindBigInt).And()
	r.register("set", bigAndIndex, bitOp(func(z *big.Int, bit int) {
		z.SetBit(z, bit, 1)
	}))
	r.register("clear", bigAndIndex, bitOp(func(z *big.Int, bit int) {
		z.SetBit(z, bit, 0)
	}))
	r.register("flip", bigAndIndex, bitOp(func(z *big.Int, bit int) {
		z.SetBit(z, bit, 1-z.Bit(bit))
	}))
	r.register("test", bigAndIndex, func(t *Task, ref Reference) error {
		bit, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		x, err := popBigInt(t)
		if err != nil {
			return err
		}
		if bit < 0 || bit > math.MaxInt32 {
			return rpnerror.New(rpnerror.LimitExceeded, "bit index %d out of range", bit)
		}
		t.Stack.Push(value.Bool(x.Bit(int(bit)) == 1))
		return nil
	})

	r.register("bigint", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		z, ok := bigIntFrom(v)
		if !ok {
			return rpnerror.New(rpnerror.ConvertFailed, "cannot convert %s to bigint", v.Kind())
		}
		t.Stack.Push(value.NewBigInt(z))
		return nil
	})
	r.register("bigint?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		_, ok := bigIntFrom(v)
		t.Stack.Push(value.Bool(ok))
		return nil
	})
}

func bigRem(z, x, y *big.Int) *rpnerror.Error {
	if y.Sign() == 0 {
		return divisionByZero()
	}
	if y.Sign() < 0 {
		x = new(big.Int).Neg(x)
		y = new(big.Int).Neg(y)
	}
	z.Rem(x, y)
	return nil
}

func popCount(w uint) int {
	count := 0
	for ; w != 0; w &= w - 1 {
		count++
	}
	return count
}

func bigIntFrom(v value.Value) (*big.Int, bool) {
	switch x := v.(type) {
	case value.Long:
		return big.NewInt(int64(x)), true
	case value.BigInt:
		return x.Int, true
	case value.Double:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		z, _ := new(big.Float).SetFloat64(f).Int(nil)
		return z, true
	case value.String:
		if z, ok := new(big.Int).SetString(strings.TrimSpace(string(x)), 10); ok {
			return z, true
		}
	}
	return nil, false
}
