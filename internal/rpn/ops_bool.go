package rpn

import (
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// registerBooleanOps installs the boolean operations.
func registerBooleanOps(r *Registry) {
	binary := func(fn func(x, y bool) bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := t.Stack.PopBool()
			if err != nil {
				return err
			}
			x, err := t.Stack.PopBool()
			if err != nil {
				return err
			}
			t.Stack.Push(value.Bool(fn(x, y)))
			return nil
		}
	}
	bools := top2Are(value.KindBool)
	r.register("and", bools, binary(func(x, y bool) bool { return x && y }))
	r.register("or", bools, binary(func(x, y bool) bool { return x || y }))
	r.register("xor", bools, binary(func(x, y bool) bool { return x != y }))
	r.register("not", topIs(value.KindBool), func(t *Task, ref Reference) error {
		b, err := t.Stack.PopBool()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(!b))
		return nil
	})

	r.register("true", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Bool(true))
		return nil
	})
	r.register("false", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Bool(false))
		return nil
	})

	// assert fails silently when the top is null or false; any other
	// value passes, so an enclosing try can recover.
	r.register("assert", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		if value.IsNull(v) {
			return rpnerror.Fail()
		}
		if b, ok := v.(value.Bool); ok && !bool(b) {
			return rpnerror.Fail()
		}
		return nil
	})
	r.register("true!", topIs(value.KindBool), requireBool(true))
	r.register("false!", topIs(value.KindBool), requireBool(false))

	r.register("bool", topPresent(), opBoolConvert)
	r.register("bool?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(boolFrom(v) != nil))
		return nil
	})

	r.register("?:", nil, func(t *Task, ref Reference) error {
		cond, err := t.Stack.PopBool()
		if err != nil {
			return err
		}
		under, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		underUnder, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		if cond {
			t.Stack.Push(underUnder)
		} else {
			t.Stack.Push(under)
		}
		return nil
	})
}

func requireBool(want bool) ExecFunc {
	return func(t *Task, ref Reference) error {
		b, err := t.Stack.PopBool()
		if err != nil {
			return err
		}
		if b != want {
			return rpnerror.Fail()
		}
		return nil
	}
}

func opBoolConvert(t *Task, ref Reference) error {
	v, err := t.Stack.Pop()
	if err != nil {
		return err
	}
	b := boolFrom(v)
	if b == nil {
		return rpnerror.New(rpnerror.ConvertFailed, "cannot convert %s to boolean", v.Kind())
	}
	t.Stack.Push(value.Bool(*b))
	return nil
}

// boolFrom converts strings (true/on/yes/1, false/off/no/0) and integers
// (nonzero is true) to boolean.
func boolFrom(v value.Value) *bool {
	truth := func(b bool) *bool { return &b }
	switch x := v.(type) {
	case value.Bool:
		return truth(bool(x))
	case value.String:
		switch strings.ToLower(strings.TrimSpace(string(x))) {
		case "true", "on", "yes", "1":
			return truth(true)
		case "false", "off", "no", "0":
			return truth(false)
		}
		return nil
	case value.Long:
		return truth(x != 0)
	case value.BigInt:
		return truth(x.Int.Sign() != 0)
	}
	return nil
}
