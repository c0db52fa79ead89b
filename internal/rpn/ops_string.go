package rpn

import (
	"fmt"
	"log"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// registerStringOps installs the string operations.
func registerStringOps(r *Registry) {
	pair := top2Are(value.KindString)
	top := topIs(value.KindString)

	r.register("+", pair, func(t *Task, ref Reference) error {
		y, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		x, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		t.Stack.Push(value.String(x + y))
		return nil
	})

	unary := func(fn func(s string) string) ExecFunc {
		return func(t *Task, ref Reference) error {
			s, err := t.Stack.PopString()
			if err != nil {
				return err
			}
			t.Stack.Push(value.String(fn(s)))
			return nil
		}
	}
	r.register("trim", top, unary(strings.TrimSpace))
	r.register("lower", top, unary(strings.ToLower))
	r.register("upper", top, unary(strings.ToUpper))

	r.register("empty?", top, func(t *Task, ref Reference) error {
		s, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(len(s) == 0))
		return nil
	})

	// substring pops the bounds then the string: "s a b substring" keeps
	// the half-open range [a, b).
	r.register("substring", top2AreLong(), func(t *Task, ref Reference) error {
		b, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		a, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		s, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		if a < 0 || b < a || b > int64(len(s)) {
			return rpnerror.New(rpnerror.SubstringOutOfBounds,
				"substring [%d,%d) of %d characters", a, b, len(s))
		}
		t.Stack.Push(value.String(s[a:b]))
		return nil
	})

	r.register("format", top, opFormat(false))
	r.register("format*", top, opFormat(true))

	r.register("str", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(value.String(stringify(t, v)))
		return nil
	})
	r.register("str?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		_, ok := v.(value.String)
		t.Stack.Push(value.Bool(ok))
		return nil
	})

	logOp := func(level string, fail bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			s, err := t.Stack.PopString()
			if err != nil {
				return err
			}
			log.Printf("[rpn] %s: %s", level, s)
			if fail {
				return rpnerror.New(rpnerror.ExecuteFailure, "%s", s)
			}
			return nil
		}
	}
	r.register("debug", top, logOp("DEBUG", false))
	r.register("info", top, logOp("INFO", false))
	r.register("warn", top, logOp("WARN", false))
	r.register("error", top, logOp("ERROR", true))
}

// opFormat applies a printf-style format: the arguments are the values of
// the current frame (or the whole stack for format*), bottom first, which
// are consumed and replaced by the formatted string.
func opFormat(all bool) ExecFunc {
	return func(t *Task, ref Reference) error {
		format, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		var frame []value.Value
		if all {
			frame = append(frame, t.Stack.All()...)
		} else {
			frame = append(frame, t.Stack.Frame()...)
		}
		args := make([]any, len(frame))
		for i, v := range frame {
			args[i] = formatArg(t, v)
		}
		formatted := fmt.Sprintf(format, args...)
		if strings.Contains(formatted, "%!") {
			return rpnerror.New(rpnerror.FormatFailed, "format %q failed: %s", format, formatted)
		}
		if all {
			t.Stack.UnmarkAll()
		}
		t.Stack.Clear()
		t.Stack.Push(value.String(formatted))
		return nil
	}
}

func formatArg(t *Task, v value.Value) any {
	switch x := v.(type) {
	case value.Long:
		return int64(x)
	case value.Double:
		return float64(x)
	case value.Bool:
		return bool(x)
	case value.String:
		return string(x)
	case nil:
		return "null"
	}
	return stringify(t, v)
}

// stringify renders a value the way the str operation does: date-times
// through the context's time zone, states by name or code, anything else
// by its natural text.
func stringify(t *Task, v value.Value) string {
	switch x := v.(type) {
	case value.DateTime:
		loc := t.Context.Location
		if loc == nil {
			return x.String()
		}
		return value.DateTime{Time: x.Time.In(loc)}.String()
	case value.State:
		return x.String()
	case nil:
		return "null"
	}
	return v.String()
}
