package rpn

import (
	"log"
	"strconv"
	"strings"

	"rvpf/internal/point"
	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// funcReference is a reference bound to a compiled operand accessor.
type funcReference struct {
	fn  func(t *Task) error
	pos rpnerror.Position
}

func (r *funcReference) Position() rpnerror.Position { return r.pos }

func (r *funcReference) Execute(t *Task) error {
	return at(r.fn(t), r.pos)
}

// compileOperand recognizes the context accessor families: "$..." for
// inputs and the result, "%..." for memory slots, "#..." for parameters.
// It reports ok=false for names outside those families.
func (c *Compiler) compileOperand(token Token) (Reference, bool, *rpnerror.Error) {
	text := token.Text
	if len(text) < 2 {
		return nil, false, nil
	}
	var fn func(t *Task) error
	switch text[0] {
	case '$':
		fn = compileInputAccessor(text)
	case '%':
		fn = compileMemoryAccessor(text, false)
	case '#':
		fn = compileParamAccessor(text)
	case ':':
		switch {
		case text == ":$0=":
			fn = storeResult(true)
		case strings.HasPrefix(text, ":%"):
			fn = compileMemoryAccessor(text[1:], true)
		}
	}
	if fn == nil {
		return nil, false, nil
	}
	return &funcReference{fn: fn, pos: token.Position()}, true, nil
}

func compileInputAccessor(text string) func(t *Task) error {
	switch text {
	case "$#":
		return func(t *Task) error {
			t.Stack.Push(value.Long(len(t.Context.Inputs)))
			return nil
		}
	case "$*":
		return pushAllInputs(false)
	case "$*!":
		return pushAllInputs(true)
	case "$0":
		return func(t *Task) error {
			t.Stack.Push(pointDatum(t.Context.Result))
			return nil
		}
	case "$0@":
		return func(t *Task) error {
			t.Stack.Push(pointStamp(t.Context.Result))
			return nil
		}
	case "$0$":
		return func(t *Task) error {
			t.Stack.Push(pointState(t.Context.Result))
			return nil
		}
	case "$0=":
		return storeResult(false)
	}

	base := text[1:]
	variant := byte(0)
	if n := len(base); n > 0 {
		switch base[n-1] {
		case '@', '$', '.', '!':
			variant = base[n-1]
			base = base[:n-1]
		}
	}
	index, err := strconv.Atoi(base)
	if err != nil || index < 1 {
		return nil
	}
	slot := index - 1
	switch variant {
	case 0:
		return func(t *Task) error {
			t.Stack.Push(pointDatum(t.Context.Input(slot)))
			return nil
		}
	case '!':
		return func(t *Task) error {
			v := pointDatum(t.Context.Input(slot))
			if value.IsNull(v) {
				return rpnerror.Fail()
			}
			t.Stack.Push(v)
			return nil
		}
	case '@':
		return func(t *Task) error {
			t.Stack.Push(pointStamp(t.Context.Input(slot)))
			return nil
		}
	case '$':
		return func(t *Task) error {
			t.Stack.Push(pointState(t.Context.Input(slot)))
			return nil
		}
	case '.':
		return func(t *Task) error {
			pv := t.Context.Input(slot)
			if pv == nil || pv.Point == nil {
				t.Stack.Push(value.Null{})
				return nil
			}
			t.Stack.Push(value.Opaque{X: pv.Point})
			return nil
		}
	}
	return nil
}

func pushAllInputs(required bool) func(t *Task) error {
	return func(t *Task) error {
		for _, pv := range t.Context.Inputs {
			v := pointDatum(pv)
			if required && value.IsNull(v) {
				return rpnerror.Fail()
			}
			t.Stack.Push(v)
		}
		return nil
	}
}

func storeResult(keep bool) func(t *Task) error {
	return func(t *Task) error {
		var v value.Value
		var err *rpnerror.Error
		if keep {
			v, err = t.Stack.Peek(0)
		} else {
			v, err = t.Stack.Pop()
		}
		if err != nil {
			return err
		}
		if t.Context.Result == nil {
			return rpnerror.New(rpnerror.ExecuteFailure, "no result point")
		}
		t.Context.Result.Value = v
		return nil
	}
}

func compileMemoryAccessor(text string, keep bool) func(t *Task) error {
	base := text[1:]
	store := strings.HasSuffix(base, "=")
	if store {
		base = base[:len(base)-1]
	}
	required := strings.HasSuffix(base, "!")
	if required {
		base = base[:len(base)-1]
	}
	index, err := strconv.Atoi(base)
	if err != nil || index < 0 || (keep && !store) || (store && required) {
		return nil
	}
	if store {
		return func(t *Task) error {
			var v value.Value
			var perr *rpnerror.Error
			if keep {
				v, perr = t.Stack.Peek(0)
			} else {
				v, perr = t.Stack.Pop()
			}
			if perr != nil {
				return perr
			}
			t.Context.SetMemory(index, v)
			return nil
		}
	}
	return func(t *Task) error {
		v := t.Context.MemoryAt(index)
		if required && value.IsNull(v) {
			return rpnerror.Fail()
		}
		t.Stack.Push(v)
		return nil
	}
}

func compileParamAccessor(text string) func(t *Task) error {
	base := text[1:]
	required := strings.HasSuffix(base, "!")
	if required {
		base = base[:len(base)-1]
	}
	index, err := strconv.Atoi(base)
	if err != nil || index < 0 {
		return nil
	}
	return func(t *Task) error {
		param, present := t.Context.Param(index)
		if !present {
			if required {
				return rpnerror.Fail()
			}
			t.Stack.Push(value.Null{})
			return nil
		}
		t.Stack.Push(value.String(param))
		return nil
	}
}

func pointDatum(pv *point.Value) value.Value {
	if pv == nil || pv.Value == nil {
		return value.Null{}
	}
	return pv.Value
}

func pointStamp(pv *point.Value) value.Value {
	if pv == nil || pv.Stamp.IsZero() {
		return value.Null{}
	}
	return value.DateTime{Time: pv.Stamp}
}

func pointState(pv *point.Value) value.Value {
	if pv == nil || pv.State == nil {
		return value.Null{}
	}
	return *pv.State
}

// registerBasicOps installs the context and control conveniences.
func registerBasicOps(r *Registry) {
	r.register("nop", nil, func(t *Task, ref Reference) error {
		return nil
	})
	r.register("bpt", nil, func(t *Task, ref Reference) error {
		log.Printf("[rpn] bpt at %s: %v", ref.Position(), t.Stack.Frame())
		return nil
	})
	r.register("fail", nil, func(t *Task, ref Reference) error {
		return rpnerror.Fail()
	})
	r.register("type", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(value.String(v.Kind().String()))
		return nil
	})
	r.register("deleted?", nil, func(t *Task, ref Reference) error {
		result := t.Context.Result
		t.Stack.Push(value.Bool(result != nil && result.Deleted()))
		return nil
	})
	r.register("stored", nil, func(t *Task, ref Reference) error {
		if !t.Context.HasStored {
			t.Stack.Push(value.Null{})
			return nil
		}
		t.Stack.Push(t.Context.Stored)
		return nil
	})
	r.register("stored?", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Bool(t.Context.HasStored))
		return nil
	})
	r.register("stored!", nil, func(t *Task, ref Reference) error {
		if !t.Context.HasStored || value.IsNull(t.Context.Stored) {
			return rpnerror.Fail()
		}
		t.Stack.Push(t.Context.Stored)
		return nil
	})
	r.register("call", topIs(value.KindOpaque), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		program, ok := v.(value.Opaque).X.(*Program)
		if !ok {
			return rpnerror.New(rpnerror.CastMismatch, "call expects a program")
		}
		return program.Execute(t)
	})
}
