package rpn

import (
	"log"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// registerStackOps installs the stack manipulation operations. The ops
// that reach below the current frame boundary (dup, drop, at and their
// kin) carry no filter: a frame-local presence check would reject them
// right after a mark, while Peek and Pop deliberately cross marks and
// report underflow themselves.
func registerStackOps(r *Registry) {
	dup := func(t *Task, ref Reference) error {
		v, err := t.Stack.Peek(0)
		if err != nil {
			return err
		}
		t.Stack.Push(v)
		return nil
	}
	r.register("dup", nil, dup)
	r.register(":", nil, dup)

	r.register("drop", nil, func(t *Task, ref Reference) error {
		_, err := t.Stack.Pop()
		return err
	})
	r.register("swap", nil, func(t *Task, ref Reference) error {
		b, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		a, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(b)
		t.Stack.Push(a)
		return nil
	})
	r.register("over", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Peek(1)
		if err != nil {
			return err
		}
		t.Stack.Push(v)
		return nil
	})
	r.register("nip", nil, func(t *Task, ref Reference) error {
		b, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		if _, err = t.Stack.Pop(); err != nil {
			return err
		}
		t.Stack.Push(b)
		return nil
	})
	r.register("tuck", nil, func(t *Task, ref Reference) error {
		b, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		a, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(b)
		t.Stack.Push(a)
		t.Stack.Push(b)
		return nil
	})
	r.register("at", nil, func(t *Task, ref Reference) error {
		n, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		v, err := t.Stack.Peek(int(n))
		if err != nil {
			return err
		}
		t.Stack.Push(v)
		return nil
	})
	r.register("copy", topIsLong(), func(t *Task, ref Reference) error {
		n, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		if n < 0 || int(n) > t.Stack.Size() {
			return rpnerror.New(rpnerror.Underflow, "copy %d beyond frame", n)
		}
		frame := t.Stack.Frame()
		for _, v := range frame[len(frame)-int(n):] {
			t.Stack.Push(v)
		}
		return nil
	})
	r.register("clear", topIsLong(), func(t *Task, ref Reference) error {
		n, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		for ; n > 0; n-- {
			if _, err := t.Stack.Pop(); err != nil {
				return err
			}
		}
		return nil
	})
	r.register("depth", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Long(t.Stack.Size()))
		return nil
	})
	r.register("depth*", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Long(t.Stack.TotalSize()))
		return nil
	})

	mark := func(t *Task, ref Reference) error {
		t.Stack.Mark()
		return nil
	}
	r.register("mark", nil, mark)
	r.register("[", nil, mark)
	unmark := func(t *Task, ref Reference) error {
		return t.Stack.Unmark()
	}
	r.register("unmark", nil, unmark)
	r.register("]", nil, unmark)
	r.register("unmark*", nil, func(t *Task, ref Reference) error {
		t.Stack.UnmarkAll()
		return nil
	})
	r.register("mark?", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Bool(t.Stack.Marks() > 0))
		return nil
	})

	r.register("roll", top2AreLong(), func(t *Task, ref Reference) error {
		j, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		n, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		if n < 0 || int(n) > t.Stack.Size() {
			return rpnerror.New(rpnerror.Underflow, "roll %d beyond frame", n)
		}
		if n < 2 {
			return nil
		}
		for ; j > 0; j-- {
			v, perr := t.Stack.Pop()
			if perr != nil {
				return perr
			}
			if perr = t.Stack.Insert(int(n-1), v); perr != nil {
				return perr
			}
		}
		for ; j < 0; j++ {
			v, perr := t.Stack.Remove(int(n - 1))
			if perr != nil {
				return perr
			}
			t.Stack.Push(v)
		}
		return nil
	})
	r.register("reverse", nil, func(t *Task, ref Reference) error {
		frame := t.Stack.Frame()
		for i, j := 0, len(frame)-1; i < j; i, j = i+1, j-1 {
			frame[i], frame[j] = frame[j], frame[i]
		}
		return nil
	})

	r.register("null", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Null{})
		return nil
	})
	r.register("null?", nil, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Bool(value.IsNull(v)))
		return nil
	})
	r.register("default", nil, func(t *Task, ref Reference) error {
		fallback, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		if value.IsNull(v) {
			t.Stack.Push(fallback)
		} else {
			t.Stack.Push(v)
		}
		return nil
	})

	r.register("eq", nil, func(t *Task, ref Reference) error {
		return compareAny(t, true)
	})
	r.register("ne", nil, func(t *Task, ref Reference) error {
		return compareAny(t, false)
	})

	r.register("dump", nil, func(t *Task, ref Reference) error {
		log.Printf("[rpn] dump at %s: %v", ref.Position(), t.Stack.Frame())
		return nil
	})
	r.register("dump*", nil, func(t *Task, ref Reference) error {
		log.Printf("[rpn] dump* at %s: %v", ref.Position(), t.Stack.All())
		return nil
	})
}

func compareAny(t *Task, want bool) error {
	y, err := t.Stack.Pop()
	if err != nil {
		return err
	}
	x, err := t.Stack.Pop()
	if err != nil {
		return err
	}
	t.Stack.Push(value.Bool(value.Equal(x, y) == want))
	return nil
}
