package rpn

import (
	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// registerContainerOps installs the tuple and dict operations. They are
// enabled only while the task is "applying" a container: apply pops a
// tuple or dict off the stack into the task's container slot, where the
// operations mutate it in place, and done pushes it back.
func registerContainerOps(r *Registry) {
	applyingTuple := NewFilter().IsApplying(value.KindTuple)
	applyingDict := NewFilter().IsApplying(value.KindDict)

	r.register("tuple", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.NewTuple())
		return nil
	})
	r.register("dict", nil, func(t *Task, ref Reference) error {
		t.Stack.Push(value.NewDict())
		return nil
	})

	r.register("apply", NewFilter().Is(0, value.KindTuple).Is(0, value.KindDict).Or(),
		func(t *Task, ref Reference) error {
			v, err := t.Stack.Pop()
			if err != nil {
				return err
			}
			t.applied = append(t.applied, t.Container)
			t.Container = v
			return nil
		})
	r.register("done", nil, func(t *Task, ref Reference) error {
		if t.Container == nil {
			return rpnerror.New(rpnerror.ExecuteFailure, "done without apply")
		}
		t.Stack.Push(t.Container)
		if n := len(t.applied); n > 0 {
			t.Container = t.applied[n-1]
			t.applied = t.applied[:n-1]
		} else {
			t.Container = nil
		}
		return nil
	})

	appliedTuple := func(t *Task) *value.Tuple {
		tuple, _ := t.Container.(*value.Tuple)
		return tuple
	}
	appliedDict := func(t *Task) *value.Dict {
		dict, _ := t.Container.(*value.Dict)
		return dict
	}

	// Tuple operations.

	r.register("append", applyingTuple, func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		tuple := appliedTuple(t)
		tuple.Items = append(tuple.Items, v)
		return nil
	})
	r.register("get", NewFilter().IsApplying(value.KindTuple).IsLong(0).And(),
		func(t *Task, ref Reference) error {
			i, err := t.Stack.PopLong()
			if err != nil {
				return err
			}
			tuple := appliedTuple(t)
			if i < 0 || i >= int64(len(tuple.Items)) {
				return rpnerror.New(rpnerror.TupleIndexOutOfBounds,
					"index %d of %d items", i, len(tuple.Items))
			}
			t.Stack.Push(tuple.Items[i])
			return nil
		})
	// put pads with nulls when the index is past the end, bounded by the
	// loop limit.
	r.register("put", NewFilter().IsApplying(value.KindTuple).IsLong(1).And(),
		func(t *Task, ref Reference) error {
			v, err := t.Stack.Pop()
			if err != nil {
				return err
			}
			i, err := t.Stack.PopLong()
			if err != nil {
				return err
			}
			tuple := appliedTuple(t)
			limit := int64(t.Context.LoopLimit)
			if limit <= 0 {
				limit = DefaultLoopLimit
			}
			if i < 0 || i >= limit {
				return rpnerror.New(rpnerror.TupleIndexOutOfBounds,
					"index %d out of range", i)
			}
			for int64(len(tuple.Items)) <= i {
				tuple.Items = append(tuple.Items, value.Null{})
			}
			tuple.Items[i] = v
			return nil
		})
	r.register("remove", NewFilter().IsApplying(value.KindTuple).IsLong(0).And(),
		func(t *Task, ref Reference) error {
			i, err := t.Stack.PopLong()
			if err != nil {
				return err
			}
			tuple := appliedTuple(t)
			if i < 0 || i >= int64(len(tuple.Items)) {
				return rpnerror.New(rpnerror.TupleIndexOutOfBounds,
					"index %d of %d items", i, len(tuple.Items))
			}
			t.Stack.Push(tuple.Items[i])
			tuple.Items = append(tuple.Items[:i], tuple.Items[i+1:]...)
			return nil
		})
	r.register("size", applyingTuple, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Long(int64(len(appliedTuple(t).Items))))
		return nil
	})
	r.register("values", applyingTuple, func(t *Task, ref Reference) error {
		for _, v := range appliedTuple(t).Items {
			t.Stack.Push(v)
		}
		return nil
	})

	// Dict operations.

	r.register("put", NewFilter().IsApplying(value.KindDict).Is(1, value.KindString).And(),
		func(t *Task, ref Reference) error {
			v, err := t.Stack.Pop()
			if err != nil {
				return err
			}
			k, err := t.Stack.PopString()
			if err != nil {
				return err
			}
			appliedDict(t).Entries[k] = v
			return nil
		})
	r.register("get", NewFilter().IsApplying(value.KindDict).Is(0, value.KindString).And(),
		func(t *Task, ref Reference) error {
			k, err := t.Stack.PopString()
			if err != nil {
				return err
			}
			v, present := appliedDict(t).Entries[k]
			if !present {
				t.Stack.Push(value.Null{})
				return nil
			}
			t.Stack.Push(v)
			return nil
		})
	r.register("remove", NewFilter().IsApplying(value.KindDict).Is(0, value.KindString).And(),
		func(t *Task, ref Reference) error {
			k, err := t.Stack.PopString()
			if err != nil {
				return err
			}
			dict := appliedDict(t)
			if v, present := dict.Entries[k]; present {
				t.Stack.Push(v)
				delete(dict.Entries, k)
			} else {
				t.Stack.Push(value.Null{})
			}
			return nil
		})
	r.register("keys", applyingDict, func(t *Task, ref Reference) error {
		for _, k := range appliedDict(t).Keys() {
			t.Stack.Push(value.String(k))
		}
		return nil
	})
	r.register("values", applyingDict, func(t *Task, ref Reference) error {
		dict := appliedDict(t)
		for _, k := range dict.Keys() {
			t.Stack.Push(dict.Entries[k])
		}
		return nil
	})
	// entries pushes value then key for each entry.
	r.register("entries", applyingDict, func(t *Task, ref Reference) error {
		dict := appliedDict(t)
		for _, k := range dict.Keys() {
			t.Stack.Push(dict.Entries[k])
			t.Stack.Push(value.String(k))
		}
		return nil
	})
	r.register("size", applyingDict, func(t *Task, ref Reference) error {
		t.Stack.Push(value.Long(int64(len(appliedDict(t).Entries))))
		return nil
	})
}
