package rpn

import (
	"rvpf/internal/value"
)

// Filter is a predicate over the top slots of the stack (and the task's
// applying-container slot), used for overload resolution. It is built as a
// postfix boolean expression: operand steps push a test result, And/Or/Not
// combine them. Slot indexes count from the top of stack, 0 being the top.
type Filter struct {
	steps []filterStep
}

type filterStep struct {
	test func(t *Task) bool
	op   byte // 0 operand, '&' and, '|' or, '!' not
}

// NewFilter starts an empty filter, which accepts any stack.
func NewFilter() *Filter {
	return &Filter{}
}

func (f *Filter) push(test func(t *Task) bool) *Filter {
	f.steps = append(f.steps, filterStep{test: test})
	return f
}

// IsPresent requires slot i to exist within the current frame.
func (f *Filter) IsPresent(i int) *Filter {
	return f.push(func(t *Task) bool {
		return t.Stack.Size() > i
	})
}

// Is requires slot i to hold a value of kind k.
func (f *Filter) Is(i int, k value.Kind) *Filter {
	return f.push(func(t *Task) bool {
		v := slot(t.Stack, i)
		return v != nil && v.Kind() == k
	})
}

// IsLong requires slot i to hold a long (or a BigInt fitting one).
func (f *Filter) IsLong(i int) *Filter {
	return f.push(func(t *Task) bool {
		v := slot(t.Stack, i)
		if v == nil {
			return false
		}
		_, ok := value.AsLong(v)
		return ok
	})
}

// IsNumber requires slot i to hold any real numeric value.
func (f *Filter) IsNumber(i int) *Filter {
	return f.push(func(t *Task) bool {
		v := slot(t.Stack, i)
		return v != nil && value.IsNumeric(v)
	})
}

// IsInteger requires slot i to hold a long or big integer.
func (f *Filter) IsInteger(i int) *Filter {
	return f.push(func(t *Task) bool {
		switch slot(t.Stack, i).(type) {
		case value.Long, value.BigInt:
			return true
		}
		return false
	})
}

// IsApplying requires the task's container slot to hold a container of
// kind k; the container operations are enabled only then.
func (f *Filter) IsApplying(k value.Kind) *Filter {
	return f.push(func(t *Task) bool {
		return t.Container != nil && t.Container.Kind() == k
	})
}

// And replaces the top two results with their conjunction.
func (f *Filter) And() *Filter {
	f.steps = append(f.steps, filterStep{op: '&'})
	return f
}

// Or replaces the top two results with their disjunction.
func (f *Filter) Or() *Filter {
	f.steps = append(f.steps, filterStep{op: '|'})
	return f
}

// Not negates the top result.
func (f *Filter) Not() *Filter {
	f.steps = append(f.steps, filterStep{op: '!'})
	return f
}

// Accepts evaluates the filter against the task. An empty or malformed
// filter accepts everything; the result is the top of the boolean stack
// after all steps run.
func (f *Filter) Accepts(t *Task) bool {
	if len(f.steps) == 0 {
		return true
	}
	var bools []bool
	for _, step := range f.steps {
		switch step.op {
		case 0:
			bools = append(bools, step.test(t))
		case '&':
			if len(bools) < 2 {
				return true
			}
			b := bools[len(bools)-1] && bools[len(bools)-2]
			bools = append(bools[:len(bools)-2], b)
		case '|':
			if len(bools) < 2 {
				return true
			}
			b := bools[len(bools)-1] || bools[len(bools)-2]
			bools = append(bools[:len(bools)-2], b)
		case '!':
			if len(bools) < 1 {
				return true
			}
			bools[len(bools)-1] = !bools[len(bools)-1]
		}
	}
	return bools[len(bools)-1]
}

func slot(s *Stack, i int) value.Value {
	if s.Size() <= i {
		return nil
	}
	v, err := s.Peek(i)
	if err != nil {
		return nil
	}
	return v
}

// Convenience filter constructors shared by the operation modules.

func topIs(k value.Kind) *Filter {
	return NewFilter().Is(0, k)
}

func top2Are(k value.Kind) *Filter {
	return NewFilter().Is(0, k).Is(1, k).And()
}

func topIsLong() *Filter {
	return NewFilter().IsLong(0)
}

func top2AreLong() *Filter {
	return NewFilter().IsLong(0).IsLong(1).And()
}

func topIsNumber() *Filter {
	return NewFilter().IsNumber(0)
}

func top2AreNumber() *Filter {
	return NewFilter().IsNumber(0).IsNumber(1).And()
}

func topPresent() *Filter {
	return NewFilter().IsPresent(0)
}
