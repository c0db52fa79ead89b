package rpn

import (
	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// Task is one execution of a Program: it owns its stack and context
// exclusively. Programs are immutable and may be shared by many tasks.
type Task struct {
	Stack   *Stack
	Context *Context

	// Container is the applying-container slot: the tuple or dict the
	// container operations currently target. Set by apply; done pushes it
	// back and restores the container applied before it, or nil.
	Container value.Value
	applied   []value.Value
}

// NewTask builds a task over a fresh stack.
func NewTask(ctx *Context) *Task {
	if ctx == nil {
		ctx = NewContext()
	}
	return &Task{Stack: NewStack(), Context: ctx}
}

// Run executes the program and returns the final top of stack, or nil when
// the stack ends empty. A silent failure yields a null result when the
// context's FailReturnsNull flag is set.
func (t *Task) Run(p *Program) (value.Value, error) {
	if err := p.Execute(t); err != nil {
		if rpnerror.IsSilent(err) && t.Context.FailReturnsNull {
			return value.Null{}, nil
		}
		return nil, err
	}
	if t.Stack.TotalSize() == 0 {
		return nil, nil
	}
	v, err := t.Stack.Pop()
	if err != nil {
		return nil, err
	}
	return v, nil
}
