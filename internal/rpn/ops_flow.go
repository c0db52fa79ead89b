package rpn

import (
	"rvpf/internal/rpn/rpnerror"
)

// registerFlowOps installs blocks, loops, try and the control signals.
func registerFlowOps(r *Registry) {
	r.registerCompile("{", compileBlock)
	r.registerCompile("DO", compileLoop("Do", loopDo))
	r.registerCompile("WHILE", compileLoop("While", loopWhile))
	r.registerCompile("REDUCE", compileReduce)
	r.registerCompile("REDUCE*", compileReduceTarget)
	r.registerCompile("TRY", compileTry)

	r.register("break", nil, func(t *Task, ref Reference) error {
		return errSignalBreak
	})
	r.register("continue", nil, func(t *Task, ref Reference) error {
		return errSignalContinue
	})
	r.register("return", nil, func(t *Task, ref Reference) error {
		return errSignalReturn
	})
}

func compileBlock(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error) {
	refs, _, err := c.collect(tok, "}")
	if err != nil {
		return nil, err
	}
	return &blockReference{refs: refs, pos: tok.Position()}, nil
}

type loopKind int

const (
	loopDo loopKind = iota
	loopWhile
	loopReduce
	loopReduceTarget
)

// loopReference owns a single body reference and iterates it under the
// context's loop limit.
type loopReference struct {
	name   string
	kind   loopKind
	body   Reference
	target int64
	pos    rpnerror.Position
}

func (r *loopReference) Position() rpnerror.Position { return r.pos }

func compileLoop(name string, kind loopKind) CompileFunc {
	return func(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error) {
		refs, _, err := c.collect(tok, "END")
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			return nil, rpnerror.NewAt(rpnerror.MissingInstructions, tok.Position(),
				"%q without a body", tok.Text)
		}
		return &loopReference{
			name: name,
			kind: kind,
			body: &blockReference{refs: refs, pos: tok.Position()},
			pos:  tok.Position(),
		}, nil
	}
}

func compileReduce(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error) {
	target, err := c.collectTarget(1)
	if err != nil {
		return nil, err
	}
	ref, cerr := compileLoop("Reduce", loopReduce)(c, op, tok)
	if cerr != nil {
		return nil, cerr
	}
	ref.(*loopReference).target = target
	return ref, nil
}

func compileReduceTarget(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error) {
	return compileLoop("Reduce", loopReduceTarget)(c, op, tok)
}

func (r *loopReference) Execute(t *Task) error {
	limit := t.Context.LoopLimit
	if limit <= 0 {
		limit = DefaultLoopLimit
	}
	exceeded := func() error {
		return rpnerror.NewAt(rpnerror.LimitExceeded, r.pos,
			"%s iterations exceeded %d", r.name, limit)
	}
	runBody := func() (stop bool, err error) {
		err = r.body.Execute(t)
		switch err {
		case nil, errSignalContinue:
			return false, nil
		case errSignalBreak:
			return true, nil
		}
		return false, err
	}

	switch r.kind {
	case loopDo:
		for iterations := 0; ; {
			stop, err := runBody()
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
			cond, perr := t.Stack.PopBool()
			if perr != nil {
				return perr
			}
			if !cond {
				return nil
			}
			if iterations++; iterations >= limit {
				return exceeded()
			}
		}

	case loopWhile:
		for iterations := 0; ; {
			cond, perr := t.Stack.PopBool()
			if perr != nil {
				return perr
			}
			if !cond {
				return nil
			}
			if iterations >= limit {
				return exceeded()
			}
			iterations++
			stop, err := runBody()
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}

	case loopReduce, loopReduceTarget:
		target := r.target
		if r.kind == loopReduceTarget {
			popped, perr := t.Stack.PopLong()
			if perr != nil {
				return perr
			}
			target = popped
		}
		for iterations := 0; int64(t.Stack.Size()) > target; {
			if iterations >= limit {
				return exceeded()
			}
			iterations++
			stop, err := runBody()
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	}
	return nil
}

// tryReference runs its try branch inside a new stack mark; a silent
// failure unwinds the stack to its pre-try state and runs the catch
// branch. Failures with messages propagate.
type tryReference struct {
	onTry   Reference
	onCatch Reference
	pos     rpnerror.Position
}

func (r *tryReference) Position() rpnerror.Position { return r.pos }

func compileTry(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error) {
	onTry, _, err := c.collect(tok, "CATCH")
	if err != nil {
		return nil, err
	}
	onCatch, _, err := c.collect(tok, "END")
	if err != nil {
		return nil, err
	}
	return &tryReference{
		onTry:   &blockReference{refs: onTry, pos: tok.Position()},
		onCatch: &blockReference{refs: onCatch, pos: tok.Position()},
		pos:     tok.Position(),
	}, nil
}

func (r *tryReference) Execute(t *Task) error {
	stack := t.Stack
	savedMarks := stack.Marks()
	savedSize := stack.TotalSize()
	stack.Mark()

	err := r.onTry.Execute(t)
	if err == nil {
		if stack.Marks() <= savedMarks {
			return rpnerror.NewAt(rpnerror.ExecuteFailure, r.pos,
				"try dropped its mark")
		}
		for stack.Marks() > savedMarks {
			if uerr := stack.Unmark(); uerr != nil {
				return uerr
			}
		}
		return nil
	}
	if !rpnerror.IsSilent(err) {
		stack.TruncateMarks(savedMarks)
		return err
	}

	stack.TruncateMarks(savedMarks)
	stack.TruncateValues(savedSize)
	return r.onCatch.Execute(t)
}
