package rpn

import (
	"strings"

	"rvpf/internal/rpn/rpnerror"
)

// ExecFunc runs an operation against the task. The reference gives access
// to compile-time operands.
type ExecFunc func(t *Task, r Reference) error

// CompileFunc builds a custom reference for an operation that consumes
// following tokens (blocks, loops, try).
type CompileFunc func(c *Compiler, op *Op, tok Token) (Reference, *rpnerror.Error)

// Op is one operation, optionally filtered and overloaded. Registration
// links operations sharing a name into a chain; at execution the chain is
// walked from the most recent registration and the first operation whose
// filter accepts the stack wins.
type Op struct {
	Name    string
	Filter  *Filter
	Exec    ExecFunc
	Compile CompileFunc

	next *Op
}

// Next returns the displaced operation this one overloads, if any.
func (o *Op) Next() *Op {
	return o.next
}

// Registry maps operation names, case-insensitively, to overload chains.
type Registry struct {
	ops map[string]*Op
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: map[string]*Op{}}
}

// Register installs op under its name. When the name is already taken the
// newcomer takes the slot and links the predecessor as its overload.
func (r *Registry) Register(op *Op) {
	key := strings.ToUpper(op.Name)
	op.next = r.ops[key]
	r.ops[key] = op
}

// Get resolves a name to the head of its overload chain.
func (r *Registry) Get(name string) *Op {
	return r.ops[strings.ToUpper(name)]
}

// register is the operation-module helper: a simple filtered operation.
func (r *Registry) register(name string, filter *Filter, exec ExecFunc) {
	r.Register(&Op{Name: name, Filter: filter, Exec: exec})
}

// registerCompile installs an operation with a custom compile step.
func (r *Registry) registerCompile(name string, compile CompileFunc) {
	r.Register(&Op{Name: name, Compile: compile})
}
