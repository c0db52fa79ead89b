package rpn

import (
	"time"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

// DefaultLoopLimit caps loop iterations and macro recursion depth when the
// LoopLimit engine parameter is absent.
const DefaultLoopLimit = 10000

// Context carries the per-execution environment of a task: the input
// point values, the mutable result, memory slots, parameters, and the
// date-time settings.
type Context struct {
	Inputs    []*point.Value
	Result    *point.Value
	Memory    []value.Value
	Params    []string
	Stored    value.Value
	HasStored bool

	Location  *time.Location
	LoopLimit int

	// FailReturnsNull makes a failed execution yield a null result
	// instead of surfacing the failure.
	FailReturnsNull bool
}

// NewContext returns a context with defaults: local time zone and the
// default loop limit.
func NewContext() *Context {
	return &Context{
		Location:  time.Local,
		LoopLimit: DefaultLoopLimit,
	}
}

// Input returns the input at index, or nil when absent.
func (c *Context) Input(index int) *point.Value {
	if index < 0 || index >= len(c.Inputs) {
		return nil
	}
	return c.Inputs[index]
}

// MemoryAt returns the memory slot at index, or nil when the index lies
// outside the store.
func (c *Context) MemoryAt(index int) value.Value {
	if index < 0 || index >= len(c.Memory) {
		return nil
	}
	return c.Memory[index]
}

// SetMemory stores v at index, growing the store as needed.
func (c *Context) SetMemory(index int, v value.Value) {
	for len(c.Memory) <= index {
		c.Memory = append(c.Memory, nil)
	}
	c.Memory[index] = v
}

// Param returns the parameter at index, or empty when absent.
func (c *Context) Param(index int) (string, bool) {
	if index < 0 || index >= len(c.Params) {
		return "", false
	}
	return c.Params[index], true
}

// Now returns the current instant in the context's time zone.
func (c *Context) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}
