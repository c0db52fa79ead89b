package rpn

import (
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"rvpf/internal/rpn/rpnerror"
)

// Engine parameter keys.
const (
	ParamLoopLimit = "LoopLimit"
	ParamTimeZone  = "TimeZone"
	ParamMacroDef  = "MacroDef."
)

const programCacheSize = 128

// DefaultRegistry builds a registry with every operation module
// installed. Registration order fixes overload precedence: within a name
// the most recent registration is consulted first, so the generic
// catch-alls register early and the most specific domains last.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerStackOps(r)
	registerBasicOps(r)
	registerFlowOps(r)
	registerBooleanOps(r)
	registerStringOps(r)
	registerDoubleOps(r)
	registerComplexOps(r)
	registerBigRationalOps(r)
	registerRationalOps(r)
	registerBigIntOps(r)
	registerLongOps(r)
	registerDateTimeOps(r)
	registerContainerOps(r)
	return r
}

// Engine is the compile-once/execute-many facade: it holds the operation
// registry, the engine parameters, the macro definitions, and a cache of
// compiled programs keyed by source text.
type Engine struct {
	registry  *Registry
	macros    map[string]*MacroDef
	loopLimit int
	location  *time.Location
	programs  *lru.Cache
}

// NewEngine builds an engine from a flat parameter map.
func NewEngine(params map[string]string) (*Engine, error) {
	e := &Engine{
		registry:  DefaultRegistry(),
		macros:    map[string]*MacroDef{},
		loopLimit: DefaultLoopLimit,
		location:  time.Local,
	}
	cache, err := lru.New(programCacheSize)
	if err != nil {
		return nil, err
	}
	e.programs = cache

	for key, text := range params {
		switch {
		case key == ParamLoopLimit:
			limit, err := strconv.Atoi(text)
			if err != nil || limit <= 0 {
				return nil, rpnerror.New(rpnerror.LimitExceeded,
					"bad %s %q", ParamLoopLimit, text)
			}
			e.loopLimit = limit
		case key == ParamTimeZone:
			loc, err := time.LoadLocation(text)
			if err != nil {
				return nil, rpnerror.New(rpnerror.DateTimeFormat,
					"unknown time zone %q", text)
			}
			e.location = loc
		case strings.HasPrefix(key, ParamMacroDef):
			def, derr := parseMacroParam(key[len(ParamMacroDef):], text)
			if derr != nil {
				return nil, derr
			}
			e.macros[def.Name] = def
		}
	}
	return e, nil
}

// parseMacroParam accepts either a full "name(args)=body" definition as
// the value, or the bare body with the name taken from the key suffix.
func parseMacroParam(name, text string) (*MacroDef, *rpnerror.Error) {
	if eq := strings.IndexByte(text, '='); eq > 0 {
		signature := text[:eq]
		if base, _, _ := strings.Cut(signature, "("); strings.TrimSpace(base) == name {
			return ParseMacroDef(text)
		}
	}
	return &MacroDef{Name: name, Body: text}, nil
}

// Registry exposes the engine's operation registry, letting embedders
// register extensions.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Compile returns the program for source, reusing a cached compile when
// the same source was seen before. Programs are immutable and shared.
func (e *Engine) Compile(source string) (*Program, error) {
	if cached, ok := e.programs.Get(source); ok {
		return cached.(*Program), nil
	}
	compiler := NewCompiler(e.registry, source, e.macros, e.loopLimit)
	program, err := compiler.Compile()
	if err != nil {
		return nil, err
	}
	e.programs.Add(source, program)
	return program, nil
}

// NewContext builds an execution context carrying the engine's loop limit
// and time zone.
func (e *Engine) NewContext() *Context {
	ctx := NewContext()
	ctx.LoopLimit = e.loopLimit
	ctx.Location = e.location
	return ctx
}
