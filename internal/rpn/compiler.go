package rpn

import (
	"math/big"
	"strconv"
	"strings"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// Compiler drives the preprocessor and turns the token stream into a
// Program: a sequence of operation references with nested block, loop and
// try references resolved.
type Compiler struct {
	registry *Registry
	pre      *Preprocessor
	source   string
	peeked   *Token
}

// NewCompiler builds a compiler over source with the given registry, macro
// definitions and loop limit.
func NewCompiler(registry *Registry, source string, defs map[string]*MacroDef, limit int) *Compiler {
	return &Compiler{
		registry: registry,
		pre:      NewPreprocessor(NewTokenizer(source), defs, limit),
		source:   source,
	}
}

// Compile consumes the whole source and returns the program.
func (c *Compiler) Compile() (*Program, *rpnerror.Error) {
	var refs []Reference
	for {
		token, err := c.next()
		if err != nil {
			return nil, err
		}
		if token.Type == TokenEOF {
			break
		}
		ref, err := c.compileToken(token)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, rpnerror.New(rpnerror.MissingInstructions, "empty program")
	}
	return &Program{refs: refs, source: c.source}, nil
}

func (c *Compiler) next() (Token, *rpnerror.Error) {
	if c.peeked != nil {
		token := *c.peeked
		c.peeked = nil
		return token, nil
	}
	return c.pre.Next()
}

func (c *Compiler) pushback(token Token) {
	c.peeked = &token
}

func (c *Compiler) compileToken(token Token) (Reference, *rpnerror.Error) {
	switch token.Type {
	case TokenString:
		return &constReference{v: value.String(token.Text), pos: token.Position()}, nil
	case TokenName:
		if op := c.registry.Get(token.Text); op != nil {
			if op.Compile != nil {
				return op.Compile(c, op, token)
			}
			return &opReference{op: op, pos: token.Position()}, nil
		}
		if ref, ok, err := c.compileOperand(token); ok || err != nil {
			return ref, err
		}
		if ref, ok := c.compileNumber(token); ok {
			return ref, nil
		}
		return nil, rpnerror.NewAt(rpnerror.UnknownOperation, token.Position(),
			"unknown operation %q", token.Text)
	}
	return nil, rpnerror.NewAt(rpnerror.UnknownOperation, token.Position(),
		"unexpected token %s", token.Type)
}

// compileNumber recognizes integer, big-integer and double literals.
func (c *Compiler) compileNumber(token Token) (Reference, bool) {
	text := token.Text
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		return &constReference{v: value.Long(i), pos: token.Position()}, true
	}
	if looksIntegral(text) {
		if i, ok := new(big.Int).SetString(text, 10); ok {
			return &constReference{v: value.NewBigInt(i), pos: token.Position()}, true
		}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return &constReference{v: value.Double(f), pos: token.Position()}, true
	}
	return nil, false
}

func looksIntegral(text string) bool {
	if text == "" {
		return false
	}
	rest := strings.TrimLeft(text, "+-")
	if rest == "" || len(text)-len(rest) > 1 {
		return false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// collect compiles references until one of the stop names appears, and
// returns the references with the stop that ended them.
func (c *Compiler) collect(at Token, stops ...string) ([]Reference, string, *rpnerror.Error) {
	var refs []Reference
	for {
		token, err := c.next()
		if err != nil {
			return nil, "", err
		}
		if token.Type == TokenEOF {
			return nil, "", rpnerror.NewAt(rpnerror.MissingBlockEnd, at.Position(),
				"%q without %s", at.Text, strings.Join(stops, "/"))
		}
		if token.Type == TokenName {
			upper := strings.ToUpper(token.Text)
			for _, stop := range stops {
				if upper == stop {
					return refs, stop, nil
				}
			}
		}
		ref, err := c.compileToken(token)
		if err != nil {
			return nil, "", err
		}
		refs = append(refs, ref)
	}
}

// collectTarget reads an optional leading integer literal before a loop
// body, the compile-time form of the reduce target.
func (c *Compiler) collectTarget(fallback int64) (int64, *rpnerror.Error) {
	token, err := c.next()
	if err != nil {
		return 0, err
	}
	if token.Type == TokenName {
		if i, perr := strconv.ParseInt(token.Text, 0, 64); perr == nil {
			return i, nil
		}
	}
	c.pushback(token)
	return fallback, nil
}
