package rpn

import (
	"strings"
	"unicode"

	"rvpf/internal/rpn/rpnerror"
)

// MacroDef is one preprocessor definition. A word macro has no formals and
// expands once per occurrence; a parameterized macro collects parenthesized
// arguments and substitutes them for its formals inside the body.
type MacroDef struct {
	Name    string
	Formals []string
	Body    string
}

// ParseMacroDef parses a "NAME=body" or "NAME(a,b)=body" definition string,
// the format of the engine's MacroDef.* parameters.
func ParseMacroDef(text string) (*MacroDef, *rpnerror.Error) {
	eq := strings.IndexByte(text, '=')
	if eq < 1 {
		return nil, rpnerror.New(rpnerror.UnknownMacro, "bad macro definition %q", text)
	}
	signature := strings.TrimSpace(text[:eq])
	body := text[eq+1:]
	open := strings.IndexByte(signature, '(')
	if open < 0 {
		return &MacroDef{Name: signature, Body: body}, nil
	}
	if !strings.HasSuffix(signature, ")") {
		return nil, rpnerror.New(rpnerror.UnbalancedParenthesis, "bad macro signature %q", signature)
	}
	def := &MacroDef{Name: strings.TrimSpace(signature[:open]), Body: body}
	for _, formal := range strings.Split(signature[open+1:len(signature)-1], ",") {
		formal = strings.TrimSpace(formal)
		if formal != "" {
			def.Formals = append(def.Formals, formal)
		}
	}
	return def, nil
}

// Preprocessor wraps the tokenizer and expands macros over the token
// stream. Commas outside argument collection are discarded; they only
// separate macro arguments.
type Preprocessor struct {
	tokenizer *Tokenizer
	defs      map[string]*MacroDef
	depths    map[string]int
	limit     int
}

// NewPreprocessor builds a preprocessor over tokenizer with the given
// definitions and recursion limit.
func NewPreprocessor(tokenizer *Tokenizer, defs map[string]*MacroDef, limit int) *Preprocessor {
	if limit <= 0 {
		limit = DefaultLoopLimit
	}
	return &Preprocessor{
		tokenizer: tokenizer,
		defs:      defs,
		depths:    map[string]int{},
		limit:     limit,
	}
}

// Next returns the next non-macro token, with definitions expanded.
func (p *Preprocessor) Next() (Token, *rpnerror.Error) {
	for {
		token, err := p.tokenizer.Next()
		if err != nil {
			return Token{}, err
		}
		switch token.Type {
		case TokenComma:
			continue
		case TokenRightParen:
			return Token{}, rpnerror.NewAt(rpnerror.UnbalancedParenthesis,
				token.Position(), "unexpected ')'")
		case TokenLeftParen:
			return Token{}, rpnerror.NewAt(rpnerror.UnbalancedParenthesis,
				token.Position(), "unexpected '('")
		case TokenName:
			def := p.defs[token.Text]
			if def == nil {
				return token, nil
			}
			if err := p.expand(def, token); err != nil {
				return Token{}, err
			}
			continue
		default:
			return token, nil
		}
	}
}

func (p *Preprocessor) expand(def *MacroDef, at Token) *rpnerror.Error {
	p.depths[def.Name]++
	if p.depths[def.Name] > p.limit {
		return rpnerror.NewAt(rpnerror.MacroRecursion, at.Position(),
			"macro %q exceeded %d expansions", def.Name, p.limit)
	}
	if len(def.Formals) == 0 {
		p.tokenizer.Insert(def.Body)
		return nil
	}
	args, err := p.collectArgs(def, at)
	if err != nil {
		return err
	}
	body := def.Body
	for i, formal := range def.Formals {
		arg := ""
		if i < len(args) {
			arg = args[i]
		}
		body = substituteWord(body, formal, arg)
	}
	p.tokenizer.Insert(body)
	return nil
}

// collectArgs reads "( a , b ... )" after a parameterized macro name,
// honoring nested parentheses inside each argument.
func (p *Preprocessor) collectArgs(def *MacroDef, at Token) ([]string, *rpnerror.Error) {
	token, err := p.tokenizer.Next()
	if err != nil {
		return nil, err
	}
	if token.Type != TokenLeftParen {
		return nil, rpnerror.NewAt(rpnerror.MissingArgs, at.Position(),
			"macro %q expects arguments", def.Name)
	}
	var args []string
	var current strings.Builder
	depth := 1
	flush := func() {
		args = append(args, strings.TrimSpace(current.String()))
		current.Reset()
	}
	for {
		token, err = p.tokenizer.Next()
		if err != nil {
			return nil, err
		}
		switch token.Type {
		case TokenEOF:
			return nil, rpnerror.NewAt(rpnerror.MissingArgs, at.Position(),
				"unfinished arguments for macro %q", def.Name)
		case TokenLeftParen:
			depth++
			current.WriteString(" ( ")
		case TokenRightParen:
			depth--
			if depth == 0 {
				flush()
				return args, nil
			}
			current.WriteString(" ) ")
		case TokenComma:
			if depth == 1 {
				flush()
			} else {
				current.WriteString(" , ")
			}
		case TokenString:
			current.WriteString(" \"")
			current.WriteString(escapeString(token.Text))
			current.WriteString("\" ")
		default:
			current.WriteByte(' ')
			current.WriteString(token.Text)
			current.WriteByte(' ')
		}
	}
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}

// substituteWord replaces whole-word occurrences of formal in body.
func substituteWord(body, formal, arg string) string {
	var sb strings.Builder
	for i := 0; i < len(body); {
		j := strings.Index(body[i:], formal)
		if j < 0 {
			sb.WriteString(body[i:])
			break
		}
		j += i
		end := j + len(formal)
		before := j == 0 || isWordBreak(body[j-1])
		after := end == len(body) || isWordBreak(body[end])
		sb.WriteString(body[i:j])
		if before && after {
			sb.WriteString(arg)
		} else {
			sb.WriteString(formal)
		}
		i = end
	}
	return sb.String()
}

func isWordBreak(c byte) bool {
	return unicode.IsSpace(rune(c)) || c == ',' || c == '(' || c == ')' || c == '"'
}
