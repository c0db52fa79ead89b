package rpn

import (
	"strings"
	"testing"
	"time"

	"rvpf/internal/point"
	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

func newTestEngine(t *testing.T, params map[string]string) *Engine {
	t.Helper()
	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func run(t *testing.T, engine *Engine, source string) (*Task, value.Value) {
	t.Helper()
	program, err := engine.Compile(source)
	if err != nil {
		t.Fatalf("compile %q: %v", source, err)
	}
	task := NewTask(engine.NewContext())
	result, rerr := task.Run(program)
	if rerr != nil {
		t.Fatalf("run %q: %v", source, rerr)
	}
	return task, result
}

// Test the arithmetic scenarios across the numeric domains.
func TestArithmetic(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		name     string
		source   string
		expected value.Value
	}{
		{"long add", "2 3 +", value.Long(5)},
		{"long sub", "10 4 -", value.Long(6)},
		{"long mul", "6 7 *", value.Long(42)},
		{"long div", "17 5 /", value.Long(3)},
		{"long rem", "10 3 %", value.Long(1)},
		{"long rem negative divisor", "7 -3 %", value.Long(-1)},
		{"long mod negative", "-7 3 mod", value.Long(2)},
		{"long neg", "5 neg", value.Long(-5)},
		{"long abs", "-5 abs", value.Long(5)},
		{"long inc", "41 ++", value.Long(42)},
		{"long dec", "43 --", value.Long(42)},
		{"long min", "3 8 min", value.Long(3)},
		{"long max", "3 8 max", value.Long(8)},
		{"long sgn", "-9 sgn", value.Long(-1)},
		{"bit and", "12 10 and", value.Long(8)},
		{"bit or", "12 10 or", value.Long(14)},
		{"bit xor", "12 10 xor", value.Long(6)},
		{"shift left", "1 4 lshft", value.Long(16)},
		{"shift right", "-16 2 rshft", value.Long(-4)},
		{"shift right zero", "16 2 rshftz", value.Long(4)},
		{"double add", "2.5 0.5 +", value.Double(3.0)},
		{"mixed add", "2 0.5 +", value.Double(2.5)},
		{"double round", "2.5 round", value.Double(3)},
		{"double round negative", "-2.5 round", value.Double(-2)},
		{"double floor", "2.7 floor", value.Double(2)},
		{"double ceil", "2.2 ceil", value.Double(3)},
		{"double pow", "2.0 10.0 **", value.Double(1024)},
		{"double sqrt", "9.0 sqrt", value.Double(3)},
		{"double mod", "-7.0 3.0 mod", value.Double(2)},
		{"string concat", `"foo" "bar" +`, value.String("foobar")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test that /% pushes the remainder then the quotient.
func TestDivRem(t *testing.T) {
	engine := newTestEngine(t, nil)
	task, top := run(t, engine, "10 3 /%")
	if !value.Equal(top, value.Long(3)) {
		t.Errorf("quotient: got %v, want 3", top)
	}
	rem, err := task.Stack.Pop()
	if err != nil {
		t.Fatalf("pop remainder: %v", err)
	}
	if !value.Equal(rem, value.Long(1)) {
		t.Errorf("remainder: got %v, want 1", rem)
	}
}

// Test the tolerant comparison.
func TestNearEquality(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected bool
	}{
		{"12.4 12.5 0.2 eq~", true},
		{"12.4 12.8 0.2 eq~", false},
		{`"12.5" float 12.4 0.2 eq~`, true},
		{"0.05 0.1 0~?", true},
		{"0.5 0.1 0~?", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, value.Bool(tt.expected)) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test marks: drops cross the mark and depth sees the merged frame after
// unmark.
func TestMarks(t *testing.T) {
	engine := newTestEngine(t, nil)
	task, top := run(t, engine, "1 2 3 [ drop drop ] depth")
	if !value.Equal(top, value.Long(1)) {
		t.Errorf("depth: got %v, want 1", top)
	}
	if task.Stack.TotalSize() != 1 {
		t.Errorf("stack size: got %d, want 1", task.Stack.TotalSize())
	}

	// dup and at also reach below a fresh mark.
	_, top = run(t, engine, "7 [ dup ] depth")
	if !value.Equal(top, value.Long(2)) {
		t.Errorf("dup across mark: got %v, want 2", top)
	}
	_, top = run(t, engine, "5 6 [ 1 at ]")
	if !value.Equal(top, value.Long(5)) {
		t.Errorf("at across mark: got %v, want 5", top)
	}
}

// Test assert: null and false fail silently, anything else passes.
func TestAssert(t *testing.T) {
	engine := newTestEngine(t, nil)

	for _, source := range []string{"null assert", "false assert"} {
		t.Run(source, func(t *testing.T) {
			program, err := engine.Compile(source)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			_, rerr := NewTask(engine.NewContext()).Run(program)
			if !rpnerror.IsSilent(rerr) {
				t.Errorf("got %v, want a silent failure", rerr)
			}
		})
	}

	for _, source := range []string{"true assert 1", "42 assert 1", `"x" assert 1`} {
		t.Run(source, func(t *testing.T) {
			_, result := run(t, engine, source)
			if !value.Equal(result, value.Long(1)) {
				t.Errorf("got %v, want 1", result)
			}
		})
	}

	t.Run("recoverable inside try", func(t *testing.T) {
		_, result := run(t, engine, `try false assert "unreached" catch "caught" end`)
		if !value.Equal(result, value.String("caught")) {
			t.Errorf("got %v, want caught", result)
		}
	})
}

// Test try/catch: a division by zero is silent and the catch branch sees
// the pre-try stack.
func TestTryCatch(t *testing.T) {
	engine := newTestEngine(t, nil)

	t.Run("catch division", func(t *testing.T) {
		_, result := run(t, engine, `try 1 0 / catch "div-by-zero" end`)
		if !value.Equal(result, value.String("div-by-zero")) {
			t.Errorf("got %v, want div-by-zero", result)
		}
	})

	t.Run("stack restored", func(t *testing.T) {
		task, top := run(t, engine, `7 try 1 2 3 fail catch nop end`)
		if !value.Equal(top, value.Long(7)) {
			t.Errorf("got %v, want 7", top)
		}
		if task.Stack.TotalSize() != 0 {
			t.Errorf("leftover values: %d", task.Stack.TotalSize())
		}
	})

	t.Run("messages propagate", func(t *testing.T) {
		program, err := engine.Compile(`try "boom" error catch nop end`)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		task := NewTask(engine.NewContext())
		if _, err := task.Run(program); err == nil {
			t.Fatal("expected the message-carrying failure to propagate")
		}
	})
}

// Test the do loop countdown scenario.
func TestDoLoop(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, result := run(t, engine, "3 do -- dup 0 gt end")
	if !value.Equal(result, value.Long(0)) {
		t.Errorf("got %v, want 0", result)
	}
}

// Test that an unbounded loop trips the configured limit.
func TestLoopLimit(t *testing.T) {
	engine := newTestEngine(t, map[string]string{ParamLoopLimit: "25"})
	program, err := engine.Compile("true while true end")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	task := NewTask(engine.NewContext())
	_, rerr := task.Run(program)
	if rerr == nil {
		t.Fatal("expected the loop limit to trip")
	}
	if !strings.Contains(rerr.Error(), "While iterations exceeded 25") {
		t.Errorf("unexpected error: %v", rerr)
	}
}

// Test reduce folding the whole frame down to one value.
func TestReduce(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, result := run(t, engine, "1 2 3 4 reduce + end")
	if !value.Equal(result, value.Long(10)) {
		t.Errorf("got %v, want 10", result)
	}

	_, result = run(t, engine, "1 2 3 4 reduce 2 + end")
	if !value.Equal(result, value.Long(9)) {
		t.Errorf("target 2: got %v, want 9", result)
	}

	_, result = run(t, engine, "1 2 3 4 2 reduce* + end")
	if !value.Equal(result, value.Long(9)) {
		t.Errorf("reduce*: got %v, want 9", result)
	}
}

// Test overload resolution stability: boolean and bitwise "and" share a
// name and resolve by operand kinds.
func TestOverloads(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected value.Value
	}{
		{"true false or", value.Bool(true)},
		{"6 3 and", value.Long(2)},
		{"true true and", value.Bool(true)},
		{"2 3 eq", value.Bool(false)},
		{`"a" "a" eq`, value.Bool(true)},
		{"null null eq", value.Bool(true)},
		{"null 3 ne", value.Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test the stack manipulation words.
func TestStackOps(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected value.Value
	}{
		{"1 2 swap", value.Long(1)},
		{"1 2 over", value.Long(1)},
		{"1 2 nip", value.Long(2)},
		{"1 2 drop", value.Long(1)},
		{"5 dup +", value.Long(10)},
		{"1 2 3 depth", value.Long(3)},
		{"1 2 3 1 at", value.Long(2)},
		{"null 9 default", value.Long(9)},
		{"8 9 default", value.Long(8)},
		{"null null?", value.Bool(true)},
		{"3 null?", value.Bool(false)},
		{"1 2 3 reverse", value.Long(1)},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test the bignum and rational domains.
func TestExactDomains(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected string
	}{
		{`"123456789012345678901234567890" bigint dup +`, "246913578024691357802469135780"},
		{"36 24 bigint gcd", "12"},
		{`"0" bigint 5 set`, "32"},
		{`"255" bigint bits`, "8"},
		{`"24" bigint low1`, "3"},
		{`"1/3" rat "1/6" rat +`, "1/2"},
		{"1 3 rat 1/", "3/1"},
		{`"2/4" rat`, "1/2"},
		{`"1/3" bigrat "1/6" bigrat +`, "1/2"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if result.String() != tt.expected {
				t.Errorf("got %s, want %s", result, tt.expected)
			}
		})
	}
}

// Test the rational split pushing numerator then denominator.
func TestRationalSplit(t *testing.T) {
	engine := newTestEngine(t, nil)
	task, top := run(t, engine, "3 4 rat split")
	if !value.Equal(top, value.Long(4)) {
		t.Errorf("denominator: got %v, want 4", top)
	}
	num, err := task.Stack.Pop()
	if err != nil {
		t.Fatalf("pop numerator: %v", err)
	}
	if !value.Equal(num, value.Long(3)) {
		t.Errorf("numerator: got %v, want 3", num)
	}
}

// Test complex arithmetic and accessors.
func TestComplex(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected value.Value
	}{
		{"3.0 4.0 cplx abs", value.Double(5)},
		{"3.0 4.0 cplx real", value.Double(3)},
		{"3.0 4.0 cplx imag", value.Double(4)},
		{"i i *", value.Complex{C: complex(-1, 0)}},
		{"3.0 4.0 cplx conj imag", value.Double(-4)},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test conversions between strings and the base kinds.
func TestConversions(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected value.Value
	}{
		{`"42" int`, value.Long(42)},
		{`"12.5" float`, value.Double(12.5)},
		{`"yes" bool`, value.Bool(true)},
		{`"off" bool`, value.Bool(false)},
		{`7 bool`, value.Bool(true)},
		{`42 str`, value.String("42")},
		{`true str`, value.String("true")},
		{`"42" int?`, value.Bool(true)},
		{`"x" int?`, value.Bool(false)},
		{`"abc" str?`, value.Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test the string words.
func TestStrings(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		source   string
		expected value.Value
	}{
		{`" padded " trim`, value.String("padded")},
		{`"MiXeD" lower`, value.String("mixed")},
		{`"MiXeD" upper`, value.String("MIXED")},
		{`"" empty?`, value.Bool(true)},
		{`"x" empty?`, value.Bool(false)},
		{`"hello" 1 3 substring`, value.String("el")},
		{`2 3 "%d+%d" format`, value.String("2+3")},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}

	t.Run("substring out of bounds", func(t *testing.T) {
		program, err := engine.Compile(`"abc" 1 9 substring`)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		task := NewTask(engine.NewContext())
		_, rerr := task.Run(program)
		if rerr == nil {
			t.Fatal("expected out-of-bounds failure")
		}
	})
}

// Test the date-time operations under a fixed zone.
func TestDateTime(t *testing.T) {
	engine := newTestEngine(t, map[string]string{ParamTimeZone: "UTC"})
	tests := []struct {
		source   string
		expected value.Value
	}{
		{`"2023-06-15T12:30:45" datetime year`, value.Long(2023)},
		{`"2023-06-15T12:30:45" datetime month`, value.Long(6)},
		{`"2023-06-15T12:30:45" datetime day`, value.Long(15)},
		{`"2023-06-15T12:30:45" datetime hour`, value.Long(12)},
		{`"2023-06-15T12:30:45" datetime dow`, value.Long(4)},
		{`"2023-06-15" datetime dim`, value.Long(30)},
		{`"2023-06-15" datetime ++day day`, value.Long(16)},
		{`"2023-01-31" datetime ++month month`, value.Long(3)},
		{`"2023-06-15" datetime --year year`, value.Long(2022)},
		{`"2023-06-15T12:39:45" datetime _hour minute`, value.Long(0)},
		{`"2023-06-15T12:39:45" datetime ~hour hour`, value.Long(13)},
		{`"1858-11-17" datetime mjd`, value.Long(0)},
		{`51544 mjd year`, value.Long(2000)},
		{`"2023-06-15T06:00:00" datetime "2023-06-15T04:00:00" datetime - seconds`, value.Double(7200)},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, result := run(t, engine, tt.source)
			if !value.Equal(result, tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}

	t.Run("split join roundtrip", func(t *testing.T) {
		_, result := run(t, engine, `"2023-06-15T12:30:45" datetime split join`)
		dt, ok := result.(value.DateTime)
		if !ok {
			t.Fatalf("expected datetime, got %T", result)
		}
		want := time.Date(2023, 6, 15, 12, 30, 45, 0, time.UTC)
		if !dt.Time.Equal(want) {
			t.Errorf("got %v, want %v", dt.Time, want)
		}
	})
}

// Test the applying-container operations.
func TestContainers(t *testing.T) {
	engine := newTestEngine(t, nil)

	t.Run("tuple", func(t *testing.T) {
		_, result := run(t, engine, "tuple apply 10 append 20 append 30 append done")
		tuple, ok := result.(*value.Tuple)
		if !ok {
			t.Fatalf("expected tuple, got %T", result)
		}
		if len(tuple.Items) != 3 || !value.Equal(tuple.Items[1], value.Long(20)) {
			t.Errorf("unexpected tuple %v", tuple)
		}
	})

	t.Run("tuple put pads", func(t *testing.T) {
		_, result := run(t, engine, "tuple apply 3 99 put size done drop")
		if !value.Equal(result, value.Long(4)) {
			t.Errorf("size: got %v, want 4", result)
		}
	})

	t.Run("dict", func(t *testing.T) {
		_, result := run(t, engine, `dict apply "a" 1 put "b" 2 put "a" get done drop`)
		if !value.Equal(result, value.Long(1)) {
			t.Errorf("get: got %v, want 1", result)
		}
	})

	t.Run("dict size", func(t *testing.T) {
		_, result := run(t, engine, `dict apply "a" 1 put "b" 2 put size done drop`)
		if !value.Equal(result, value.Long(2)) {
			t.Errorf("size: got %v, want 2", result)
		}
	})
}

// Test macro expansion, including parameterized macros and the recursion
// guard.
func TestMacros(t *testing.T) {
	t.Run("word macro", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			ParamMacroDef + "TWICE": "dup +",
		})
		_, result := run(t, engine, "21 TWICE")
		if !value.Equal(result, value.Long(42)) {
			t.Errorf("got %v, want 42", result)
		}
	})

	t.Run("parameterized macro", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			ParamMacroDef + "AVG": "AVG(a, b)=a b + 2 /",
		})
		_, result := run(t, engine, "AVG(4, 8)")
		if !value.Equal(result, value.Long(6)) {
			t.Errorf("got %v, want 6", result)
		}
	})

	t.Run("nested arguments", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			ParamMacroDef + "AVG": "AVG(a, b)=a b + 2 /",
		})
		_, result := run(t, engine, "AVG(AVG(2, 6), 8)")
		if !value.Equal(result, value.Long(6)) {
			t.Errorf("got %v, want 6", result)
		}
	})

	t.Run("recursion detected", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			ParamMacroDef + "LOOP": "LOOP",
			ParamLoopLimit:         "20",
		})
		if _, err := engine.Compile("LOOP"); err == nil {
			t.Fatal("expected macro recursion error")
		}
	})

	t.Run("missing args", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			ParamMacroDef + "AVG": "AVG(a, b)=a b + 2 /",
		})
		if _, err := engine.Compile("AVG(1, 2"); err == nil {
			t.Fatal("expected missing args error")
		}
	})
}

// Test compile errors.
func TestCompileErrors(t *testing.T) {
	engine := newTestEngine(t, nil)
	tests := []struct {
		name   string
		source string
		kind   rpnerror.Kind
	}{
		{"unknown op", "2 3 frobnicate", rpnerror.UnknownOperation},
		{"missing end", "do nop", rpnerror.MissingBlockEnd},
		{"missing block close", "{ 1 2", rpnerror.MissingBlockEnd},
		{"unterminated string", `"abc`, rpnerror.UnterminatedString},
		{"stray paren", "1 )", rpnerror.UnbalancedParenthesis},
		{"empty", "   # just a comment", rpnerror.MissingInstructions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compile(tt.source)
			if err == nil {
				t.Fatal("expected a compile error")
			}
			rerr, ok := err.(*rpnerror.Error)
			if !ok {
				t.Fatalf("unexpected error type %T", err)
			}
			if rerr.Kind != tt.kind {
				t.Errorf("kind: got %s, want %s", rerr.Kind, tt.kind)
			}
		})
	}
}

// Test the context accessors against inputs, memory and parameters.
func TestContextAccess(t *testing.T) {
	engine := newTestEngine(t, nil)

	t.Run("inputs", func(t *testing.T) {
		program, err := engine.Compile("$1 $2 +")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ctx := engine.NewContext()
		ctx.Inputs = inputValues(value.Long(30), value.Long(12))
		task := NewTask(ctx)
		result, rerr := task.Run(program)
		if rerr != nil {
			t.Fatalf("run: %v", rerr)
		}
		if !value.Equal(result, value.Long(42)) {
			t.Errorf("got %v, want 42", result)
		}
	})

	t.Run("input count", func(t *testing.T) {
		program, err := engine.Compile("$#")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ctx := engine.NewContext()
		ctx.Inputs = inputValues(value.Long(1), value.Long(2), value.Long(3))
		result, rerr := NewTask(ctx).Run(program)
		if rerr != nil {
			t.Fatalf("run: %v", rerr)
		}
		if !value.Equal(result, value.Long(3)) {
			t.Errorf("got %v, want 3", result)
		}
	})

	t.Run("required input fails on null", func(t *testing.T) {
		program, err := engine.Compile("$1!")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ctx := engine.NewContext()
		ctx.Inputs = inputValues(value.Null{})
		if _, rerr := NewTask(ctx).Run(program); rerr == nil {
			t.Fatal("expected a silent failure")
		}
	})

	t.Run("memory", func(t *testing.T) {
		program, err := engine.Compile("7 %2= %2 %2 *")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		result, rerr := NewTask(engine.NewContext()).Run(program)
		if rerr != nil {
			t.Fatalf("run: %v", rerr)
		}
		if !value.Equal(result, value.Long(49)) {
			t.Errorf("got %v, want 49", result)
		}
	})

	t.Run("params", func(t *testing.T) {
		program, err := engine.Compile("#0 int #1 int +")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ctx := engine.NewContext()
		ctx.Params = []string{"40", "2"}
		result, rerr := NewTask(ctx).Run(program)
		if rerr != nil {
			t.Fatalf("run: %v", rerr)
		}
		if !value.Equal(result, value.Long(42)) {
			t.Errorf("got %v, want 42", result)
		}
	})
}

func inputValues(values ...value.Value) []*point.Value {
	inputs := make([]*point.Value, len(values))
	for i, v := range values {
		inputs[i] = &point.Value{Stamp: time.Now(), Value: v}
	}
	return inputs
}
