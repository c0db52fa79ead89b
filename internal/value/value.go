// Package value defines the tagged runtime datum pushed on the compute
// engine's stack. The set of kinds is closed; operations dispatch with a
// type switch on the concrete type.
package value

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags a runtime value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindLong
	KindDouble
	KindBigInt
	KindRational
	KindBigRational
	KindComplex
	KindString
	KindDateTime
	KindElapsed
	KindState
	KindTuple
	KindDict
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindBigInt:
		return "bigint"
	case KindRational:
		return "rational"
	case KindBigRational:
		return "bigrational"
	case KindComplex:
		return "complex"
	case KindString:
		return "string"
	case KindDateTime:
		return "datetime"
	case KindElapsed:
		return "elapsed"
	case KindState:
		return "state"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindOpaque:
		return "opaque"
	}
	return "unknown"
}

// Value is the closed sum of runtime datum kinds.
type Value interface {
	Kind() Kind
	// Clone returns a value safe to mutate without affecting the receiver.
	// Immutable kinds return themselves.
	Clone() Value
	String() string
}

// Null is the absent value.
type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (n Null) Clone() Value { return n }
func (Null) String() string { return "null" }

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind       { return KindBool }
func (b Bool) Clone() Value   { return b }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Long is a 64-bit signed integer.
type Long int64

func (Long) Kind() Kind       { return KindLong }
func (l Long) Clone() Value   { return l }
func (l Long) String() string { return strconv.FormatInt(int64(l), 10) }

// Double is an IEEE-754 double.
type Double float64

func (Double) Kind() Kind     { return KindDouble }
func (d Double) Clone() Value { return d }
func (d Double) String() string {
	return strconv.FormatFloat(float64(d), 'g', -1, 64)
}

// BigInt is an arbitrary-precision integer.
type BigInt struct {
	Int *big.Int
}

func NewBigInt(i *big.Int) BigInt { return BigInt{Int: i} }

func BigIntFromInt64(i int64) BigInt { return BigInt{Int: big.NewInt(i)} }

func (BigInt) Kind() Kind { return KindBigInt }
func (b BigInt) Clone() Value {
	return BigInt{Int: new(big.Int).Set(b.Int)}
}
func (b BigInt) String() string { return b.Int.String() }

// Rational is a signed 64-bit numerator over denominator, kept in lowest
// terms with a positive denominator.
type Rational struct {
	Num int64
	Den int64
}

func (Rational) Kind() Kind     { return KindRational }
func (r Rational) Clone() Value { return r }
func (r Rational) String() string {
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}

// Rat widens to a big.Rat.
func (r Rational) Rat() *big.Rat { return big.NewRat(r.Num, r.Den) }

// BigRational is an arbitrary-precision rational.
type BigRational struct {
	Rat *big.Rat
}

func (BigRational) Kind() Kind { return KindBigRational }
func (b BigRational) Clone() Value {
	return BigRational{Rat: new(big.Rat).Set(b.Rat)}
}
func (b BigRational) String() string {
	return b.Rat.Num().String() + "/" + b.Rat.Denom().String()
}

// Complex is a complex number, remembered as cartesian or polar for
// presentation and split semantics. The cartesian form is authoritative.
type Complex struct {
	C     complex128
	Polar bool
}

func (Complex) Kind() Kind     { return KindComplex }
func (c Complex) Clone() Value { return c }
func (c Complex) String() string {
	if c.Polar {
		return fmt.Sprintf("(%scis%s)",
			strconv.FormatFloat(Abs(c), 'g', -1, 64),
			strconv.FormatFloat(Arg(c), 'g', -1, 64))
	}
	re := strconv.FormatFloat(real(c.C), 'g', -1, 64)
	im := strconv.FormatFloat(imag(c.C), 'g', -1, 64)
	if imag(c.C) >= 0 {
		return "(" + re + "+" + im + "j)"
	}
	return "(" + re + im + "j)"
}

// String is a text value.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) Clone() Value   { return s }
func (s String) String() string { return string(s) }

// DateTime is an absolute instant with an optional zoned view.
type DateTime struct {
	Time time.Time
}

func (DateTime) Kind() Kind     { return KindDateTime }
func (d DateTime) Clone() Value { return d }
func (d DateTime) String() string {
	return d.Time.Format("2006-01-02T15:04:05.999999999Z07:00")
}

// Raw returns the instant as 100-nanosecond ticks since the Unix epoch.
func (d DateTime) Raw() int64 { return d.Time.UnixNano() / 100 }

// DateTimeFromRaw rebuilds an instant from 100-ns ticks.
func DateTimeFromRaw(ticks int64, loc *time.Location) DateTime {
	if loc == nil {
		loc = time.Local
	}
	return DateTime{Time: time.Unix(0, ticks*100).In(loc)}
}

// Elapsed is a signed duration.
type Elapsed struct {
	Duration time.Duration
}

func (Elapsed) Kind() Kind       { return KindElapsed }
func (e Elapsed) Clone() Value   { return e }
func (e Elapsed) String() string { return e.Duration.String() }

// State is a named condition with an optional numeric code.
type State struct {
	Name string
	Code *int64
}

func (State) Kind() Kind     { return KindState }
func (s State) Clone() Value { return s }
func (s State) String() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Code != nil {
		return strconv.FormatInt(*s.Code, 10)
	}
	return ""
}

// Tuple is an ordered sequence of values.
type Tuple struct {
	Items []Value
}

func NewTuple(items ...Value) *Tuple { return &Tuple{Items: items} }

func (*Tuple) Kind() Kind { return KindTuple }
func (t *Tuple) Clone() Value {
	items := make([]Value, len(t.Items))
	for i, v := range t.Items {
		if v != nil {
			items[i] = v.Clone()
		}
	}
	return &Tuple{Items: items}
}
func (t *Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if v == nil {
			sb.WriteString("null")
		} else {
			sb.WriteString(v.String())
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// Dict maps string keys to values. Keys are unique; iteration order is not
// part of the contract.
type Dict struct {
	Entries map[string]Value
}

func NewDict() *Dict { return &Dict{Entries: map[string]Value{}} }

func (*Dict) Kind() Kind { return KindDict }
func (d *Dict) Clone() Value {
	entries := make(map[string]Value, len(d.Entries))
	for k, v := range d.Entries {
		if v != nil {
			entries[k] = v.Clone()
		}
	}
	return &Dict{Entries: entries}
}
func (d *Dict) String() string {
	keys := d.Keys()
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		if v := d.Entries[k]; v != nil {
			sb.WriteString(v.String())
		} else {
			sb.WriteString("null")
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// Keys returns the dictionary keys in sorted order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.Entries))
	for k := range d.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Opaque carries a domain handle through the stack untouched.
type Opaque struct {
	X any
}

func (Opaque) Kind() Kind       { return KindOpaque }
func (o Opaque) Clone() Value   { return o }
func (o Opaque) String() string { return fmt.Sprintf("<%T>", o.X) }

// IsNull reports whether v is absent or the Null value.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
