// Package point defines the time-series identities and the PointValue datum
// exchanged between the compute engine, the DNP3 roles, and the stores.
package point

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"rvpf/internal/value"
)

// Type names the DNP3-facing category of a point.
type Type int

const (
	TypeUnknown Type = iota
	TypeSingleBitInput
	TypeDoubleBitInput
	TypeBinaryOutput
	TypeCounter
	TypeFrozenCounter
	TypeAnalogInput
	TypeAnalogOutput
)

var typeNames = map[string]Type{
	"SINGLE_BIT_INPUT": TypeSingleBitInput,
	"DOUBLE_BIT_INPUT": TypeDoubleBitInput,
	"BINARY_OUTPUT":    TypeBinaryOutput,
	"COUNTER":          TypeCounter,
	"FROZEN_COUNTER":   TypeFrozenCounter,
	"ANALOG_INPUT":     TypeAnalogInput,
	"ANALOG_OUTPUT":    TypeAnalogOutput,
}

// TypeFromName resolves a configuration PointType attribute.
func TypeFromName(name string) (Type, bool) {
	t, ok := typeNames[name]
	return t, ok
}

func (t Type) String() string {
	for name, v := range typeNames {
		if v == t {
			return name
		}
	}
	return "UNKNOWN"
}

// DataType names the wire representation of a point's value.
type DataType int

const (
	DataUnknown DataType = iota
	DataInt16
	DataInt32
	DataFloat16
	DataFloat32
	DataFloat64
	DataBool
	DataDoubleBit
)

var dataTypeNames = map[string]DataType{
	"INT16":      DataInt16,
	"INT32":      DataInt32,
	"FLOAT16":    DataFloat16,
	"FLOAT32":    DataFloat32,
	"FLOAT64":    DataFloat64,
	"BOOL":       DataBool,
	"DOUBLE_BIT": DataDoubleBit,
}

// DataTypeFromName resolves a configuration DataType attribute.
func DataTypeFromName(name string) (DataType, bool) {
	t, ok := dataTypeNames[name]
	return t, ok
}

func (t DataType) String() string {
	for name, v := range dataTypeNames {
		if v == t {
			return name
		}
	}
	return "UNKNOWN"
}

// Point is the metadata identity of a time-series variable.
type Point struct {
	UUID      uuid.UUID
	Name      string
	Type      Type
	DataType  DataType
	Index     uint32
	StopIndex uint32 // equal to Index for single-index points
	Device    string // logical device override, empty for the default
}

// Indexes returns the inclusive index range covered by the point.
func (p *Point) Indexes() (start, stop uint32) {
	if p.StopIndex < p.Index {
		return p.Index, p.Index
	}
	return p.Index, p.StopIndex
}

// Multi reports whether the point spans more than one index.
func (p *Point) Multi() bool {
	start, stop := p.Indexes()
	return stop > start
}

func (p *Point) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.UUID.String()
}

// DeletedState is the sentinel state marking a deleted point value.
var DeletedState = value.State{Name: "DELETED"}

// Value is one observation of a point: stamp, optional state, and datum.
type Value struct {
	Point *Point
	Stamp time.Time
	State *value.State
	Value value.Value
}

// NewValue builds an observation stamped now.
func NewValue(p *Point, v value.Value) *Value {
	return &Value{Point: p, Stamp: time.Now(), Value: v}
}

// Deleted reports whether the observation carries the deletion sentinel.
func (v *Value) Deleted() bool {
	return v.State != nil && v.State.Name == DeletedState.Name
}

func (v *Value) String() string {
	datum := "null"
	if v.Value != nil {
		datum = v.Value.String()
	}
	return fmt.Sprintf("%s@%s=%s", v.Point, v.Stamp.Format(time.RFC3339Nano), datum)
}
