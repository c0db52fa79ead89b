package object

import (
	"testing"
	"time"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

// Test the fixed-size variations through an encode/decode roundtrip.
func TestFixedRoundtrip(t *testing.T) {
	tests := []struct {
		name      string
		group     byte
		variation byte
		instance  Instance
	}{
		{"analog input int32 flag", GroupAnalogInput, 1,
			Instance{Flags: 0x01, Value: value.Long(-123456)}},
		{"analog input int16 flag", GroupAnalogInput, 2,
			Instance{Flags: 0x01, Value: value.Long(-100)}},
		{"analog input int32", GroupAnalogInput, 3,
			Instance{Value: value.Long(99999)}},
		{"analog input float flag", GroupAnalogInput, 5,
			Instance{Flags: 0x01, Value: value.Double(1234.5)}},
		{"analog input double flag", GroupAnalogInput, 6,
			Instance{Flags: 0x01, Value: value.Double(-2.25)}},
		{"counter int32 flag", GroupCounter, 1,
			Instance{Flags: 0x01, Value: value.Long(4000)}},
		{"analog output command int16", GroupAnalogOutputCommand, 2,
			Instance{Flags: 0, Value: value.Long(-100)}},
		{"binary input flag", GroupBinaryInput, 2,
			Instance{Flags: 0x01, Value: value.Bool(true)}},
		{"double bit flag", GroupDoubleBitInput, 2,
			Instance{Flags: 0x01, Value: value.Long(2)}},
		{"binary command", GroupBinaryOutputCommand, 1,
			Instance{Value: value.Bool(true)}},
		{"time delay", GroupTimeDelay, 2,
			Instance{Value: value.Long(1500)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Lookup(tt.group, tt.variation)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			encoded, err := d.Encode(tt.instance)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(encoded) != d.Size {
				t.Fatalf("encoded %d bytes, descriptor says %d", len(encoded), d.Size)
			}
			decoded, err := d.Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !value.Equal(decoded.Value, tt.instance.Value) {
				t.Errorf("value: got %v, want %v", decoded.Value, tt.instance.Value)
			}
			if decoded.Flags != tt.instance.Flags {
				t.Errorf("flags: got %02X, want %02X", decoded.Flags, tt.instance.Flags)
			}
		})
	}
}

// Test the 48-bit time objects.
func TestTimeRoundtrip(t *testing.T) {
	d, err := Lookup(GroupTimeAndDate, 3)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	at := time.Date(2024, 3, 15, 10, 30, 45, 123_000_000, time.UTC)
	encoded, err := d.Encode(Instance{Time: at})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(encoded) != 6 {
		t.Fatalf("encoded %d bytes, want 6", len(encoded))
	}
	decoded, err := d.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Time.Equal(at) {
		t.Errorf("got %v, want %v", decoded.Time, at)
	}
}

// Test the packed variations.
func TestPacked(t *testing.T) {
	t.Run("single bit", func(t *testing.T) {
		d, err := Lookup(GroupBinaryInput, 1)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		states := []bool{true, false, true, true, false, false, true, false, true}
		instances := make([]Instance, len(states))
		for i, on := range states {
			instances[i] = Instance{Index: uint32(i), Value: value.Bool(on)}
		}
		packed, err := EncodePacked(d, instances)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(packed) != 2 {
			t.Fatalf("packed %d bytes, want 2", len(packed))
		}
		decoded, err := DecodePacked(d, packed, 0, len(states))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		for i, inst := range decoded {
			if !value.Equal(inst.Value, value.Bool(states[i])) {
				t.Errorf("bit %d: got %v, want %v", i, inst.Value, states[i])
			}
		}
	})

	t.Run("double bit", func(t *testing.T) {
		d, err := Lookup(GroupDoubleBitInput, 1)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		states := []int64{0, 1, 2, 3, 2}
		instances := make([]Instance, len(states))
		for i, s := range states {
			instances[i] = Instance{Index: uint32(i), Value: value.Long(s)}
		}
		packed, err := EncodePacked(d, instances)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := DecodePacked(d, packed, 0, len(states))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		for i, inst := range decoded {
			if !value.Equal(inst.Value, value.Long(states[i])) {
				t.Errorf("state %d: got %v, want %d", i, inst.Value, states[i])
			}
		}
	})
}

// Test catalog lookups and the default variation binding.
func TestLookup(t *testing.T) {
	if _, err := Lookup(99, 1); err != ErrUnknownGroup {
		t.Errorf("unknown group: got %v", err)
	}
	if _, err := Lookup(GroupAnalogInput, 99); err != ErrUnknownVariation {
		t.Errorf("unknown variation: got %v", err)
	}

	d, err := DefaultVariation(GroupAnalogInput, point.DataFloat32)
	if err != nil {
		t.Fatalf("default variation: %v", err)
	}
	if d.Variation != 5 {
		t.Errorf("float32 analog input: got v%d, want v5", d.Variation)
	}

	d, err = DefaultVariation(GroupAnalogInput, point.DataInt32)
	if err != nil {
		t.Fatalf("default variation: %v", err)
	}
	if d.Variation != 1 {
		t.Errorf("int32 analog input: got v%d, want v1", d.Variation)
	}
}

// Test value range enforcement on the 16-bit objects.
func TestRangeEnforcement(t *testing.T) {
	d, err := Lookup(GroupAnalogOutputCommand, 2)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := d.Encode(Instance{Value: value.Long(100000)}); err != ErrBadObjectValue {
		t.Errorf("got %v, want %v", err, ErrBadObjectValue)
	}
}
