package app

import (
	"testing"

	"rvpf/internal/dnp3/object"
	"rvpf/internal/value"
)

// Test a READ request roundtrip: header-only items.
func TestRequestRoundtrip(t *testing.T) {
	request := &Fragment{
		Control:  NewControl(true, true, false, false, 5),
		Function: Read,
		Items: []*Item{
			NewRequestItem(object.GroupAnalogInput, 0, 7, 7),
			NewRequestItem(object.GroupBinaryInput, 0, 0, 15),
		},
	}
	encoded, err := request.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Function != Read || decoded.Control.Seq() != 5 {
		t.Fatalf("header mismatch: %s", decoded)
	}
	if len(decoded.Items) != 2 {
		t.Fatalf("%d items, want 2", len(decoded.Items))
	}
	first := decoded.Items[0]
	if first.Group != object.GroupAnalogInput || first.Variation != 0 {
		t.Errorf("first item %s", first)
	}
	if first.Start != 7 || first.Stop != 7 {
		t.Errorf("range %d..%d, want 7..7", first.Start, first.Stop)
	}
	if len(first.Instances) != 0 {
		t.Errorf("request item decoded %d instances", len(first.Instances))
	}
}

// Test a response roundtrip with IIN and ranged instances.
func TestResponseRoundtrip(t *testing.T) {
	d, err := object.Lookup(object.GroupAnalogInput, 5)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	instances := []object.Instance{
		{Index: 4, Flags: 0x01, Value: value.Double(10)},
		{Index: 5, Flags: 0x01, Value: value.Double(20)},
		{Index: 6, Flags: 0x01, Value: value.Double(30)},
		{Index: 7, Flags: 0x01, Value: value.Double(40)},
	}
	response := &Fragment{
		Control:  NewControl(true, true, false, false, 3),
		Function: Response,
		IIN:      IINDeviceRestart | IINClass1Events,
		Items:    []*Item{NewRangeItem(d, 4, 7, instances)},
	}
	encoded, err := response.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.IIN.Has(IINDeviceRestart) || !decoded.IIN.Has(IINClass1Events) {
		t.Errorf("IIN lost: %s", decoded.IIN)
	}
	if len(decoded.Items) != 1 {
		t.Fatalf("%d items, want 1", len(decoded.Items))
	}
	got := decoded.Items[0].Instances
	if len(got) != 4 {
		t.Fatalf("%d instances, want 4", len(got))
	}
	for i, inst := range got {
		if inst.Index != uint32(4+i) {
			t.Errorf("instance %d index %d", i, inst.Index)
		}
		if !value.Equal(inst.Value, instances[i].Value) {
			t.Errorf("instance %d value %v, want %v", i, inst.Value, instances[i].Value)
		}
	}
}

// Test indexed (prefixed) items.
func TestIndexedRoundtrip(t *testing.T) {
	d, err := object.Lookup(object.GroupAnalogOutputCommand, 2)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	instances := []object.Instance{{Index: 3, Value: value.Long(-100)}}
	request := &Fragment{
		Control:  NewControl(true, true, false, false, 0),
		Function: DirectOperate,
		Items:    []*Item{NewIndexedItem(d, instances)},
	}
	encoded, err := request.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	item := decoded.Items[0]
	if item.Prefix != PrefixIndexByte {
		t.Errorf("prefix %d, want index byte", item.Prefix)
	}
	if len(item.Instances) != 1 || item.Instances[0].Index != 3 {
		t.Fatalf("instances %v", item.Instances)
	}
	if !value.Equal(item.Instances[0].Value, value.Long(-100)) {
		t.Errorf("value %v, want -100", item.Instances[0].Value)
	}
}

// Test packed internal indications inside a WRITE.
func TestPackedWrite(t *testing.T) {
	d, err := object.Lookup(object.GroupInternalIndications, 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	instances := []object.Instance{
		{Index: object.DeviceRestartCode, Value: value.Bool(false)},
	}
	write := &Fragment{
		Control:  NewControl(true, true, false, false, 1),
		Function: Write,
		Items:    []*Item{NewRangeItem(d, object.DeviceRestartCode, object.DeviceRestartCode, instances)},
	}
	encoded, err := write.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	item := decoded.Items[0]
	if item.Start != object.DeviceRestartCode {
		t.Errorf("start %d, want %d", item.Start, object.DeviceRestartCode)
	}
	if len(item.Instances) != 1 {
		t.Fatalf("%d instances, want 1", len(item.Instances))
	}
	if !value.Equal(item.Instances[0].Value, value.Bool(false)) {
		t.Errorf("value %v, want false", item.Instances[0].Value)
	}
}

// Test splitting a large response at item boundaries.
func TestEncodeSplit(t *testing.T) {
	d, err := object.Lookup(object.GroupAnalogInput, 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	var items []*Item
	for i := 0; i < 40; i++ {
		items = append(items, NewRangeItem(d, uint32(i), uint32(i),
			[]object.Instance{{Index: uint32(i), Flags: 0x01, Value: value.Long(int64(i))}}))
	}
	fragment := &Fragment{
		Control:  NewControl(true, true, false, false, 2),
		Function: Response,
		Items:    items,
	}
	pieces, err := fragment.EncodeSplit(100)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(pieces))
	}
	total := 0
	for i, piece := range pieces {
		if len(piece) > 100 {
			t.Errorf("piece %d is %d bytes", i, len(piece))
		}
		decoded, err := Decode(piece)
		if err != nil {
			t.Fatalf("piece %d: %v", i, err)
		}
		if decoded.Control.Fir() != (i == 0) {
			t.Errorf("piece %d: fir=%t", i, decoded.Control.Fir())
		}
		if decoded.Control.Fin() != (i == len(pieces)-1) {
			t.Errorf("piece %d: fin=%t", i, decoded.Control.Fin())
		}
		total += len(decoded.Items)
	}
	if total != 40 {
		t.Errorf("items across pieces: %d, want 40", total)
	}
}

// Test the qualifier packing and the unknown-code rejections.
func TestQualifier(t *testing.T) {
	q := Qualifier(PrefixIndexShort, RangeCountShort)
	prefix, rng := SplitQualifier(q)
	if prefix != PrefixIndexShort || rng != RangeCountShort {
		t.Errorf("qualifier roundtrip: %d %d", prefix, rng)
	}

	bad := []byte{byte(NewControl(true, true, false, false, 0)), byte(Write),
		30, 1, Qualifier(PrefixNone, 10), 0}
	if _, err := Decode(bad); err != ErrUnknownRangeCode {
		t.Errorf("got %v, want %v", err, ErrUnknownRangeCode)
	}
}
