package app

import (
	"bytes"
	"encoding/binary"

	"rvpf/internal/dnp3/object"
)

// Item is one object header with its range and decoded instances. A
// variation-zero item (any variation, as in READ requests) carries a nil
// descriptor and no instances.
type Item struct {
	Group      byte
	Variation  byte
	Descriptor *object.Descriptor

	Prefix PrefixCode
	Range  RangeCode
	Start  uint32
	Stop   uint32
	Count  uint32

	Instances []object.Instance
}

// NewRangeItem builds a start/stop item over instances, choosing the
// narrowest range width that fits.
func NewRangeItem(d *object.Descriptor, start, stop uint32, instances []object.Instance) *Item {
	item := &Item{
		Group:      d.Group,
		Variation:  d.Variation,
		Descriptor: d,
		Prefix:     PrefixNone,
		Start:      start,
		Stop:       stop,
		Instances:  instances,
	}
	switch {
	case stop <= 0xFF:
		item.Range = RangeStartStopByte
	case stop <= 0xFFFF:
		item.Range = RangeStartStopShort
	default:
		item.Range = RangeStartStopInt
	}
	return item
}

// NewRequestItem builds a header-only item (no instances) for a read of
// the index range, with variation zero meaning "any variation".
func NewRequestItem(group, variation byte, start, stop uint32) *Item {
	item := &Item{
		Group:     group,
		Variation: variation,
		Prefix:    PrefixNone,
		Start:     start,
		Stop:      stop,
	}
	if d, err := object.Lookup(group, variation); err == nil {
		item.Descriptor = d
	}
	switch {
	case stop <= 0xFF:
		item.Range = RangeStartStopByte
	case stop <= 0xFFFF:
		item.Range = RangeStartStopShort
	default:
		item.Range = RangeStartStopInt
	}
	return item
}

// NewAllItem builds a header-only item with no range field, the "all
// points" request form (class polls).
func NewAllItem(group, variation byte) *Item {
	return &Item{Group: group, Variation: variation, Prefix: PrefixNone, Range: RangeNone}
}

// NewIndexedItem builds a count item whose instances carry explicit
// indexes, choosing the narrowest widths that fit.
func NewIndexedItem(d *object.Descriptor, instances []object.Instance) *Item {
	item := &Item{
		Group:      d.Group,
		Variation:  d.Variation,
		Descriptor: d,
		Count:      uint32(len(instances)),
		Instances:  instances,
	}
	var maxIndex uint32
	for _, inst := range instances {
		if inst.Index > maxIndex {
			maxIndex = inst.Index
		}
	}
	switch {
	case maxIndex <= 0xFF && len(instances) <= 0xFF:
		item.Prefix = PrefixIndexByte
		item.Range = RangeCountByte
	case maxIndex <= 0xFFFF && len(instances) <= 0xFFFF:
		item.Prefix = PrefixIndexShort
		item.Range = RangeCountShort
	default:
		item.Prefix = PrefixIndexInt
		item.Range = RangeCountInt
	}
	return item
}

// InstanceCount is the number of object instances the item's range
// declares.
func (item *Item) InstanceCount() int {
	switch item.Range {
	case RangeStartStopByte, RangeStartStopShort, RangeStartStopInt,
		RangeAddressByte, RangeAddressShort, RangeAddressInt:
		if item.Stop < item.Start {
			return 0
		}
		return int(item.Stop-item.Start) + 1
	case RangeNone:
		return 0
	default:
		return int(item.Count)
	}
}

func (item *Item) String() string {
	return "g" + itoa(item.Group) + "v" + itoa(item.Variation)
}

func itoa(b byte) string {
	const digits = "0123456789"
	if b < 10 {
		return digits[b : b+1]
	}
	if b < 100 {
		return string([]byte{digits[b/10], digits[b%10]})
	}
	return string([]byte{digits[b/100], digits[b/10%10], digits[b%10]})
}

// encode appends the item's object header, range field and instances.
func (item *Item) encode(buf *bytes.Buffer) error {
	buf.WriteByte(item.Group)
	buf.WriteByte(item.Variation)
	buf.WriteByte(Qualifier(item.Prefix, item.Range))

	switch item.Range {
	case RangeStartStopByte, RangeAddressByte:
		buf.WriteByte(byte(item.Start))
		buf.WriteByte(byte(item.Stop))
	case RangeStartStopShort, RangeAddressShort:
		writeUint16(buf, uint16(item.Start))
		writeUint16(buf, uint16(item.Stop))
	case RangeStartStopInt, RangeAddressInt:
		writeUint32(buf, item.Start)
		writeUint32(buf, item.Stop)
	case RangeNone:
	case RangeCountByte, RangeVariableCountByte:
		buf.WriteByte(byte(item.Count))
	case RangeCountShort:
		writeUint16(buf, uint16(item.Count))
	case RangeCountInt:
		writeUint32(buf, item.Count)
	default:
		return ErrUnknownRangeCode
	}

	if len(item.Instances) == 0 {
		return nil
	}
	d := item.Descriptor
	if d == nil {
		return object.ErrUnknownVariation
	}
	if d.IsPacked() {
		packed, err := object.EncodePacked(d, item.Instances)
		if err != nil {
			return err
		}
		buf.Write(packed)
		return nil
	}
	for _, inst := range item.Instances {
		if err := item.writePrefix(buf, inst, d); err != nil {
			return err
		}
		encoded, err := d.Encode(inst)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	}
	return nil
}

func (item *Item) writePrefix(buf *bytes.Buffer, inst object.Instance, d *object.Descriptor) error {
	switch item.Prefix {
	case PrefixNone:
	case PrefixIndexByte:
		buf.WriteByte(byte(inst.Index))
	case PrefixIndexShort:
		writeUint16(buf, uint16(inst.Index))
	case PrefixIndexInt:
		writeUint32(buf, inst.Index)
	case PrefixSizeByte:
		buf.WriteByte(byte(d.Size))
	case PrefixSizeShort:
		writeUint16(buf, uint16(d.Size))
	case PrefixSizeInt:
		writeUint32(buf, uint32(d.Size))
	default:
		return ErrUnknownPrefixCode
	}
	return nil
}

// decodeItem reads one item from the reader. Items in header-only
// fragments (READ and the other object-less requests) carry no instances
// regardless of their declared range.
func decodeItem(r *byteReader, withObjects bool) (*Item, error) {
	group, err := r.byte()
	if err != nil {
		return nil, err
	}
	variation, err := r.byte()
	if err != nil {
		return nil, err
	}
	qualifier, err := r.byte()
	if err != nil {
		return nil, err
	}
	prefix, rng := SplitQualifier(qualifier)
	if prefix > PrefixSizeInt {
		return nil, ErrUnknownPrefixCode
	}
	item := &Item{Group: group, Variation: variation, Prefix: prefix, Range: rng}

	switch rng {
	case RangeStartStopByte, RangeAddressByte:
		if item.Start, item.Stop, err = r.pair(1); err != nil {
			return nil, err
		}
	case RangeStartStopShort, RangeAddressShort:
		if item.Start, item.Stop, err = r.pair(2); err != nil {
			return nil, err
		}
	case RangeStartStopInt, RangeAddressInt:
		if item.Start, item.Stop, err = r.pair(4); err != nil {
			return nil, err
		}
	case RangeNone:
	case RangeCountByte, RangeVariableCountByte:
		if item.Count, err = r.uint(1); err != nil {
			return nil, err
		}
	case RangeCountShort:
		if item.Count, err = r.uint(2); err != nil {
			return nil, err
		}
	case RangeCountInt:
		if item.Count, err = r.uint(4); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownRangeCode
	}

	if variation == 0 {
		// Any-variation request header; no instances follow.
		return item, nil
	}
	d, err := object.Lookup(group, variation)
	if err != nil {
		return nil, err
	}
	item.Descriptor = d

	count := item.InstanceCount()
	if count == 0 || !withObjects {
		return item, nil
	}
	if d.IsPacked() {
		packed, err := r.bytes(object.PackedSize(d, count))
		if err != nil {
			return nil, err
		}
		item.Instances, err = object.DecodePacked(d, packed, item.Start, count)
		return item, err
	}
	item.Instances = make([]object.Instance, 0, count)
	for i := 0; i < count; i++ {
		index := item.Start + uint32(i)
		switch item.Prefix {
		case PrefixIndexByte:
			idx, err := r.uint(1)
			if err != nil {
				return nil, err
			}
			index = idx
		case PrefixIndexShort:
			idx, err := r.uint(2)
			if err != nil {
				return nil, err
			}
			index = idx
		case PrefixIndexInt:
			idx, err := r.uint(4)
			if err != nil {
				return nil, err
			}
			index = idx
		case PrefixSizeByte:
			if _, err := r.uint(1); err != nil {
				return nil, err
			}
		case PrefixSizeShort:
			if _, err := r.uint(2); err != nil {
				return nil, err
			}
		case PrefixSizeInt:
			if _, err := r.uint(4); err != nil {
				return nil, err
			}
		}
		raw, err := r.bytes(d.Size)
		if err != nil {
			return nil, err
		}
		inst, err := d.Decode(raw)
		if err != nil {
			return nil, err
		}
		inst.Index = index
		item.Instances = append(item.Instances, inst)
	}
	return item, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], v)
	buf.Write(scratch[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

// byteReader is a little-endian cursor over a fragment payload.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrShortFragment
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrShortFragment
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) uint(width int) (uint32, error) {
	raw, err := r.bytes(width)
	if err != nil {
		return 0, err
	}
	var v uint32
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint32(raw[i])
	}
	return v, nil
}

func (r *byteReader) pair(width int) (uint32, uint32, error) {
	start, err := r.uint(width)
	if err != nil {
		return 0, 0, err
	}
	stop, err := r.uint(width)
	if err != nil {
		return 0, 0, err
	}
	return start, stop, nil
}
