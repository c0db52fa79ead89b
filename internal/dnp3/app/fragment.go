package app

import (
	"bytes"
	"fmt"
)

// Fragment is one complete application-layer message: the control octet,
// the function code, the internal indications (responses only) and the
// object items.
type Fragment struct {
	Control  Control
	Function FunctionCode
	IIN      IIN
	Items    []*Item
}

func (f *Fragment) String() string {
	return fmt.Sprintf("%s [%s] %d items", f.Function, f.Control, len(f.Items))
}

// WithObjects reports whether fragments with this function code carry
// object instances after their item headers. Requests like READ ship
// headers only.
func (f FunctionCode) WithObjects() bool {
	switch f {
	case Read, Confirm, EnableUnsolicited, DisableUnsolicited,
		DelayMeasurement, RecordCurrentTime, ColdRestart, WarmRestart:
		return false
	}
	return true
}

// Encode serializes the fragment.
func (f *Fragment) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(f.Control))
	buf.WriteByte(byte(f.Function))
	if f.Function.IsResponse() {
		buf.WriteByte(byte(f.IIN))
		buf.WriteByte(byte(f.IIN >> 8))
	}
	for _, item := range f.Items {
		if err := item.encode(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a fragment buffer.
func Decode(buf []byte) (*Fragment, error) {
	r := &byteReader{buf: buf}
	control, err := r.byte()
	if err != nil {
		return nil, err
	}
	function, err := r.byte()
	if err != nil {
		return nil, err
	}
	fragment := &Fragment{
		Control:  Control(control),
		Function: FunctionCode(function),
	}
	if fragment.Function.IsResponse() {
		lo, err := r.byte()
		if err != nil {
			return nil, err
		}
		hi, err := r.byte()
		if err != nil {
			return nil, err
		}
		fragment.IIN = IIN(lo) | IIN(hi)<<8
	}
	withObjects := fragment.Function.WithObjects()
	for r.remaining() > 0 {
		item, err := decodeItem(r, withObjects)
		if err != nil {
			return nil, err
		}
		fragment.Items = append(fragment.Items, item)
	}
	return fragment, nil
}

// EncodeSplit serializes the fragment, splitting it at item boundaries
// into application fragments of at most max bytes. The FIR/FIN control
// bits mark the series; CON, UNS and the sequence are preserved on every
// piece. A fragment whose single item exceeds max is returned whole.
func (f *Fragment) EncodeSplit(max int) ([][]byte, error) {
	whole, err := f.Encode()
	if err != nil {
		return nil, err
	}
	if max <= 0 || len(whole) <= max {
		return [][]byte{whole}, nil
	}

	headerSize := 2
	if f.Function.IsResponse() {
		headerSize = 4
	}
	var pieces [][]*Item
	var current []*Item
	size := headerSize
	for _, item := range f.Items {
		var itemBuf bytes.Buffer
		if err := item.encode(&itemBuf); err != nil {
			return nil, err
		}
		if len(current) > 0 && size+itemBuf.Len() > max {
			pieces = append(pieces, current)
			current = nil
			size = headerSize
		}
		current = append(current, item)
		size += itemBuf.Len()
	}
	if len(current) > 0 {
		pieces = append(pieces, current)
	}

	encoded := make([][]byte, 0, len(pieces))
	for i, items := range pieces {
		piece := &Fragment{
			Control: NewControl(i == 0, i == len(pieces)-1,
				f.Control.Con(), f.Control.Uns(), f.Control.Seq()),
			Function: f.Function,
			IIN:      f.IIN,
			Items:    items,
		}
		buf, err := piece.Encode()
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, buf)
	}
	return encoded, nil
}
