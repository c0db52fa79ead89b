package dnp3

import (
	"bytes"
	"testing"
)

// Test the frame encode/decode roundtrip across data sizes.
func TestFrameRoundtrip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 100, 249, 250} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 7)
		}
		frame := &Frame{
			Control:     NewControl(true, true, false, false, UnconfirmedUserData),
			Destination: 0x0004,
			Source:      0x0003,
			Data:        data,
		}
		encoded, err := frame.Encode()
		if err != nil {
			t.Fatalf("size %d: encode: %v", size, err)
		}
		if len(encoded) > MaxFrame {
			t.Fatalf("size %d: frame %d bytes over the maximum", size, len(encoded))
		}
		decoded, consumed, err := DecodeFrame(encoded)
		if err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if consumed != len(encoded) {
			t.Errorf("size %d: consumed %d of %d", size, consumed, len(encoded))
		}
		if decoded.Control != frame.Control ||
			decoded.Destination != frame.Destination ||
			decoded.Source != frame.Source {
			t.Errorf("size %d: header mismatch: %s", size, decoded)
		}
		if !bytes.Equal(decoded.Data, data) {
			t.Errorf("size %d: data mismatch", size)
		}
	}
}

// Test that flipping any single bit of a serialized frame is caught by a
// CRC (or turns the start/length fields invalid).
func TestFrameBitFlip(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	frame := &Frame{
		Control:     NewControl(false, true, false, false, ConfirmedUserData),
		Destination: 0x1234,
		Source:      0x5678,
		Data:        data,
	}
	encoded, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < len(encoded)*8; i++ {
		corrupted := make([]byte, len(encoded))
		copy(corrupted, encoded)
		corrupted[i/8] ^= 1 << (i % 8)
		decoded, _, err := DecodeFrame(corrupted)
		if err == nil && bytes.Equal(decoded.Data, data) &&
			decoded.Control == frame.Control &&
			decoded.Destination == frame.Destination &&
			decoded.Source == frame.Source {
			t.Fatalf("bit flip at %d went undetected", i)
		}
	}
}

// Test the empty-frame invariant: LEN==5 means no data blocks at all.
func TestFrameNoData(t *testing.T) {
	frame := &Frame{Control: NewControl(true, true, false, false, ResetLink)}
	encoded, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(encoded) != 10 {
		t.Errorf("empty frame is %d bytes, want 10", len(encoded))
	}
	if encoded[2] != 5 {
		t.Errorf("length field %d, want 5", encoded[2])
	}
}

// Test decode rejections.
func TestFrameDecodeErrors(t *testing.T) {
	frame := &Frame{
		Control:     NewControl(true, true, false, false, UnconfirmedUserData),
		Destination: 1,
		Source:      2,
		Data:        []byte{1, 2, 3},
	}
	encoded, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	t.Run("bad start", func(t *testing.T) {
		bad := append([]byte{}, encoded...)
		bad[0] = 0x06
		if _, _, err := DecodeFrame(bad); err != ErrInvalidStartField {
			t.Errorf("got %v, want %v", err, ErrInvalidStartField)
		}
	})

	t.Run("bad header crc", func(t *testing.T) {
		bad := append([]byte{}, encoded...)
		bad[4] ^= 0xFF
		if _, _, err := DecodeFrame(bad); err != ErrBadCRC {
			t.Errorf("got %v, want %v", err, ErrBadCRC)
		}
	})

	t.Run("bad data crc", func(t *testing.T) {
		bad := append([]byte{}, encoded...)
		bad[10] ^= 0xFF
		if _, _, err := DecodeFrame(bad); err != ErrBadCRC {
			t.Errorf("got %v, want %v", err, ErrBadCRC)
		}
	})

	t.Run("oversized data", func(t *testing.T) {
		big := &Frame{Data: make([]byte, MaxData+1)}
		if _, err := big.Encode(); err != ErrDataTooLarge {
			t.Errorf("got %v, want %v", err, ErrDataTooLarge)
		}
	})
}

// Test the control-byte bit layout and function-code extraction.
func TestControlBits(t *testing.T) {
	c := NewControl(true, true, false, true, RequestLinkStatus)
	if !c.Dir() || !c.Prm() || c.Fcb() || !c.Fcv() {
		t.Errorf("control bits wrong: %s", c)
	}
	if c.Function() != RequestLinkStatus {
		t.Errorf("function: got %d, want %d", c.Function(), RequestLinkStatus)
	}
}
