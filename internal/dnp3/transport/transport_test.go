package transport

import (
	"bytes"
	"testing"
)

// Test segmentation/reassembly roundtrips across the boundary sizes.
func TestRoundtrip(t *testing.T) {
	segmenter := &Segmenter{}
	reassembler := NewReassembler(DefaultMasterFragment)
	for _, size := range []int{0, 1, 249, 250, 500, 2048} {
		fragment := make([]byte, size)
		for i := range fragment {
			fragment[i] = byte(i * 13)
		}
		segments := segmenter.Split(fragment)

		want := (size + MaxSegment - 1) / MaxSegment
		if want == 0 {
			want = 1
		}
		if len(segments) != want {
			t.Fatalf("size %d: %d segments, want %d", size, len(segments), want)
		}

		var rebuilt []byte
		var done bool
		for _, segment := range segments {
			var err error
			rebuilt, done, err = reassembler.Feed(segment)
			if err != nil {
				t.Fatalf("size %d: feed: %v", size, err)
			}
		}
		if !done {
			t.Fatalf("size %d: fragment never completed", size)
		}
		if !bytes.Equal(rebuilt, fragment) {
			t.Fatalf("size %d: reassembly mismatch", size)
		}
	}
}

// Test that a 600-byte fragment splits into segments of 250/250/103 bytes
// (249/249/102 user bytes plus the header) and reassembles.
func TestSplitSizes(t *testing.T) {
	fragment := make([]byte, 600)
	for i := range fragment {
		fragment[i] = byte(i)
	}
	segments := (&Segmenter{}).Split(fragment)
	if len(segments) != 3 {
		t.Fatalf("%d segments, want 3", len(segments))
	}
	sizes := []int{250, 250, 103}
	for i, segment := range segments {
		if len(segment) != sizes[i] {
			t.Errorf("segment %d: %d bytes, want %d", i, len(segment), sizes[i])
		}
	}
	header := Header(segments[0][0])
	if !header.Fir() || header.Fin() {
		t.Errorf("first segment: %s", header)
	}
	header = Header(segments[2][0])
	if header.Fir() || !header.Fin() {
		t.Errorf("last segment: %s", header)
	}

	reassembler := NewReassembler(DefaultMasterFragment)
	var rebuilt []byte
	var done bool
	for _, segment := range segments {
		var err error
		rebuilt, done, err = reassembler.Feed(segment)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if !done || len(rebuilt) != 600 {
		t.Fatalf("reassembled %d bytes, done=%t", len(rebuilt), done)
	}
}

// Test the sequence wraparound across many fragments.
func TestSequenceWrap(t *testing.T) {
	segmenter := &Segmenter{}
	reassembler := NewReassembler(DefaultMasterFragment)
	payload := make([]byte, 600)
	for round := 0; round < 50; round++ {
		for _, segment := range segmenter.Split(payload) {
			if _, _, err := reassembler.Feed(segment); err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
		}
	}
}

// Test the protocol violations.
func TestViolations(t *testing.T) {
	t.Run("missing fir", func(t *testing.T) {
		reassembler := NewReassembler(DefaultMasterFragment)
		segment := []byte{byte(NewHeader(false, true, 0)), 1, 2, 3}
		if _, _, err := reassembler.Feed(segment); err != ErrInvertedFirBit {
			t.Errorf("got %v, want %v", err, ErrInvertedFirBit)
		}
	})

	t.Run("sequence gap", func(t *testing.T) {
		reassembler := NewReassembler(DefaultMasterFragment)
		first := append([]byte{byte(NewHeader(true, false, 0))}, make([]byte, MaxSegment)...)
		if _, _, err := reassembler.Feed(first); err != nil {
			t.Fatalf("first: %v", err)
		}
		skipped := []byte{byte(NewHeader(false, true, 2)), 1}
		if _, _, err := reassembler.Feed(skipped); err != ErrUnexpectedSegmentSequence {
			t.Errorf("got %v, want %v", err, ErrUnexpectedSegmentSequence)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		reassembler := NewReassembler(MinFragment)
		segmenter := &Segmenter{}
		segments := segmenter.Split(make([]byte, 500))
		_, _, err := reassembler.Feed(segments[0])
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		if _, _, err = reassembler.Feed(segments[1]); err != ErrFragmentBufferOverflow {
			t.Errorf("got %v, want %v", err, ErrFragmentBufferOverflow)
		}
	})
}
