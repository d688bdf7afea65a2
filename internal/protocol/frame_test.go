package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestFragmentSizes(t *testing.T) {
	frame := make([]byte, 100)
	tests := []struct {
		mtu  int
		want []int
	}{
		{mtu: 20, want: []int{20, 20, 20, 20, 20}},
		{mtu: 30, want: []int{30, 30, 30, 10}},
		{mtu: 100, want: []int{100}},
		{mtu: 350, want: []int{100}},
		{mtu: 0, want: []int{20, 20, 20, 20, 20}}, // unset falls back to minimum
	}
	for _, tt := range tests {
		frags := Fragment(frame, tt.mtu)
		if len(frags) != len(tt.want) {
			t.Errorf("mtu %d: got %d fragments, want %d", tt.mtu, len(frags), len(tt.want))
			continue
		}
		for i, f := range frags {
			if len(f) != tt.want[i] {
				t.Errorf("mtu %d: fragment %d is %d bytes, want %d", tt.mtu, i, len(f), tt.want[i])
			}
		}
	}
}

// Frames fragmented at any MTU must reassemble to the original
// payloads, regardless of how the fragments slice frame boundaries.
func TestFrameRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 19, 20, 127, 128, 350, 4096, 65536}
	for _, mtu := range []int{20, 23, 185, 512} {
		t.Run(fmt.Sprintf("mtu%d", mtu), func(t *testing.T) {
			var wire [][]byte
			var want [][]byte
			for _, size := range sizes {
				payload := make([]byte, size)
				for i := range payload {
					payload[i] = byte(i * 7)
				}
				want = append(want, payload)
				wire = append(wire, Fragment(EncodeFrame(payload), mtu)...)
			}

			var r Reassembler
			var got [][]byte
			for _, pkt := range wire {
				r.Feed(pkt)
				for {
					payload, ok, err := r.Next()
					if err != nil {
						t.Fatalf("Next: %v", err)
					}
					if !ok {
						break
					}
					got = append(got, payload)
				}
			}
			if len(got) != len(want) {
				t.Fatalf("got %d frames, want %d", len(got), len(want))
			}
			for i := range want {
				if !bytes.Equal(got[i], want[i]) {
					t.Errorf("frame %d mismatch: got %d bytes, want %d", i, len(got[i]), len(want[i]))
				}
			}
			if r.Pending() != 0 {
				t.Errorf("%d bytes left pending", r.Pending())
			}
		})
	}
}

// Two frames arriving in a single notification payload must both come
// out; the codec may not assume one frame per write.
func TestFramesCoalesced(t *testing.T) {
	a := EncodeFrame([]byte("first"))
	b := EncodeFrame([]byte("second"))

	var r Reassembler
	r.Feed(append(append([]byte{}, a...), b...))

	p1, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("first frame: ok=%v err=%v", ok, err)
	}
	p2, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("second frame: ok=%v err=%v", ok, err)
	}
	if string(p1) != "first" || string(p2) != "second" {
		t.Errorf("got %q, %q", p1, p2)
	}
}

func TestTruncatedFrameLeavesPending(t *testing.T) {
	frame := EncodeFrame(make([]byte, 300))

	var r Reassembler
	r.Feed(frame[:150]) // stream dies mid-frame

	_, ok, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatal("yielded a frame from truncated input")
	}
	if r.Pending() != 150 {
		t.Errorf("Pending = %d, want 150", r.Pending())
	}
}

func TestOversizeFrameRejected(t *testing.T) {
	var r Reassembler
	r.Feed([]byte{0xff, 0xff, 0xff, 0xff, 0x7f})

	_, _, err := r.Next()
	if err == nil {
		t.Fatal("accepted an absurd length prefix")
	}
}

func TestErrTruncatedSentinel(t *testing.T) {
	if !errors.Is(fmt.Errorf("stream end: %w", ErrTruncated), ErrTruncated) {
		t.Fatal("ErrTruncated does not survive wrapping")
	}
}
