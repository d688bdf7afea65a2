package ble

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeWriter struct {
	writes [][]byte
	err    error
}

func (w *fakeWriter) WriteWithoutResponse(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func newTestChannel(w CharWriter, mtu int) *Channel {
	return NewChannel(w, ChannelOptions{MTU: mtu, Logger: zerolog.Nop()})
}

func TestMTUClamped(t *testing.T) {
	tests := []struct {
		mtu  int
		want int
	}{
		{mtu: 0, want: DefaultMTU},
		{mtu: 23, want: 23},
		{mtu: 500, want: MaxTU},
	}
	for _, tt := range tests {
		if got := newTestChannel(&fakeWriter{}, tt.mtu).MTU(); got != tt.want {
			t.Errorf("MTU(%d) = %d, want %d", tt.mtu, got, tt.want)
		}
	}
}

func TestSendRejectsOversize(t *testing.T) {
	w := &fakeWriter{}
	ch := newTestChannel(w, 23)

	if err := ch.Send(make([]byte, 24)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if len(w.writes) != 0 {
		t.Errorf("oversize payload reached the writer")
	}
	// The channel stays usable; oversize is a caller bug, not a link
	// failure.
	if err := ch.Send(make([]byte, 23)); err != nil {
		t.Fatalf("Send after rejection: %v", err)
	}
}

func TestWriteFailureIsTerminal(t *testing.T) {
	w := &fakeWriter{err: errors.New("att timeout")}
	ch := newTestChannel(w, 23)

	if err := ch.Send([]byte{1}); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("first Send: %v, want ErrDisconnected", err)
	}
	select {
	case <-ch.Done():
	default:
		t.Fatal("Done not closed after write failure")
	}

	w.err = nil
	if err := ch.Send([]byte{2}); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Send after failure: %v, want ErrDisconnected", err)
	}
}

func TestPushPreservesOrder(t *testing.T) {
	ch := newTestChannel(&fakeWriter{}, 23)
	ch.Push([]byte{1})
	ch.Push([]byte{2})
	ch.Push([]byte{3})

	for i := byte(1); i <= 3; i++ {
		select {
		case p := <-ch.Packets():
			if !bytes.Equal(p, []byte{i}) {
				t.Fatalf("packet %d = %v", i, p)
			}
		default:
			t.Fatalf("packet %d missing", i)
		}
	}
}

func TestPushCopiesPayload(t *testing.T) {
	ch := newTestChannel(&fakeWriter{}, 23)
	buf := []byte{42}
	ch.Push(buf)
	buf[0] = 0 // stack reuses its buffer

	if p := <-ch.Packets(); p[0] != 42 {
		t.Errorf("payload aliased the caller's buffer")
	}
}

func TestCloseUnblocksPush(t *testing.T) {
	ch := newTestChannel(&fakeWriter{}, 23)
	// Fill the queue so the next Push would block.
	for i := 0; i < 64; i++ {
		ch.Push([]byte{byte(i)})
	}

	done := make(chan struct{})
	go func() {
		ch.Push([]byte{0xff})
		close(done)
	}()
	ch.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push still blocked after Close")
	}
}

func TestFlowDelayPausesSend(t *testing.T) {
	w := &fakeWriter{}
	ch := NewChannel(w, ChannelOptions{MTU: 23, FlowDelay: 20 * time.Millisecond, Logger: zerolog.Nop()})

	ch.PushFlow([]byte{8})
	start := time.Now()
	if err := ch.Send([]byte{1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Send returned after %v, want at least the flow delay", elapsed)
	}

	// The pause is one-shot until the peripheral speaks again.
	start = time.Now()
	if err := ch.Send([]byte{2}); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("second Send paused %v without a flow notification", elapsed)
	}
}

func TestFailRecordsCause(t *testing.T) {
	ch := newTestChannel(&fakeWriter{}, 23)
	cause := errors.New("supervision timeout")
	ch.Fail(cause)

	err := ch.Err()
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Err = %v, want ErrDisconnected", err)
	}

	// A later Close must not overwrite the original cause.
	ch.Close()
	if got := ch.Err(); got.Error() != err.Error() {
		t.Errorf("cause overwritten: %v", got)
	}
}
