package rpc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/flipwire/flipwire/internal/protocol"
)

// streamBuffer is how many routed frames a stream may hold before the
// dispatch loop is pushed back on. Large downloads fill it quickly; the
// consumer drains it just as quickly.
const streamBuffer = 64

// drainTimeout bounds how long Close waits for the peripheral to finish
// a stream the consumer abandoned.
const drainTimeout = 10 * time.Second

// Stream is a lazy sequence of response frames for one streaming
// command. It is not restartable: once the terminal frame (has_next =
// false) has been yielded the stream is done, and the session's command
// slot is released. A consumer that stops early must call Close so the
// remaining frames are drained and the single-command-in-flight rule
// holds for the next caller.
type Stream struct {
	s    *Session
	id   uint32
	w    *waiter
	once sync.Once
	done bool
}

// Next yields the next response frame, suspending until it arrives.
// After the terminal frame has been returned, Next reports io.EOF.
func (st *Stream) Next(ctx context.Context) (*protocol.Main, error) {
	if st.done {
		return nil, io.EOF
	}
	m, err := st.s.await(ctx, st.w)
	if err != nil {
		st.done = true
		st.finish()
		return nil, err
	}
	if !m.HasNext {
		st.done = true
		st.finish()
	}
	return m, nil
}

// Close drains and discards any frames still owed to this command,
// then releases the session's command slot. Safe to call after normal
// exhaustion.
func (st *Stream) Close() error {
	if st.done {
		st.finish()
		return nil
	}
	st.done = true

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		m, err := st.s.await(ctx, st.w)
		if err != nil {
			break
		}
		if !m.HasNext {
			break
		}
	}
	st.s.unregister(st.id)
	st.finish()
	return nil
}

func (st *Stream) finish() {
	st.once.Do(st.s.release)
}
