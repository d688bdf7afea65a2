// Package rpc correlates commands with their responses over one
// Flipper serial channel. The protocol tags every request with a
// command_id and echoes it on each response frame; a background
// dispatch loop reassembles frames and routes them to whichever caller
// is waiting on that id. The peripheral gives no evidence of handling
// concurrently outstanding commands reliably, so a session admits at
// most one command in flight; concurrent callers queue.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flipwire/flipwire/internal/protocol"
)

var (
	// ErrDisconnected resolves every call pending when the transport
	// dies. This is the documented real-world failure: some adapters
	// drop the link mid-download, and anything still waiting for
	// notifications must fail immediately rather than hang.
	ErrDisconnected = errors.New("rpc: transport disconnected")

	// ErrTimeout reports that the peripheral produced no response
	// frame within the configured window.
	ErrTimeout = errors.New("rpc: command timed out")

	// ErrProtocol reports a response whose shape does not match the
	// command that was issued.
	ErrProtocol = errors.New("rpc: protocol violation")
)

// RemoteError carries an explicit failure status from the peripheral.
type RemoteError struct {
	Status protocol.CommandStatus
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: peripheral returned %s", e.Status)
}

// Transport is the byte pipe a session runs over. *ble.Channel is the
// real implementation; tests substitute an in-memory one.
type Transport interface {
	MTU() int
	Send(p []byte) error
	Packets() <-chan []byte
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Options configures a Session.
type Options struct {
	// Timeout bounds the wait for each response frame. A peripheral
	// that stops answering is the same failure class as a disconnect,
	// so hitting the timeout also tears the transport down. Zero
	// disables the timer.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// waiter is one pending command table entry. frames receives routed
// response frames; fail resolves the entry when the session dies with
// the command still outstanding.
type waiter struct {
	frames chan *protocol.Main
	fail   chan error
}

// Session issues commands on a Transport and owns its inbound side.
type Session struct {
	t       Transport
	log     zerolog.Logger
	timeout time.Duration

	// gate holds one token; a command keeps it from submission until
	// its terminal response frame (or its stream is drained).
	gate chan struct{}

	mu      sync.Mutex
	pending map[uint32]*waiter
	nextID  uint32

	done chan struct{}
}

// NewSession starts the dispatch loop and takes ownership of t. The
// session is finished when t terminates; sessions do not survive
// reconnection and command ids are never reused.
func NewSession(t Transport, opts Options) *Session {
	s := &Session{
		t:       t,
		log:     opts.Logger,
		timeout: opts.Timeout,
		gate:    make(chan struct{}, 1),
		pending: make(map[uint32]*waiter),
		done:    make(chan struct{}),
	}
	s.gate <- struct{}{}
	go s.dispatch()
	return s
}

// Close tears down the transport and waits for the dispatch loop to
// resolve every pending command.
func (s *Session) Close() error {
	s.t.Close()
	<-s.done
	return nil
}

// CallOnce issues a simple command: exactly one response frame.
func (s *Session) CallOnce(ctx context.Context, content protocol.Content) (*protocol.Main, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	id, w := s.register(1)
	s.log.Debug().Uint32("command_id", id).Type("content", content).Msg("call")
	if err := s.send(&protocol.Main{CommandID: id, Content: content}); err != nil {
		s.unregister(id)
		return nil, err
	}

	resp, err := s.await(ctx, w)
	if err != nil {
		s.unregister(id)
		return nil, err
	}
	if resp.HasNext {
		// The dispatch loop keeps the entry alive for streaming
		// replies; a simple call must not receive one.
		s.unregister(id)
		return nil, fmt.Errorf("%w: streaming reply to a simple call", ErrProtocol)
	}
	if resp.Status != protocol.StatusOK {
		return resp, &RemoteError{Status: resp.Status}
	}
	return resp, nil
}

// CallStream issues a streaming command: zero or more frames marked
// has_next followed by one terminal frame. The returned stream holds
// the session's single command slot until it is exhausted or closed;
// Close drains and discards anything the peripheral is still sending.
func (s *Session) CallStream(ctx context.Context, content protocol.Content) (*Stream, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	id, w := s.register(streamBuffer)
	s.log.Debug().Uint32("command_id", id).Type("content", content).Msg("call stream")
	if err := s.send(&protocol.Main{CommandID: id, Content: content}); err != nil {
		s.unregister(id)
		s.release()
		return nil, err
	}
	return &Stream{s: s, id: id, w: w}, nil
}

// Post sends a frame without registering a response waiter. Used for
// the acknowledgments the peripheral never answers, like the OK sent
// after a completed download.
func (s *Session) Post(ctx context.Context, content protocol.Content) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	s.log.Debug().Uint32("command_id", id).Type("content", content).Msg("post")
	return s.send(&protocol.Main{CommandID: id, Content: content})
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.t.Done():
		return s.disconnectErr()
	}
}

func (s *Session) release() {
	select {
	case s.gate <- struct{}{}:
	default:
	}
}

func (s *Session) register(buffer int) (uint32, *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	w := &waiter{
		frames: make(chan *protocol.Main, buffer),
		fail:   make(chan error, 1),
	}
	s.pending[id] = w
	return id, w
}

func (s *Session) unregister(id uint32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// send serializes the envelope, length-delimits it, and writes it as a
// series of MTU-sized payloads.
func (s *Session) send(m *protocol.Main) error {
	frame := protocol.EncodeFrame(m.Marshal())
	for _, p := range protocol.Fragment(frame, s.t.MTU()) {
		if err := s.t.Send(p); err != nil {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
	}
	return nil
}

// await blocks for the next routed frame. Buffered frames win over a
// concurrent failure so data received before a disconnect is not lost.
func (s *Session) await(ctx context.Context, w *waiter) (*protocol.Main, error) {
	select {
	case m := <-w.frames:
		return m, nil
	default:
	}

	var timeoutC <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case m := <-w.frames:
		return m, nil
	case err := <-w.fail:
		return nil, err
	case <-timeoutC:
		s.t.Close()
		return nil, ErrTimeout
	case <-ctx.Done():
		// Cancellation closes the channel: the protocol has no cancel
		// primitive for in-flight replies, so a dead link is the only
		// way to reliably unblock everything.
		s.t.Close()
		return nil, ctx.Err()
	}
}

// dispatch is the background listener: it reassembles frames from raw
// notification payloads and routes them by command_id. It blocks only
// on the absence of data.
func (s *Session) dispatch() {
	defer close(s.done)
	var r protocol.Reassembler
	for {
		select {
		case p := <-s.t.Packets():
			s.feed(&r, p)
		case <-s.t.Done():
			// Payloads queued before the disconnect still count.
		drain:
			for {
				select {
				case p := <-s.t.Packets():
					s.feed(&r, p)
				default:
					break drain
				}
			}
			if r.Pending() > 0 {
				s.log.Warn().Int("bytes", r.Pending()).
					Msgf("disconnect mid-frame: %v", protocol.ErrTruncated)
			}
			s.failAll(s.disconnectErr())
			return
		}
	}
}

func (s *Session) feed(r *protocol.Reassembler, p []byte) {
	r.Feed(p)
	for {
		frame, ok, err := r.Next()
		if err != nil {
			// The untagged byte stream cannot resynchronize after a
			// corrupt length prefix; the channel is unusable.
			s.log.Error().Err(err).Msg("framing error, closing channel")
			s.t.Close()
			return
		}
		if !ok {
			return
		}
		m, err := protocol.Unmarshal(frame)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		s.route(m)
	}
}

func (s *Session) route(m *protocol.Main) {
	s.mu.Lock()
	w := s.pending[m.CommandID]
	if w != nil && !m.HasNext {
		// Terminal frame: the table entry is removed exactly once,
		// here or in failAll, never both.
		delete(s.pending, m.CommandID)
	}
	s.mu.Unlock()

	if w == nil {
		// Not expected from this peripheral, but not trusted either.
		s.log.Warn().Uint32("command_id", m.CommandID).
			Msg("dropping frame for unknown command")
		return
	}

	select {
	case w.frames <- m:
	case <-s.t.Done():
	}
}

func (s *Session) failAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.pending {
		delete(s.pending, id)
		w.fail <- err
	}
}

func (s *Session) disconnectErr() error {
	if cause := s.t.Err(); cause != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, cause)
	}
	return ErrDisconnected
}
