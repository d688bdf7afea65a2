package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single frame's declared payload length. The
// peripheral never sends frames anywhere near this; a larger declared
// length means the byte stream is corrupt, not that a huge frame is
// coming.
const MaxFrameSize = 1 << 20

// maxVarintLen is the longest encoding of a 64-bit varint.
const maxVarintLen = 10

// ErrTruncated reports a frame cut off mid-stream: the channel died
// after a length prefix (or part of one) arrived but before the full
// payload did.
var ErrTruncated = errors.New("protocol: truncated frame")

// EncodeFrame prepends the varint length prefix that delimits messages
// on the wire.
func EncodeFrame(payload []byte) []byte {
	b := protowire.AppendVarint(nil, uint64(len(payload)))
	return append(b, payload...)
}

// Fragment splits an encoded frame into payloads of at most mtu bytes,
// each small enough for a single BLE write. Frame boundaries carry no
// meaning at the write level; the receiver reassembles purely from the
// length prefix.
func Fragment(frame []byte, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = 20 // minimum ATT payload, pre-negotiation
	}
	var out [][]byte
	for len(frame) > mtu {
		out = append(out, frame[:mtu])
		frame = frame[mtu:]
	}
	return append(out, frame)
}

// Reassembler accumulates raw notification payloads and yields complete
// length-prefixed frames, strictly FIFO. The wire gives no fragment
// markers of any kind, so a frame is done exactly when the byte count
// announced by its prefix has arrived.
type Reassembler struct {
	buf []byte
}

// Feed appends one inbound payload to the stream buffer.
func (r *Reassembler) Feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// Next returns the next complete frame payload, or ok=false when more
// bytes are needed. A malformed or absurd length prefix is a hard
// error; the byte stream has no way to resynchronize after one.
func (r *Reassembler) Next() (payload []byte, ok bool, err error) {
	if len(r.buf) == 0 {
		return nil, false, nil
	}
	size, n := protowire.ConsumeVarint(r.buf)
	if n < 0 {
		if len(r.buf) < maxVarintLen {
			return nil, false, nil // incomplete prefix, wait for more
		}
		return nil, false, fmt.Errorf("protocol: bad frame length prefix: %w", protowire.ParseError(n))
	}
	if size > MaxFrameSize {
		return nil, false, fmt.Errorf("protocol: frame length %d exceeds limit", size)
	}
	if uint64(len(r.buf)-n) < size {
		return nil, false, nil
	}
	payload = make([]byte, size)
	copy(payload, r.buf[n:n+int(size)])
	r.buf = r.buf[n+int(size):]
	return payload, true, nil
}

// Pending returns the number of buffered bytes that do not yet form a
// complete frame. Nonzero at stream end means the final frame was
// truncated.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}
