// Package transfer moves file-sized byte streams between the host and
// the peripheral's filesystem by windowing them into bounded RPC
// operations. It knows nothing about local paths: sources and sinks
// are plain readers and writers, path resolution belongs to the
// command layer.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/flipwire/flipwire/internal/protocol"
	"github.com/flipwire/flipwire/internal/rpc"
)

var (
	// ErrIncomplete reports a download whose stream died before the
	// terminal frame. Bytes already written to the sink are the
	// caller's to keep or discard; the error is never silent.
	ErrIncomplete = errors.New("transfer: stream ended before completion")
)

// RejectedError reports that the peripheral declined the transfer,
// e.g. an invalid destination path.
type RejectedError struct {
	Path  string
	Cause error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transfer: peripheral rejected %q: %v", e.Path, e.Cause)
}

func (e *RejectedError) Unwrap() error { return e.Cause }

// Stream matches *rpc.Stream; tests substitute scripted sequences.
type Stream interface {
	Next(ctx context.Context) (*protocol.Main, error)
	Close() error
}

// Session is the slice of *rpc.Session the engine needs.
type Session interface {
	CallOnce(ctx context.Context, content protocol.Content) (*protocol.Main, error)
	CallStream(ctx context.Context, content protocol.Content) (Stream, error)
	Post(ctx context.Context, content protocol.Content) error
}

// Progress reports transfer progress. total is zero when unknown.
type Progress func(done, total int64)

const (
	// fileChunkMax is the most file data one write-chunk command ever
	// carries, regardless of MTU. Larger chunks outrun the peripheral's
	// storage write buffer.
	fileChunkMax = 512

	// envelopeOverhead is the worst-case wire cost of wrapping a chunk:
	// frame length prefix, Main envelope fields, and the write request's
	// own tags, lengths, offset varint and eof flag. Path bytes are
	// accounted separately.
	envelopeOverhead = 48
)

// ChunkSize computes the file bytes carried per write-chunk command for
// a negotiated payload size and destination path length.
func ChunkSize(mtu, pathLen int) int {
	c := mtu - envelopeOverhead - pathLen
	if c > fileChunkMax {
		c = fileChunkMax
	}
	if c < 1 {
		c = 1
	}
	return c
}

// PathFits reports whether a request naming path still leaves room for
// at least one payload byte inside a single transmission unit.
func PathFits(mtu, pathLen int) bool {
	return mtu-envelopeOverhead-pathLen >= 1
}

// Entry is one directory listing entry, in peripheral order.
type Entry struct {
	Name string
	Size uint32
	Dir  bool
}

// Engine runs uploads, downloads and listings over one RPC session.
type Engine struct {
	s   Session
	mtu int
	log zerolog.Logger
}

// NewEngine builds an engine. mtu is the transport's negotiated payload
// size, used to derive the upload chunk size.
func NewEngine(s Session, mtu int, log zerolog.Logger) *Engine {
	return &Engine{s: s, mtu: mtu, log: log}
}

// Upload streams size bytes from src to dest on the peripheral. Chunks
// are written strictly in order at contiguous offsets, each one
// acknowledged before the next is sent; the protocol has no pipelining,
// so an unacknowledged chunk stalls the transfer instead of corrupting
// it. The final chunk carries the end-of-file mark.
func (e *Engine) Upload(ctx context.Context, src io.Reader, size int64, dest string, progress Progress) error {
	chunkSize := ChunkSize(e.mtu, len(dest))
	e.log.Debug().Str("dest", dest).Int64("size", size).Int("chunk", chunkSize).Msg("upload start")

	buf := make([]byte, chunkSize)
	var offset int64
	for {
		n, err := io.ReadFull(src, buf)
		last := false
		switch {
		case err == io.EOF:
			// Source exhausted exactly at a chunk boundary. An empty
			// file still needs one (empty, eof-marked) chunk so the
			// peripheral creates and closes it.
			last = true
			if offset > 0 {
				return e.finishUpload(ctx, dest, offset, size, progress)
			}
		case err == io.ErrUnexpectedEOF:
			last = true
		case err != nil:
			return fmt.Errorf("transfer: reading source: %w", err)
		default:
			last = offset+int64(n) >= size && size > 0
		}

		req := &protocol.StorageWriteRequest{
			Path: dest,
			Chunk: protocol.FileChunk{
				Offset: uint64(offset),
				Data:   append([]byte(nil), buf[:n]...),
				Eof:    last,
			},
		}
		if _, err := e.s.CallOnce(ctx, req); err != nil {
			return e.writeError(dest, err)
		}
		offset += int64(n)
		if progress != nil {
			progress(offset, size)
		}
		if last {
			e.log.Debug().Str("dest", dest).Int64("bytes", offset).Msg("upload complete")
			return nil
		}
	}
}

// finishUpload sends the zero-length eof chunk closing a file whose
// size was an exact multiple of the chunk size.
func (e *Engine) finishUpload(ctx context.Context, dest string, offset, size int64, progress Progress) error {
	req := &protocol.StorageWriteRequest{
		Path:  dest,
		Chunk: protocol.FileChunk{Offset: uint64(offset), Eof: true},
	}
	if _, err := e.s.CallOnce(ctx, req); err != nil {
		return e.writeError(dest, err)
	}
	if progress != nil {
		progress(offset, size)
	}
	e.log.Debug().Str("dest", dest).Int64("bytes", offset).Msg("upload complete")
	return nil
}

func (e *Engine) writeError(dest string, err error) error {
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		return &RejectedError{Path: dest, Cause: err}
	}
	return err
}

// Stat returns the peripheral's metadata for path, or a RejectedError
// when the path does not exist.
func (e *Engine) Stat(ctx context.Context, path string) (protocol.File, error) {
	resp, err := e.s.CallOnce(ctx, &protocol.StorageStatRequest{Path: path})
	if err != nil {
		var remote *rpc.RemoteError
		if errors.As(err, &remote) {
			return protocol.File{}, &RejectedError{Path: path, Cause: err}
		}
		return protocol.File{}, err
	}
	switch c := resp.Content.(type) {
	case *protocol.StorageStatResponse:
		return c.File, nil
	case *protocol.Empty, nil:
		// The peripheral answers a stat on a missing path with an
		// empty response rather than an error status.
		return protocol.File{}, &RejectedError{Path: path, Cause: errors.New("no such path")}
	default:
		return protocol.File{}, fmt.Errorf("%w: unexpected stat response %T", rpc.ErrProtocol, c)
	}
}

// Download streams the file at path into dst. Chunks are appended in
// arrival order; the protocol relies on in-order delivery and the
// engine verifies the offsets stay contiguous. Completion is the
// stream's terminal frame: a disconnect before it fails the transfer
// with ErrIncomplete.
func (e *Engine) Download(ctx context.Context, path string, dst io.Writer, progress Progress) error {
	// Stat first: validates the path before the streaming call and
	// sizes the progress report.
	info, err := e.Stat(ctx, path)
	if err != nil {
		return err
	}
	total := int64(info.Size)
	e.log.Debug().Str("path", path).Int64("size", total).Msg("download start")

	st, err := e.s.CallStream(ctx, &protocol.StorageReadRequest{Path: path})
	if err != nil {
		return err
	}
	defer st.Close()

	var offset int64
	for {
		m, err := st.Next(ctx)
		if err != nil {
			if errors.Is(err, rpc.ErrDisconnected) || errors.Is(err, rpc.ErrTimeout) {
				return fmt.Errorf("%w after %d bytes: %v", ErrIncomplete, offset, err)
			}
			return err
		}
		if m.Status != protocol.StatusOK {
			return &RejectedError{Path: path, Cause: &rpc.RemoteError{Status: m.Status}}
		}
		if resp, ok := m.Content.(*protocol.StorageReadResponse); ok {
			if resp.Chunk.Offset != uint64(offset) {
				return fmt.Errorf("%w: chunk offset %d, want %d", rpc.ErrProtocol, resp.Chunk.Offset, offset)
			}
			if _, err := dst.Write(resp.Chunk.Data); err != nil {
				return fmt.Errorf("transfer: writing sink: %w", err)
			}
			offset += int64(len(resp.Chunk.Data))
			if progress != nil {
				progress(offset, total)
			}
		}
		if !m.HasNext {
			break
		}
	}

	// The firmware expects a bare OK after the final chunk.
	if err := e.s.Post(ctx, &protocol.Empty{}); err != nil {
		e.log.Debug().Err(err).Msg("post-download ack failed")
	}
	e.log.Debug().Str("path", path).Int64("bytes", offset).Msg("download complete")
	return nil
}

// List returns the entries of a peripheral directory, exactly in the
// order the peripheral sent them.
func (e *Engine) List(ctx context.Context, path string) ([]Entry, error) {
	st, err := e.s.CallStream(ctx, &protocol.StorageListRequest{Path: path})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var entries []Entry
	for {
		m, err := st.Next(ctx)
		if err != nil {
			return nil, err
		}
		if m.Status != protocol.StatusOK {
			return nil, &RejectedError{Path: path, Cause: &rpc.RemoteError{Status: m.Status}}
		}
		switch c := m.Content.(type) {
		case *protocol.StorageListResponse:
			for _, f := range c.Files {
				entries = append(entries, Entry{
					Name: f.Name,
					Size: f.Size,
					Dir:  f.Type == protocol.FileTypeDir,
				})
			}
		case *protocol.Empty, nil:
			if len(entries) == 0 && !m.HasNext {
				// Empty in place of a listing means the path is bad.
				return nil, &RejectedError{Path: path, Cause: errors.New("no such path")}
			}
		default:
			return nil, fmt.Errorf("%w: unexpected list response %T", rpc.ErrProtocol, c)
		}
		if !m.HasNext {
			return entries, nil
		}
	}
}
