// Package transfer implements the data-moving halves of a session: the
// generator that floods a stream with chunks and the consumers that drain it.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

// ErrIdleTimeout is returned by a consumer whose peer stayed silent for longer
// than the configured idle timeout.
var ErrIdleTimeout = errors.New("peer idle for longer than the idle timeout")

// IsGracefulEnd reports whether err means the peer finished the stream: a clean
// end of stream, a partial trailing chunk, or a connection reset.
func IsGracefulEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET)
}

// classify turns a stream error into the consumer's result: nil for a graceful
// end, a wrapped error otherwise.
func classify(op string, err error) error {
	if IsGracefulEnd(err) {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s chunk: %w: %w", op, ErrIdleTimeout, err)
	}
	return fmt.Errorf("%s chunk: %w", op, err)
}

type flusher interface {
	Flush() error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// writeChunk writes all of p, continuing after short writes, and flushes
// buffered writers so the chunk actually leaves.
func writeChunk(w io.Writer, p []byte) error {
	if err := writeFull(w, p); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
