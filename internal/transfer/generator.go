package transfer

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Generator writes chunks of fresh pseudo-random bytes to a stream as fast as
// the stream accepts them until its run duration elapses.
type Generator struct {
	w         io.Writer
	duration  time.Duration
	chunkSize int
	sent      *atomic.Uint64
}

// NewGenerator creates a generator that counts every fully written chunk in sent.
func NewGenerator(w io.Writer, chunkSize int, duration time.Duration, sent *atomic.Uint64) *Generator {
	return &Generator{w: w, duration: duration, chunkSize: chunkSize, sent: sent}
}

// Run floods the stream until the deadline. The only other way to stop it is
// to close the stream, which surfaces as a write error.
func (g *Generator) Run() error {
	deadline := time.Now().Add(g.duration)
	src := newChunkSource()
	buf := make([]byte, g.chunkSize)

	for time.Now().Before(deadline) {
		src.Read(buf)
		if err := writeChunk(g.w, buf); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		g.sent.Add(1)
	}
	return nil
}

// newChunkSource returns a randomly seeded ChaCha8 stream. Chunk contents only
// need to defeat compression along the path.
func newChunkSource() *rand.ChaCha8 {
	var seed [32]byte
	for i := 0; i < len(seed); i += 8 {
		binary.LittleEndian.PutUint64(seed[i:], rand.Uint64())
	}
	return rand.NewChaCha8(seed)
}
