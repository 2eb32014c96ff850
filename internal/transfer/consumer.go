package transfer

import (
	"NetSeismic/internal/model"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Consumer drains a stream chunk by chunk until the peer ends it.
// Run returns nil when the stream ended gracefully.
type Consumer interface {
	Run() error
}

// NewConsumer selects the consumer variant once, from cfg.Echo.
func NewConsumer(cfg model.SessionConfig, stream io.ReadWriter, counters *model.Counters) Consumer {
	simple := NewSimpleConsumer(stream, cfg.ChunkSize, &counters.Received)
	simple.SetIdleTimeout(cfg.IdleTimeout)
	if cfg.Echo {
		return &EchoConsumer{SimpleConsumer: simple, w: stream, sent: &counters.Sent}
	}
	return simple
}

// SimpleConsumer reads whole chunks and counts them.
type SimpleConsumer struct {
	r           io.Reader
	chunkSize   int
	received    *atomic.Uint64
	idleTimeout time.Duration
}

// NewSimpleConsumer creates a consumer that counts every whole chunk in received.
func NewSimpleConsumer(r io.Reader, chunkSize int, received *atomic.Uint64) *SimpleConsumer {
	return &SimpleConsumer{r: r, chunkSize: chunkSize, received: received}
}

// SetIdleTimeout bounds the wait for each chunk. It only takes effect when the
// stream supports read deadlines.
func (c *SimpleConsumer) SetIdleTimeout(d time.Duration) {
	c.idleTimeout = d
}

func (c *SimpleConsumer) Run() error {
	return c.consume(nil)
}

func (c *SimpleConsumer) consume(onChunk func(chunk []byte) error) error {
	buf := make([]byte, c.chunkSize)
	dl, _ := c.r.(readDeadliner)
	if c.idleTimeout <= 0 {
		dl = nil
	}

	for {
		if dl != nil {
			if err := dl.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return classify("read", err)
		}
		c.received.Add(1)

		if onChunk == nil {
			continue
		}
		if err := onChunk(buf); err != nil {
			return classify("echo", err)
		}
	}
}

// EchoConsumer writes every chunk it reads back to the peer and counts the
// echoed chunks as sent.
type EchoConsumer struct {
	*SimpleConsumer
	w    io.Writer
	sent *atomic.Uint64
}

func (c *EchoConsumer) Run() error {
	return c.consume(func(chunk []byte) error {
		if err := writeChunk(c.w, chunk); err != nil {
			return err
		}
		c.sent.Add(1)
		return nil
	})
}
