package writer

import (
	"NetSeismic/internal/model"
	"context"
	"log/slog"
	"sync"
	"time"
)

const writeTimeout = 30 * time.Second

// Dispatcher hands finished reports to every writer on a pool of goroutines,
// so slow storage never holds up a session.
type Dispatcher struct {
	writers []model.Writer
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	reports chan *model.Report
	wg      sync.WaitGroup
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher(writers []model.Writer, numWorkers, queueSize int, logger *slog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	d := &Dispatcher{
		writers: writers,
		logger:  logger,
		reports: make(chan *model.Report, queueSize),
	}

	d.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go d.worker()
	}
	logger.Info("report dispatcher started",
		slog.Int("workers", numWorkers),
		slog.Int("writers", len(writers)))
	return d
}

// Enqueue queues a report without blocking. It reports false when the queue
// is full or the dispatcher has stopped.
func (d *Dispatcher) Enqueue(r *model.Report) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.reports <- r:
		return true
	default:
		d.logger.Warn("report queue full, dropping report", slog.String("session_id", r.SessionID))
		return false
	}
}

// Stop stops accepting reports and waits until the queued ones are written.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.reports)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for r := range d.reports {
		d.write(r)
	}
}

func (d *Dispatcher) write(r *model.Report) {
	for _, w := range d.writers {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.Write(ctx, r); err != nil {
			d.logger.Error("failed to write report",
				slog.String("session_id", r.SessionID),
				slog.String("writer", w.Name()),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}
