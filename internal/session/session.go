// Package session wires generator, consumer and sampler into the two ends of
// a throughput measurement.
package session

import (
	"NetSeismic/internal/measure"
	"NetSeismic/internal/model"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Handle exposes a live session to trackers.
type Handle struct {
	ID        string
	Role      model.Role
	Peer      string
	ChunkSize int
	StartedAt time.Time

	state    atomic.Int32
	counters *model.Counters
}

// State returns the current lifecycle stage.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Counts returns the current counter values.
func (h *Handle) Counts() (sent, received uint64) {
	if h.counters == nil {
		return 0, 0
	}
	return h.counters.Sent.Load(), h.counters.Received.Load()
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
}

// Tracker is notified when sessions start and finish. Both calls happen on the
// session's goroutine.
type Tracker interface {
	Started(h *Handle)
	Finished(h *Handle, report *model.Report)
}

// Option configures a Sender or Receiver.
type Option func(*options)

type options struct {
	id        string
	logger    *slog.Logger
	observers []model.SampleObserver
	tracker   Tracker
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the logger used for session lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers fn to receive every sample as it is recorded.
func WithObserver(fn model.SampleObserver) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

// WithTracker registers a tracker for the session lifecycle.
func WithTracker(t Tracker) Option {
	return func(o *options) { o.tracker = t }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.New().String()
	}
	return o
}

// begin creates the per-session counters, sampler and handle.
func (o *options) begin(role model.Role, peer string, cfg model.SessionConfig) (*Handle, *measure.Sampler, *measure.Stopper) {
	counters := &model.Counters{}
	sampler, stopper := measure.New(cfg.SampleFrequency, counters)
	for _, fn := range o.observers {
		sampler.WithObserver(func(s model.Sample) { fn(o.id, s) })
	}

	h := &Handle{
		ID:        o.id,
		Role:      role,
		Peer:      peer,
		ChunkSize: cfg.ChunkSize,
		StartedAt: time.Now(),
		counters:  counters,
	}
	h.setState(StateRunning)
	if o.tracker != nil {
		o.tracker.Started(h)
	}
	return h, sampler, stopper
}

// finish assembles the report and notifies the tracker.
func (o *options) finish(h *Handle, cfg model.SessionConfig, series *model.Series, err error) *model.Report {
	h.setState(StateCompleted)
	sent, received := h.Counts()
	report := &model.Report{
		SessionID:     h.ID,
		Role:          h.Role,
		Peer:          h.Peer,
		ChunkSize:     cfg.ChunkSize,
		Echo:          cfg.Echo,
		Series:        series,
		EndTime:       time.Now(),
		TotalSent:     sent,
		TotalReceived: received,
	}
	if err != nil {
		report.Error = err.Error()
	}

	attrs := []any{
		slog.String("session_id", h.ID),
		slog.String("role", string(h.Role)),
		slog.String("peer", h.Peer),
		slog.Uint64("sent", sent),
		slog.Uint64("received", received),
		slog.Int("samples", series.Len()),
	}
	if err != nil {
		o.logger.Error("session failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		o.logger.Info("session finished", attrs...)
	}

	if o.tracker != nil {
		o.tracker.Finished(h, report)
	}
	return report
}

type closeWriter interface {
	CloseWrite() error
}

// isLocalClose reports whether err comes from reading a stream this side closed.
func isLocalClose(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
