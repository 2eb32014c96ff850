package session

import (
	"NetSeismic/internal/model"
	"NetSeismic/internal/transfer"
	"io"
	"log/slog"
)

// Receiver drains one inbound stream, optionally echoing it, and samples the
// chunks it received and echoed. The peer decides when the session ends.
type Receiver struct {
	cfg  model.SessionConfig
	opts options
}

// NewReceiver creates a receiver for a single session.
func NewReceiver(cfg model.SessionConfig, opts ...Option) *Receiver {
	return &Receiver{cfg: cfg, opts: buildOptions(opts)}
}

// ID returns the session ID the receiver reports under.
func (r *Receiver) ID() string {
	return r.opts.id
}

// Run consumes stream until the peer ends it. The caller owns stream and
// closes it afterwards. The report carries the partial series even when the
// consumer failed.
func (r *Receiver) Run(stream io.ReadWriter, peer string) (*model.Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	h, sampler, stopper := r.opts.begin(model.RoleReceiver, peer, r.cfg)

	r.opts.logger.Info("session started",
		slog.String("session_id", h.ID),
		slog.String("role", string(h.Role)),
		slog.String("peer", peer),
		slog.Int("chunk_size", r.cfg.ChunkSize),
		slog.Bool("echo", r.cfg.Echo))

	seriesCh := make(chan *model.Series, 1)
	go func() { seriesCh <- sampler.Run() }()

	err := transfer.NewConsumer(r.cfg, stream, h.counters).Run()

	h.setState(StateDraining)
	stopper.Stop()
	series := <-seriesCh

	return r.opts.finish(h, r.cfg, series, err), err
}
