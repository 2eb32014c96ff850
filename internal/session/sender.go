package session

import (
	"NetSeismic/internal/model"
	"NetSeismic/internal/transfer"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// ErrConnect wraps every failure to reach the receiver.
var ErrConnect = errors.New("connect to receiver")

// SenderConfig configures the sending end of a session.
type SenderConfig struct {
	model.SessionConfig
	// Address is the receiver's host:port.
	Address        string
	ConnectTimeout time.Duration
	// StartDelay is waited after connecting and before sending.
	StartDelay time.Duration
}

// Sender floods a receiver with chunks for the run duration while sampling
// the chunks it sent and the chunks echoed back.
type Sender struct {
	cfg  SenderConfig
	opts options
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig, opts ...Option) *Sender {
	return &Sender{cfg: cfg, opts: buildOptions(opts)}
}

// ID returns the session ID the sender reports under.
func (s *Sender) ID() string {
	return s.opts.id
}

// Run connects to the receiver and runs the session. A failed connection
// produces no report.
func (s *Sender) Run(ctx context.Context) (*model.Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConnect, s.cfg.Address, err)
	}
	defer conn.Close()

	s.opts.logger.Info("connected to receiver",
		slog.String("session_id", s.opts.id),
		slog.String("address", conn.RemoteAddr().String()))

	if s.cfg.StartDelay > 0 {
		select {
		case <-time.After(s.cfg.StartDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting to start: %w", ctx.Err())
		}
	}
	return s.RunConn(ctx, conn)
}

// RunConn runs the session over an established connection. The report is
// returned even when the session failed, carrying the partial series.
// Cancelling ctx closes conn, which is the only way to end the data phase early.
func (s *Sender) RunConn(ctx context.Context, conn net.Conn) (*model.Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	peer := conn.RemoteAddr().String()
	h, sampler, stopper := s.opts.begin(model.RoleSender, peer, s.cfg.SessionConfig)

	s.opts.logger.Info("session started",
		slog.String("session_id", h.ID),
		slog.String("role", string(h.Role)),
		slog.String("peer", peer),
		slog.Int("chunk_size", s.cfg.ChunkSize),
		slog.Duration("duration", s.cfg.RunDuration))

	stopOnCancel := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopOnCancel()

	seriesCh := make(chan *model.Series, 1)
	go func() { seriesCh <- sampler.Run() }()

	consumerErr := make(chan error, 1)
	consumer := transfer.NewSimpleConsumer(conn, s.cfg.ChunkSize, &h.counters.Received)
	go func() { consumerErr <- consumer.Run() }()

	genErr := transfer.NewGenerator(conn, s.cfg.ChunkSize, s.cfg.RunDuration, &h.counters.Sent).Run()

	// Let the receiver see the end of the stream; its side then ends the echo
	// direction and our consumer drains to EOF.
	closedLocally := false
	if cw, ok := conn.(closeWriter); ok && genErr == nil {
		if err := cw.CloseWrite(); err != nil {
			conn.Close()
			closedLocally = true
		}
	} else {
		conn.Close()
		closedLocally = true
	}
	h.setState(StateDraining)
	stopper.Stop()

	cErr := <-consumerErr
	if closedLocally && isLocalClose(cErr) {
		cErr = nil
	}
	series := <-seriesCh

	err := genErr
	if err == nil {
		err = cErr
	}
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("session interrupted: %w", ctx.Err())
	}
	return s.opts.finish(h, s.cfg.SessionConfig, series, err), err
}
