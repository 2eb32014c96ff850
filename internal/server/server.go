// Package server runs the receiving end: the data listener that serves one
// receiver session per connection, the gRPC control port and the HTTP API.
package server

import (
	"NetSeismic/internal/alerter"
	"NetSeismic/internal/api"
	"NetSeismic/internal/config"
	"NetSeismic/internal/metrics"
	"NetSeismic/internal/model"
	"NetSeismic/internal/publish"
	"NetSeismic/internal/session"
	"NetSeismic/internal/writer"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conduitio/bwlimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// DataService is the health service name of the data listener.
const DataService = "netseismic.Data"

const (
	shutdownTimeout = 5 * time.Second
	recordTimeout   = 10 * time.Second
)

// Deps are the optional collaborators of a Server. Nil fields are skipped.
type Deps struct {
	Dispatcher *writer.Dispatcher
	Recorder   metrics.Recorder
	// Prometheus is served on /metrics by the API.
	Prometheus *metrics.Prometheus
	Alerter    *alerter.Alerter
	Publisher  *publish.Publisher
}

// Server accepts measurement connections and serves one receiver per
// connection until the context passed to Run is cancelled.
type Server struct {
	cfg        *config.Config
	sessionCfg model.SessionConfig
	deps       Deps
	logger     *slog.Logger
	registry   *Registry
	health     *health.Server

	ready    chan struct{}
	dataAddr net.Addr
	ctrlAddr net.Addr
	apiAddr  net.Addr

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	connWg sync.WaitGroup
}

// New creates a server from cfg.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	sessionCfg, err := cfg.Session.ToModel()
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if err := sessionCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		sessionCfg: sessionCfg,
		deps:       deps,
		logger:     logger,
		registry:   NewRegistry(cfg.Server.SessionCache),
		health:     health.NewServer(),
		ready:      make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
	s.registry.OnFinish(s.sessionFinished)
	return s, nil
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// DataAddr returns the bound data address. Valid after Ready.
func (s *Server) DataAddr() net.Addr { return s.dataAddr }

// ControlAddr returns the bound control address. Valid after Ready.
func (s *Server) ControlAddr() net.Addr { return s.ctrlAddr }

// APIAddr returns the bound API address, or nil when the API is disabled.
func (s *Server) APIAddr() net.Addr { return s.apiAddr }

// Run serves until ctx is cancelled or a listener fails. Live sessions are
// cut off on shutdown and still reported.
func (s *Server) Run(ctx context.Context) error {
	dataLn, err := s.listenData(ctx)
	if err != nil {
		return err
	}

	ctrlAddr := net.JoinHostPort(s.cfg.Server.ListenAddr, strconv.Itoa(s.cfg.Server.ControlPort))
	ctrlLn, err := net.Listen("tcp", ctrlAddr)
	if err != nil {
		dataLn.Close()
		return fmt.Errorf("failed to listen on control port %s: %w", ctrlAddr, err)
	}
	grpcServer := s.newGRPCServer()

	var httpServer *http.Server
	var apiLn net.Listener
	if s.cfg.API.Enabled {
		apiLn, err = net.Listen("tcp", s.cfg.API.ListenAddr)
		if err != nil {
			dataLn.Close()
			ctrlLn.Close()
			return fmt.Errorf("failed to listen on API address %s: %w", s.cfg.API.ListenAddr, err)
		}
		var metricsHandler http.Handler
		if s.deps.Prometheus != nil {
			metricsHandler = s.deps.Prometheus.Handler()
		}
		httpServer = &http.Server{
			Handler:           api.NewRouter(s.registry, metricsHandler, s.logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.apiAddr = apiLn.Addr()
	}

	s.dataAddr, s.ctrlAddr = dataLn.Addr(), ctrlLn.Addr()
	close(s.ready)

	s.logger.Info("server listening",
		slog.String("data", s.dataAddr.String()),
		slog.String("control", s.ctrlAddr.String()),
		slog.Bool("api", httpServer != nil))

	if s.deps.Alerter != nil {
		s.deps.Alerter.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.serveData(dataLn)
	})
	g.Go(func() error {
		if err := grpcServer.Serve(ctrlLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})
	if httpServer != nil {
		g.Go(func() error {
			if err := httpServer.Serve(apiLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("API server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		s.health.Shutdown()
		dataLn.Close()
		s.closeConns()
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	s.connWg.Wait()
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Stop()
	}
	if s.deps.Alerter != nil {
		s.deps.Alerter.Stop()
	}
	s.logger.Info("server stopped")
	return err
}

func (s *Server) listenData(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(s.cfg.Server.ListenAddr, strconv.Itoa(s.cfg.Server.DataPort))
	ln, err := listenTCP(ctx, addr, s.cfg.Server.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on data port %s: %w", addr, err)
	}
	emu := s.cfg.Server.LinkEmulation
	if !emu.Enabled {
		return ln, nil
	}
	s.logger.Info("link emulation enabled",
		slog.Int("read_bytes_per_sec", emu.ReadBytesPerSec),
		slog.Int("write_bytes_per_sec", emu.WriteBytesPerSec))
	return bwlimit.NewListener(ln, bwlimit.Byte(emu.WriteBytesPerSec), bwlimit.Byte(emu.ReadBytesPerSec)), nil
}

func (s *Server) newGRPCServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	grpcServer := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(DataService, grpc_health_v1.HealthCheckResponse_SERVING)
	return grpcServer
}

func (s *Server) serveData(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("temporary accept error", slog.String("error", err.Error()))
				continue
			}
			return fmt.Errorf("data listener: %w", err)
		}
		if !s.trackConn(conn) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.connWg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	opts := []session.Option{
		session.WithLogger(s.logger),
		session.WithTracker(s.registry),
		session.WithObserver(s.registry.Observe),
	}
	if s.deps.Publisher != nil {
		opts = append(opts, session.WithObserver(s.deps.Publisher.Observer(model.RoleReceiver, peer)))
	}
	// Failures are logged by the session itself.
	session.NewReceiver(s.sessionCfg, opts...).Run(conn, peer)
}

// trackConn registers a connection. It refuses new ones once shutdown began.
func (s *Server) trackConn(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.connWg.Add(1)
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// sessionFinished hands a finished report to storage, metrics, alerting and
// NATS subscribers.
func (s *Server) sessionFinished(r *model.Report) {
	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.Enqueue(r)
	}
	if s.deps.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := s.deps.Recorder.RecordSession(ctx, r); err != nil {
			s.logger.Warn("failed to record session metrics",
				slog.String("session_id", r.SessionID),
				slog.String("error", err.Error()))
		}
		cancel()
	}
	if s.deps.Alerter != nil {
		s.deps.Alerter.Observe(r)
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishReport(r); err != nil {
			s.logger.Warn("failed to publish session summary",
				slog.String("session_id", r.SessionID),
				slog.String("error", err.Error()))
		}
	}
}
