package main

import (
	"NetSeismic/internal/alerter"
	"NetSeismic/internal/config"
	"NetSeismic/internal/logging"
	"NetSeismic/internal/metrics"
	"NetSeismic/internal/model"
	"NetSeismic/internal/notification"
	"NetSeismic/internal/publish"
	"NetSeismic/internal/server"
	"NetSeismic/internal/writer"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "configs/seismic.yaml", "Path to the YAML configuration file")
	echo := flag.Bool("echo", false, "Echo every received chunk back to the client")
	logFlags := logging.RegisterFlags("", "", "")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *echo {
		cfg.Session.Echo = true
	}
	logger := logging.InitLogger("ns-server",
		logFlags.WithDefaults(cfg.Logging.Level, cfg.Logging.LogDir, cfg.Logging.LogName))
	logger.Info("configuration loaded", slog.String("path", *configPath), slog.Bool("echo", cfg.Session.Echo))

	// 2. Wire collaborators
	deps, cleanup, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Serve until a shutdown signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		cleanup()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildDeps creates the writers, metrics, alerter and publisher named by cfg.
// The returned cleanup releases them once the server has stopped.
func buildDeps(cfg *config.Config, logger *slog.Logger) (server.Deps, func(), error) {
	var deps server.Deps
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	writers, err := writer.Create(cfg.Writers, logger)
	if err != nil {
		return deps, cleanup, fmt.Errorf("failed to create writers: %w", err)
	}
	closers = append(closers, func() { writer.CloseAll(writers) })
	deps.Dispatcher = writer.NewDispatcher(writers, cfg.Server.NumWorkers, cfg.Server.QueueSize, logger)

	deps.Prometheus = metrics.NewPrometheus()
	mc, err := metrics.NewMetricCreator("ns-server", cfg.Metrics, nil)
	if err != nil {
		logger.Warn("OTLP metrics disabled", slog.String("error", err.Error()))
	}
	closers = append(closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mc.Shutdown(ctx)
	})
	deps.Recorder = metrics.Multi{deps.Prometheus, mc}

	if cfg.Alerter.Enabled {
		var notifier model.Notifier
		if cfg.SMTP.Host != "" {
			notifier = notification.NewEmailNotifier(cfg.SMTP)
		}
		if notifier == nil {
			logger.Warn("alerter is enabled but no SMTP host is configured, alerts will only be logged")
		}
		deps.Alerter, err = alerter.NewAlerter(&cfg.Alerter, notifier, logger)
		if err != nil {
			return deps, cleanup, fmt.Errorf("failed to create alerter: %w", err)
		}
	}

	if cfg.NATS.Enabled {
		pub, err := publish.NewPublisher(cfg.NATS, logger)
		if err != nil {
			logger.Warn("live publishing disabled", slog.String("error", err.Error()))
		} else {
			deps.Publisher = pub
			closers = append(closers, pub.Close)
		}
	}
	return deps, cleanup, nil
}
