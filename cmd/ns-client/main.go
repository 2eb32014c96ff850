package main

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/logging"
	"NetSeismic/internal/metrics"
	"NetSeismic/internal/model"
	"NetSeismic/internal/publish"
	"NetSeismic/internal/report"
	"NetSeismic/internal/session"
	"NetSeismic/internal/writer"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

type clientFlags struct {
	configPath   string
	lengthSecs   int
	freqMillis   int
	chunkSize    int
	port         int
	delay        time.Duration
	plot         bool
	controlCheck bool
}

func main() {
	var f clientFlags
	flag.StringVar(&f.configPath, "config", "", "Path to the YAML configuration file")
	flag.IntVar(&f.lengthSecs, "l", 5, "Length of the measurement in seconds")
	flag.IntVar(&f.freqMillis, "f", 200, "Sampling frequency in milliseconds")
	flag.IntVar(&f.chunkSize, "c", 1024, "Chunk size in bytes")
	flag.IntVar(&f.port, "p", config.DefaultDataPort, "Data port of the server")
	flag.DurationVar(&f.delay, "delay", 3*time.Second, "Pause between connecting and sending")
	flag.BoolVar(&f.plot, "plot", false, "Draw a throughput chart after the measurements")
	flag.BoolVar(&f.controlCheck, "control-check", false, "Check the server's control port before measuring")
	logFlags := logging.RegisterFlags("", "", "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <target>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, f, flag.CommandLine, flag.Arg(0))

	logger := logging.InitLogger("ns-client",
		logFlags.WithDefaults(cfg.Logging.Level, cfg.Logging.LogDir, cfg.Logging.LogName))

	if err := run(cfg, f.plot, logger); err != nil {
		logger.Error("measurement failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// applyFlags overlays the flags given on the command line onto cfg, so
// unset flags keep the configuration file's values.
func applyFlags(cfg *config.Config, f clientFlags, fs *flag.FlagSet, target string) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "l":
			cfg.Session.RunDuration = (time.Duration(f.lengthSecs) * time.Second).String()
		case "f":
			cfg.Session.SampleFrequency = (time.Duration(f.freqMillis) * time.Millisecond).String()
		case "c":
			cfg.Session.ChunkSize = f.chunkSize
		case "p":
			cfg.Client.DataPort = f.port
		case "delay":
			cfg.Client.StartDelay = f.delay.String()
		case "control-check":
			cfg.Client.ControlCheck = f.controlCheck
		}
	})
	if target != "" {
		cfg.Client.Target = target
	}
}

func run(cfg *config.Config, plot bool, logger *slog.Logger) error {
	sessionCfg, err := cfg.Session.ToModel()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Client.ControlCheck {
		ctrlAddr := net.JoinHostPort(cfg.Client.Target, strconv.Itoa(cfg.Client.ControlPort))
		if err := checkControl(ctx, ctrlAddr, config.Duration(cfg.Client.ConnectTimeout)); err != nil {
			return err
		}
		logger.Info("control port healthy", slog.String("address", ctrlAddr))
	}

	writers, err := writer.Create(cfg.Writers, logger)
	if err != nil {
		return fmt.Errorf("failed to create writers: %w", err)
	}
	defer writer.CloseAll(writers)

	mc, err := metrics.NewMetricCreator("ns-client", cfg.Metrics, nil)
	if err != nil {
		logger.Warn("OTLP metrics disabled", slog.String("error", err.Error()))
	}
	defer mc.Shutdown(context.Background())

	addr := net.JoinHostPort(cfg.Client.Target, strconv.Itoa(cfg.Client.DataPort))
	opts := []session.Option{session.WithLogger(logger)}

	var pub *publish.Publisher
	if cfg.NATS.Enabled {
		pub, err = publish.NewPublisher(cfg.NATS, logger)
		if err != nil {
			logger.Warn("live publishing disabled", slog.String("error", err.Error()))
		} else {
			defer pub.Close()
			opts = append(opts, session.WithObserver(pub.Observer(model.RoleSender, addr)))
		}
	}

	sender := session.NewSender(session.SenderConfig{
		SessionConfig:  sessionCfg,
		Address:        addr,
		ConnectTimeout: config.Duration(cfg.Client.ConnectTimeout),
		StartDelay:     config.Duration(cfg.Client.StartDelay),
	}, opts...)

	logger.Info("connecting", slog.String("address", addr), slog.String("session_id", sender.ID()))
	rep, runErr := sender.Run(ctx)
	if rep == nil {
		return runErr
	}

	report.Print(os.Stdout, rep)
	if plot {
		report.Chart(os.Stdout, rep, report.Sent)
		if sessionCfg.Echo {
			report.Chart(os.Stdout, rep, report.Received)
		}
	}

	for _, w := range writers {
		wctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := w.Write(wctx, rep); err != nil {
			logger.Error("failed to write report", slog.String("writer", w.Name()), slog.String("error", err.Error()))
		}
		cancel()
	}
	if err := mc.RecordSession(context.Background(), rep); err != nil {
		logger.Warn("failed to record metrics", slog.String("error", err.Error()))
	}
	if pub != nil {
		if err := pub.PublishReport(rep); err != nil {
			logger.Warn("failed to publish summary", slog.String("error", err.Error()))
		}
	}
	return runErr
}
