package main

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/logging"
	"NetSeismic/internal/model"
	"NetSeismic/internal/publish"
	"NetSeismic/internal/report"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	url := flag.String("nats", "", "NATS server URL (overrides the config file)")
	logFlags := logging.RegisterFlags("", "", "")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.NATS.URL = *url
	}
	logger := logging.InitLogger("ns-watch",
		logFlags.WithDefaults(cfg.Logging.Level, cfg.Logging.LogDir, cfg.Logging.LogName))

	sub, err := publish.NewSubscriber(cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to create subscriber", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sub.Close()

	p := &printer{out: os.Stdout}
	if err := sub.Start(p.sample, p.summary); err != nil {
		logger.Error("subscriber failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, cleaning up")
}

// printer writes one line per live sample and a block per finished session.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) sample(msg publish.SampleMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s %-8s %s] %.2fs: %10d sent / %10d received\n",
		shortID(msg.SessionID), msg.Role, msg.Peer,
		msg.Sample.Offset.Seconds(), msg.Sample.Sent, msg.Sample.Received)
}

func (p *printer) summary(sum model.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "== session %s (%s, peer %s) finished after %.2fs, %d samples\n",
		sum.SessionID, sum.Role, sum.Peer, sum.Duration.Seconds(), sum.Samples)
	fmt.Fprintf(p.out, "   sent %s at %s mean, received %s at %s mean\n",
		report.FormatBytes(sum.BytesSent), report.FormatRate(sum.MeanSentBps),
		report.FormatBytes(sum.BytesReceived), report.FormatRate(sum.MeanReceivedBps))
	if sum.Error != "" {
		fmt.Fprintf(p.out, "   error: %s\n", sum.Error)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
