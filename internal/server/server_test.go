package server

import (
	"NetSeismic/internal/alerter"
	"NetSeismic/internal/config"
	"NetSeismic/internal/metrics"
	"NetSeismic/internal/model"
	"NetSeismic/internal/session"
	"NetSeismic/internal/writer"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.SampleFrequency = "20ms"
	cfg.Server.ListenAddr = "127.0.0.1"
	cfg.Server.DataPort = 0
	cfg.Server.ControlPort = 0
	cfg.API.ListenAddr = "127.0.0.1:0"
	return cfg
}

type memWriter struct {
	mu      sync.Mutex
	reports []*model.Report
}

func (m *memWriter) Write(_ context.Context, r *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memWriter) Name() string { return "mem" }
func (m *memWriter) Close() error { return nil }

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Send(string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

// startServer runs srv until the test ends and waits for its listeners.
func startServer(t *testing.T, srv *Server) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatalf("Server did not become ready")
	}

	stopped := false
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(10 * time.Second):
			t.Fatalf("Server did not stop")
			return nil
		}
	}
	t.Cleanup(func() { stop() })
	return stop
}

func runSender(t *testing.T, addr string, duration time.Duration) *model.Report {
	t.Helper()
	sender := session.NewSender(session.SenderConfig{
		SessionConfig: model.SessionConfig{
			ChunkSize:       1024,
			SampleFrequency: 20 * time.Millisecond,
			RunDuration:     duration,
		},
		Address:        addr,
		ConnectTimeout: 5 * time.Second,
	}, session.WithLogger(discardLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	report, err := sender.Run(ctx)
	if err != nil {
		t.Fatalf("Sender failed: %v", err)
	}
	return report
}

func TestServer_EndToEnd(t *testing.T) {
	// 1. Wire every collaborator
	mem := &memWriter{}
	dispatcher := writer.NewDispatcher([]model.Writer{mem}, 1, 8, discardLogger())
	prom := metrics.NewPrometheus()
	notifier := &countingNotifier{}
	alert, err := alerter.NewAlerter(&config.AlerterConfig{
		Enabled:       true,
		CheckInterval: "1h",
		Rules:         []config.AlerterRule{{Name: "any", Metric: alerter.MetricSampleCount, Operator: ">=", Threshold: 0}},
	}, notifier, discardLogger())
	if err != nil {
		t.Fatalf("NewAlerter failed: %v", err)
	}

	srv, err := New(testConfig(), Deps{
		Dispatcher: dispatcher,
		Recorder:   prom,
		Prometheus: prom,
		Alerter:    alert,
	}, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startServer(t, srv)

	// 2. Run a session against the data port
	sent := runSender(t, srv.DataAddr().String(), 200*time.Millisecond)
	if sent.TotalSent == 0 {
		t.Fatalf("Sender sent nothing")
	}

	// 3. The receiver report is visible through the API
	resp, err := http.Get("http://" + srv.APIAddr().String() + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("GET sessions failed: %v", err)
	}
	var sums []model.Summary
	err = json.NewDecoder(resp.Body).Decode(&sums)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to decode sessions: %v", err)
	}
	if len(sums) != 1 || sums[0].Role != model.RoleReceiver {
		t.Fatalf("Expected one receiver session, got %+v", sums)
	}
	if sums[0].TotalReceived != sent.TotalSent {
		t.Errorf("Receiver counted %d chunks, sender sent %d", sums[0].TotalReceived, sent.TotalSent)
	}

	resp, err = http.Get("http://" + srv.APIAddr().String() + "/api/v1/sessions/" + sums[0].SessionID)
	if err != nil {
		t.Fatalf("GET session failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for finished session, got %d", resp.StatusCode)
	}

	// 4. Shutdown drains the dispatcher and flushes the alerter
	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	mem.mu.Lock()
	written := len(mem.reports)
	mem.mu.Unlock()
	if written != 1 {
		t.Errorf("Expected 1 written report, got %d", written)
	}
	if notifier.count != 1 {
		t.Errorf("Expected 1 alert notification, got %d", notifier.count)
	}
	families, _ := prom.Registry().Gather()
	if len(families) == 0 {
		t.Errorf("Expected session metrics to be recorded")
	}
}

func TestServer_EchoSession(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Echo = true
	cfg.API.Enabled = false

	srv, err := New(cfg, Deps{}, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startServer(t, srv)

	report := runSender(t, srv.DataAddr().String(), 200*time.Millisecond)
	if report.TotalReceived != report.TotalSent {
		t.Errorf("Expected every chunk echoed back, sent %d received %d", report.TotalSent, report.TotalReceived)
	}
	if srv.APIAddr() != nil {
		t.Errorf("Expected no API listener")
	}
}

func TestServer_ControlHealth(t *testing.T) {
	cfg := testConfig()
	cfg.API.Enabled = false
	srv, err := New(cfg, Deps{}, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startServer(t, srv)

	conn, err := grpc.NewClient(srv.ControlAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: DataService})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %s", resp.GetStatus())
	}
}

func TestServer_ShutdownCutsLiveSessions(t *testing.T) {
	cfg := testConfig()
	cfg.API.Enabled = false
	srv, err := New(cfg, Deps{}, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startServer(t, srv)

	done := make(chan error, 1)
	go func() {
		sender := session.NewSender(session.SenderConfig{
			SessionConfig: model.SessionConfig{ChunkSize: 1024, SampleFrequency: 20 * time.Millisecond, RunDuration: time.Minute},
			Address:       srv.DataAddr().String(),
		}, session.WithLogger(discardLogger()))
		_, err := sender.Run(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Registry().Live() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Session never became live")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if srv.Registry().Live() != 0 {
		t.Errorf("Expected no live sessions after shutdown")
	}
	if len(srv.Registry().List()) != 1 {
		t.Errorf("Expected the cut session to be reported")
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Sender did not notice the shutdown")
	}
}

func TestListenData_LinkEmulation(t *testing.T) {
	cfg := testConfig()
	cfg.Server.LinkEmulation = config.LinkEmulationConfig{Enabled: true, ReadBytesPerSec: 1 << 20, WriteBytesPerSec: 1 << 20}
	srv, err := New(cfg, Deps{}, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ln, err := srv.listenData(context.Background())
	if err != nil {
		t.Fatalf("listenData failed: %v", err)
	}
	defer ln.Close()
	if got := fmt.Sprintf("%T", ln); !strings.Contains(got, "bwlimit") {
		t.Errorf("Expected a bandwidth-limited listener, got %s", got)
	}
}
