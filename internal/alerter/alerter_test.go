package alerter

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Send(subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowReport is a 2s receiver session that moved 1000 chunks of 1 KiB.
func slowReport() *model.Report {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Report{
		SessionID:     "slow-1",
		Role:          model.RoleReceiver,
		Peer:          "192.0.2.7:40000",
		ChunkSize:     1024,
		EndTime:       start.Add(2 * time.Second),
		TotalReceived: 1000,
		Series: &model.Series{
			StartTime: start,
			Samples: []model.Sample{
				{Offset: 0},
				{Offset: time.Second, Received: 600},
				{Offset: 2 * time.Second, Received: 1000},
			},
		},
	}
}

func newTestAlerter(t *testing.T, rules []config.AlerterRule, n *recordingNotifier) *Alerter {
	t.Helper()
	a, err := NewAlerter(&config.AlerterConfig{Enabled: true, CheckInterval: "1h", Rules: rules}, n, discardLogger())
	if err != nil {
		t.Fatalf("NewAlerter failed: %v", err)
	}
	return a
}

func TestAlerter_ObserveAndFlush(t *testing.T) {
	n := &recordingNotifier{}
	a := newTestAlerter(t, []config.AlerterRule{
		{Name: "slow-link", Role: "receiver", Metric: MetricMeanThroughput, Operator: "<", Threshold: 1_000_000},
		{Name: "sender-only", Role: "sender", Metric: MetricSampleCount, Operator: ">=", Threshold: 0},
		{Name: "bursty", Metric: MetricPeakThroughput, Operator: ">", Threshold: 600_000},
		{Name: "volume", Metric: MetricTotalReceived, Operator: "=", Threshold: 999},
	}, n)

	// 1. Mean is 512000 B/s and the first interval peaks at 614400 B/s.
	if fired := a.Observe(slowReport()); fired != 2 {
		t.Fatalf("Expected 2 rules to fire, got %d", fired)
	}

	// 2. Nothing is sent until the flush.
	if len(n.subjects) != 0 {
		t.Fatalf("Notification sent before flush")
	}
	a.Flush()
	if len(n.subjects) != 1 || !strings.Contains(n.subjects[0], "(2 Triggered)") {
		t.Fatalf("Unexpected subjects %v", n.subjects)
	}
	body := n.bodies[0]
	for _, want := range []string{"<h1>NetSeismic Alert Summary</h1>", "<code>slow-link</code>", "<code>bursty</code>", "slow-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("Body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "sender-only") || strings.Contains(body, "volume") {
		t.Errorf("Body contains rules that should not fire:\n%s", body)
	}

	// 3. A second flush with nothing pending sends nothing.
	a.Flush()
	if len(n.subjects) != 1 {
		t.Errorf("Expected no further notification, got %d", len(n.subjects))
	}
}

func TestAlerter_StopFlushesPending(t *testing.T) {
	n := &recordingNotifier{}
	a := newTestAlerter(t, []config.AlerterRule{
		{Name: "few-samples", Metric: MetricSampleCount, Operator: "<=", Threshold: 3},
	}, n)

	a.Start()
	a.Observe(slowReport())
	a.Stop()
	a.Stop()

	if len(n.subjects) != 1 {
		t.Fatalf("Expected pending alerts to be flushed on stop, got %d notifications", len(n.subjects))
	}
}

func TestNewAlerter_InvalidRules(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AlerterConfig
	}{
		{"bad interval", config.AlerterConfig{CheckInterval: "soon"}},
		{"zero interval", config.AlerterConfig{CheckInterval: "0s"}},
		{"bad metric", config.AlerterConfig{CheckInterval: "1m", Rules: []config.AlerterRule{{Metric: "jitter", Operator: ">"}}}},
		{"bad operator", config.AlerterConfig{CheckInterval: "1m", Rules: []config.AlerterRule{{Metric: MetricSampleCount, Operator: "!="}}}},
		{"bad role", config.AlerterConfig{CheckInterval: "1m", Rules: []config.AlerterRule{{Metric: MetricSampleCount, Operator: ">", Role: "relay"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAlerter(&tt.cfg, nil, discardLogger()); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestMetricValue_SenderUsesSentDirection(t *testing.T) {
	r := slowReport()
	r.Role = model.RoleSender
	r.TotalSent, r.TotalReceived = 2000, 0
	sum := r.Summary()
	if got := metricValue(MetricMeanThroughput, sum); got != 1024000 {
		t.Errorf("Expected sender mean 1024000 B/s, got %v", got)
	}
}
