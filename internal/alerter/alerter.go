package alerter

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"NetSeismic/internal/report"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
)

// Metrics that rules may test.
const (
	MetricMeanThroughput = "mean_throughput_bps"
	MetricPeakThroughput = "peak_throughput_bps"
	MetricTotalReceived  = "total_received"
	MetricSampleCount    = "sample_count"
)

// Alerter evaluates finished sessions against predefined rules and sends one
// consolidated notification per check interval for everything that fired.
type Alerter struct {
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	pending []string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, logger *slog.Logger) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("alerter check_interval must be positive")
	}
	for _, rule := range cfg.Rules {
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}

	return &Alerter{
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: interval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}, nil
}

func validateRule(rule config.AlerterRule) error {
	switch rule.Metric {
	case MetricMeanThroughput, MetricPeakThroughput, MetricTotalReceived, MetricSampleCount:
	default:
		return fmt.Errorf("unknown metric %q", rule.Metric)
	}
	if _, ok := compare(rule.Operator, 0, 0); !ok {
		return fmt.Errorf("unknown operator %q", rule.Operator)
	}
	switch model.Role(rule.Role) {
	case "", model.RoleSender, model.RoleReceiver:
	default:
		return fmt.Errorf("unknown role %q", rule.Role)
	}
	return nil
}

// Start launches the flush loop. It runs until Stop is called.
func (a *Alerter) Start() {
	a.logger.Info("alerter started",
		slog.Int("rules", len(a.rules)),
		slog.Duration("check_interval", a.checkInterval))
	a.wg.Add(1)
	go a.run()
}

func (a *Alerter) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush()
		case <-a.stopChan:
			return
		}
	}
}

// Stop ends the flush loop and sends whatever is still pending.
func (a *Alerter) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("stopping alerter")
		close(a.stopChan)
	})
	a.wg.Wait()
	a.Flush()
}

// Observe evaluates every rule against a finished session and queues the
// triggered alerts. It returns the number of rules that fired.
func (a *Alerter) Observe(r *model.Report) int {
	sum := r.Summary()
	var fired []string
	for _, rule := range a.rules {
		if rule.Role != "" && model.Role(rule.Role) != r.Role {
			continue
		}
		value := metricValue(rule.Metric, sum)
		if ok, _ := compare(rule.Operator, value, rule.Threshold); ok {
			fired = append(fired, alertMarkdown(rule, sum, value))
		}
	}
	if len(fired) == 0 {
		return 0
	}

	a.mu.Lock()
	a.pending = append(a.pending, fired...)
	a.mu.Unlock()
	a.logger.Warn("alert rules triggered",
		slog.String("session_id", r.SessionID),
		slog.Int("count", len(fired)))
	return len(fired)
}

// Flush sends all queued alerts as one notification.
func (a *Alerter) Flush() {
	a.mu.Lock()
	messages := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(messages) == 0 {
		return
	}

	md := "# NetSeismic Alert Summary\n\n" +
		"The following alerts were triggered since the last check:\n\n" +
		strings.Join(messages, "\n---\n\n")
	body := string(markdown.ToHTML([]byte(md), nil, nil))

	if a.notifier == nil {
		return
	}
	subject := fmt.Sprintf("NetSeismic Alert Summary (%d Triggered)", len(messages))
	if err := a.notifier.Send(subject, body); err != nil {
		a.logger.Error("failed to send alert notification", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("alert notification sent", slog.Int("alerts", len(messages)))
}

// metricValue picks the figure a rule tests. Throughput uses the direction
// the role measures: bytes written by senders, bytes read by receivers.
func metricValue(metric string, sum model.Summary) float64 {
	switch metric {
	case MetricMeanThroughput:
		if sum.Role == model.RoleSender {
			return sum.MeanSentBps
		}
		return sum.MeanReceivedBps
	case MetricPeakThroughput:
		if sum.Role == model.RoleSender {
			return sum.PeakSentBps
		}
		return sum.PeakReceivedBps
	case MetricTotalReceived:
		return float64(sum.TotalReceived)
	case MetricSampleCount:
		return float64(sum.Samples)
	}
	return 0
}

func compare(op string, value, threshold float64) (result, known bool) {
	switch op {
	case ">":
		return value > threshold, true
	case "<":
		return value < threshold, true
	case "=":
		return value == threshold, true
	case ">=":
		return value >= threshold, true
	case "<=":
		return value <= threshold, true
	}
	return false, false
}

func alertMarkdown(rule config.AlerterRule, sum model.Summary, value float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Rule `%s`\n\n", rule.Name)
	fmt.Fprintf(&b, "- **Session**: `%s` (%s, peer %s)\n", sum.SessionID, sum.Role, sum.Peer)
	fmt.Fprintf(&b, "- **Condition**: %s %s %g\n", rule.Metric, rule.Operator, rule.Threshold)
	switch rule.Metric {
	case MetricMeanThroughput, MetricPeakThroughput:
		fmt.Fprintf(&b, "- **Observed**: %.0f B/s (%s)\n", value, report.FormatRate(value))
	default:
		fmt.Fprintf(&b, "- **Observed**: %.0f\n", value)
	}
	fmt.Fprintf(&b, "- **Duration**: %s over %d samples\n", sum.Duration.Round(time.Millisecond), sum.Samples)
	if sum.Error != "" {
		fmt.Fprintf(&b, "- **Error**: %s\n", sum.Error)
	}
	return b.String()
}
