package publish

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects are laid out as <base>.sample.<role> and <base>.summary.<role>.
func sampleSubject(base string, role model.Role) string {
	return fmt.Sprintf("%s.sample.%s", base, role)
}

func summarySubject(base string, role model.Role) string {
	return fmt.Sprintf("%s.summary.%s", base, role)
}

// Publisher publishes samples and summaries to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("netseismic-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS server", slog.String("url", cfg.URL))
	return &Publisher{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// PublishSample publishes one sample. NATS buffers the message, so this does
// not block on the network.
func (p *Publisher) PublishSample(msg SampleMessage) error {
	data, err := EncodeSample(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(sampleSubject(p.subject, msg.Role), data)
}

// PublishReport publishes the summary of a finished session.
func (p *Publisher) PublishReport(r *model.Report) error {
	data, err := EncodeSummary(r.Summary())
	if err != nil {
		return err
	}
	return p.nc.Publish(summarySubject(p.subject, r.Role), data)
}

// Observer returns a sample observer publishing every sample of sessions
// with the given role and peer.
func (p *Publisher) Observer(role model.Role, peer string) model.SampleObserver {
	return func(sessionID string, s model.Sample) {
		err := p.PublishSample(SampleMessage{
			SessionID: sessionID,
			Role:      role,
			Peer:      peer,
			Timestamp: time.Now(),
			Sample:    s,
		})
		if err != nil {
			p.logger.Warn("failed to publish sample",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.logger.Info("NATS connection drained and closed")
	}
}

// SampleHandler processes a received sample.
type SampleHandler func(msg SampleMessage)

// SummaryHandler processes a received session summary.
type SummaryHandler func(sum model.Summary)

// Subscriber receives samples and summaries from NATS.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *slog.Logger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig, logger *slog.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("netseismic-watch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS server", slog.String("url", cfg.URL))
	return &Subscriber{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Start subscribes to every sample and summary subject under the base subject.
func (s *Subscriber) Start(onSample SampleHandler, onSummary SummaryHandler) error {
	sub, err := s.nc.Subscribe(s.subject+".>", func(msg *nats.Msg) {
		s.dispatch(msg.Subject, msg.Data, onSample, onSummary)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("subscribed, waiting for messages", slog.String("subject", sub.Subject))
	return nil
}

func (s *Subscriber) dispatch(subject string, data []byte, onSample SampleHandler, onSummary SummaryHandler) {
	rest := strings.TrimPrefix(subject, s.subject+".")
	switch {
	case strings.HasPrefix(rest, "sample."):
		msg, err := DecodeSample(data)
		if err != nil {
			s.logger.Warn("dropping malformed sample", slog.String("error", err.Error()))
			return
		}
		if onSample != nil {
			onSample(msg)
		}
	case strings.HasPrefix(rest, "summary."):
		sum, err := DecodeSummary(data)
		if err != nil {
			s.logger.Warn("dropping malformed summary", slog.String("error", err.Error()))
			return
		}
		if onSummary != nil {
			onSummary(sum)
		}
	default:
		s.logger.Debug("ignoring message", slog.String("subject", subject))
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS connection closed")
	}
}
