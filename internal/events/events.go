// Package events publishes contribution and verification events to NATS for
// out-of-band consumers such as dashboards and analytics pipelines.
//
// Publishing is strictly best-effort: the write path never blocks on or
// fails because of the broker. When events are disabled a no-op publisher
// is used.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/config"
)

// ContributionEvent is emitted after a contribution commits.
type ContributionEvent struct {
	BugID      string    `json:"bug_id"`
	SolutionID string    `json:"solution_id"`
	AgentID    string    `json:"agent_id"`
	ErrorType  string    `json:"error_type"`
	IsNewBug   bool      `json:"is_new_bug"`
	Timestamp  time.Time `json:"timestamp"`
}

// VerificationEvent is emitted after a verification commits.
type VerificationEvent struct {
	SolutionID string    `json:"solution_id"`
	BugID      string    `json:"bug_id"`
	AgentID    string    `json:"agent_id"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits knowledge-base events.
type Publisher interface {
	PublishContribution(ctx context.Context, ev ContributionEvent)
	PublishVerification(ctx context.Context, ev VerificationEvent)
	Close()
}

// NopPublisher drops all events. Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) PublishContribution(context.Context, ContributionEvent) {}
func (NopPublisher) PublishVerification(context.Context, VerificationEvent) {}
func (NopPublisher) Close()                                                 {}

// NATSPublisher publishes events to NATS subjects
// {prefix}.contributions and {prefix}.verifications.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *zap.Logger
}

var _ Publisher = (*NATSPublisher)(nil)
var _ Publisher = NopPublisher{}

// New creates the publisher selected by the events configuration.
// Returns a NopPublisher when events are disabled.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}
	return NewNATSPublisher(cfg, logger)
}

// NewNATSPublisher connects to NATS. The connection reconnects forever in
// the background; a broker outage degrades to dropped events, not errors.
func NewNATSPublisher(cfg config.EventsConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("events: url required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("agentstackd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "agentstack"
	}

	return &NATSPublisher{
		conn:          conn,
		subjectPrefix: prefix,
		logger:        logger,
	}, nil
}

// PublishContribution emits a contribution event. Failures are logged only.
func (p *NATSPublisher) PublishContribution(ctx context.Context, ev ContributionEvent) {
	p.publish(ctx, p.subjectPrefix+".contributions", ev)
}

// PublishVerification emits a verification event. Failures are logged only.
func (p *NATSPublisher) PublishVerification(ctx context.Context, ev VerificationEvent) {
	p.publish(ctx, p.subjectPrefix+".verifications", ev)
}

func (p *NATSPublisher) publish(_ context.Context, subject string, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshaling event", zap.String("subject", subject), zap.Error(err))
		return
	}

	// nats.Conn.Publish buffers and never blocks on the wire
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publishing event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close drains buffered events and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("draining nats connection", zap.Error(err))
	}
}
