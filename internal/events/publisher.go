// Package events publishes fire-and-forget domain events for downstream
// consumers such as owner notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectInvitationProvisioned = "invitations.provisioned"
	SubjectSubmissionCreated     = "submissions.created"
)

// Publisher delivers a JSON-encoded event on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Envelope wraps every published payload.
type Envelope struct {
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// NATSPublisher publishes events over a core NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to url and returns a publisher that logs
// connection state changes.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	p := &NATSPublisher{logger: logger.Named("events")}

	conn, err := nats.Connect(
		url,
		nats.Name("invitecore"),
		nats.ReconnectHandler(p.reconnectHandler),
		nats.DisconnectErrHandler(p.disconnectHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p.conn = conn
	return p, nil
}

func (p *NATSPublisher) reconnectHandler(nc *nats.Conn) {
	p.logger.Info("got reconnected", zap.String("url", nc.ConnectedUrl()))
}

func (p *NATSPublisher) disconnectHandler(_ *nats.Conn, err error) {
	p.logger.Warn("got disconnected", zap.Error(err))
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, subject string, payload any) error {
	data, err := json.Marshal(Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("drain nats connection", zap.Error(err))
	}
}
