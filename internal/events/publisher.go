package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/makeasinger/modelgen/internal/config"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/nats-io/nats.go"
)

// SessionEvent is the message published for every session state change
type SessionEvent struct {
	SessionID string                `json:"sessionId"`
	OwnerID   string                `json:"ownerId,omitempty"`
	Snapshot  model.SessionSnapshot `json:"snapshot"`
	SentAt    time.Time             `json:"sentAt"`
}

// Publisher fans session events out to other services
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close()
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, SessionEvent) error { return nil }

func (NopPublisher) Close() {}

// NATSPublisher publishes session events on core NATS subjects
// "<prefix>.<sessionID>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials NATS with the configured name and reconnect budget
func Connect(cfg *config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "modelgen.sessions"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject events of sessionID are published on
func (p *NATSPublisher) Subject(sessionID string) string {
	return p.prefix + "." + sessionID
}

func (p *NATSPublisher) Publish(ctx context.Context, event SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.SessionID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	_ = p.conn.Drain()
}
