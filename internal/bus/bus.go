// Package bus publishes resume signals to downstream task executors.
//
// The transport is Postgres NOTIFY: executors hold a LISTEN connection on
// the resume channel. Delivery is at-least-once from the caller's point of
// view — a successful publish means the signal reached the database, not
// that an executor consumed it. No retry or dedup happens here.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/meridian-ai/acc/internal/storage"
)

// Message is one bus publication: an opaque JSON payload plus string
// attributes carried alongside for bus-level filtering and routing.
type Message struct {
	Data       json.RawMessage   `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher publishes messages to the resume channel.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PostgresPublisher publishes messages as NOTIFY payloads on a fixed channel.
type PostgresPublisher struct {
	db      *storage.DB
	channel string
	logger  *slog.Logger
}

// NewPostgresPublisher creates a publisher writing to the given channel.
func NewPostgresPublisher(db *storage.DB, channel string, logger *slog.Logger) *PostgresPublisher {
	return &PostgresPublisher{db: db, channel: channel, logger: logger}
}

// Publish serializes the message envelope and sends it via pg_notify.
func (p *PostgresPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}
	if err := p.db.Notify(ctx, p.channel, string(payload)); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	p.logger.Debug("message published", "channel", p.channel, "bytes", len(payload))
	return nil
}
