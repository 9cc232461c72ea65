// Package notify publishes summary events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kalambet/recap/internal/pipeline"
)

// SubjectSummaryCompleted is published after every successful summary.
const SubjectSummaryCompleted = "recap.summary.completed"

// SummaryCompleted is the payload of SubjectSummaryCompleted.
type SummaryCompleted struct {
	ThreadID    string    `json:"thread_id"`
	Timestamp   time.Time `json:"timestamp"`
	TLDR        string    `json:"tldr"`
	ActionItems int       `json:"action_items"`
	Decisions   int       `json:"decisions"`
	Risks       int       `json:"risks"`
	LatencyMs   float64   `json:"latency_ms"`
	UsedContext bool      `json:"used_context"`
}

// Event builds the message for a completed summary.
func Event(c pipeline.Completed) SummaryCompleted {
	return SummaryCompleted{
		ThreadID:    c.ThreadID,
		Timestamp:   c.Timestamp,
		TLDR:        c.Record.TLDR,
		ActionItems: len(c.Record.ActionItems),
		Decisions:   len(c.Record.Decisions),
		Risks:       len(c.Record.Risks),
		LatencyMs:   c.LatencyMs,
		UsedContext: c.UsedContext,
	}
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("recap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close flushes buffered messages and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// Publisher sends a JSON message on a subject.
type Publisher interface {
	Publish(subject string, data any) error
}

// Listener publishes SummaryCompleted for every successful summary. An
// empty subject uses SubjectSummaryCompleted. Publish errors are logged.
func Listener(p Publisher, subject string, logger *slog.Logger) pipeline.Listener {
	if subject == "" {
		subject = SubjectSummaryCompleted
	}
	if logger == nil {
		logger = slog.Default()
	}
	return pipeline.ListenerFunc(func(_ context.Context, c pipeline.Completed) {
		if err := p.Publish(subject, Event(c)); err != nil {
			logger.Warn("publishing summary event failed", "subject", subject, "thread_id", c.ThreadID, "error", err)
		}
	})
}
