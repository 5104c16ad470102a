package natsclient

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/onayflow/be-approvals/internal/platform/errors"
)

// Config holds NATS connection settings. An empty URL disables publishing.
type Config struct {
	URL  string
	Name string
}

// Client is a thin JetStream publisher.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS and initializes a JetStream context.
func Connect(cfg Config) (*Client, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to connect to NATS")
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create JetStream context")
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish sends a message to a JetStream subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
