// Package bus publishes job lifecycle events over NATS.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/zentag/api/internal/model"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("zentag-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// JSONPublisher is satisfied by *Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// Publisher emits a JobEvent for every committed status or progress change.
// Events go to <subject>.<kind>.<status>.
type Publisher struct {
	client  JSONPublisher
	subject string
}

func NewPublisher(client JSONPublisher, subject string) *Publisher {
	return &Publisher{client: client, subject: subject}
}

func (p *Publisher) Notify(ctx context.Context, event model.JobEvent) {
	subject := p.Subject(event)
	if err := p.client.PublishJSON(subject, event); err != nil {
		log.Warn("failed to publish job event", "subject", subject, "recordId", event.RecordID, "err", err)
	}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(event model.JobEvent) string {
	return p.subject + "." + string(event.Kind) + "." + string(event.Status)
}
