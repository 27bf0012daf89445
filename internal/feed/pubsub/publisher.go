// Package pubsub mirrors feed events to a Google Cloud Pub/Sub topic so
// external consumers can follow registry changes without polling the API.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

// Config carries the Pub/Sub connection settings.
type Config struct {
	ProjectID string
	TopicID   string
}

// Publisher sends feed events to a Pub/Sub topic as JSON messages.
type Publisher struct {
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

type message struct {
	Kind         string `json:"kind"`
	ResourceUUID string `json:"resource_uuid"`
	OccurredAt   string `json:"occurred_at"`
}

// New connects to Pub/Sub and binds the configured topic. Credentials come
// from the ambient environment (ADC).
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub: project id and topic id are required")
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(cfg.TopicID),
	}, nil
}

// Publish serializes the event and blocks until the broker acknowledges it.
func (p *Publisher) Publish(ctx context.Context, ev registry.FeedEvent) error {
	data, err := json.Marshal(message{
		Kind:         string(ev.Kind),
		ResourceUUID: ev.ResourceUUID.String(),
		OccurredAt:   ev.OccurredAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind": string(ev.Kind),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
