// Package pubsub implements a Google Cloud Pub/Sub run-event publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	pub "github.com/relaycore/report-relay/internal/publisher"
)

// Topic is the slice of a Pub/Sub topic the publisher needs; tests can
// substitute their own.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Publisher delivers run events to a Pub/Sub topic.
type Publisher struct {
	topic Topic
}

// New wraps an existing topic handle.
func New(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Connect creates a client against projectID and returns a Publisher bound to
// topicName, plus a closer for the client.
func Connect(ctx context.Context, projectID, topicName string) (*Publisher, func(), error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	closer := func() {
		topic.Stop()
		_ = client.Close()
	}
	return New(topic), closer, nil
}

// Publish marshals the event to JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, event pub.RunEvent) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal run event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"state": event.State,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish run event: %w", err)
	}
	return id, nil
}
