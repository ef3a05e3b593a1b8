package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubMirror wraps Bus and also publishes every event to a Google Cloud
// Pub/Sub topic, so operators outside this process can observe worker
// crashes and conversion outcomes. In-memory delivery to the live
// diagnostics stream still happens on every Emit regardless of Pub/Sub
// reachability.
type PubSubMirror struct {
	*Bus

	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubMirror connects to projectID and creates topicID if it doesn't
// already exist.
func NewPubSubMirror(projectID, topicID string) (*PubSubMirror, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("events: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("events: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("events: CreateTopic: %w", err)
		}
		slog.Info("events: created pubsub topic", "topic_id", topicID)
	}

	return &PubSubMirror{Bus: NewBus(), client: client, topic: topic}, nil
}

// Emit publishes eventType/subject/data to Pub/Sub and fans it out to
// in-memory subscribers.
func (m *PubSubMirror) Emit(eventType, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, subject, data)
	m.publishToPubSub(event)
	m.Bus.Publish(event)
}

func (m *PubSubMirror) publishToPubSub(event *CloudEvent) {
	payload, err := event.JSON()
	if err != nil {
		slog.Error("events: failed to marshal event", "id", event.ID, "error", err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
		},
	}

	result := m.topic.Publish(context.Background(), msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			slog.Error("events: pubsub publish failed", "id", event.ID, "error", err)
		}
	}()
}

// Close shuts down the Pub/Sub client.
func (m *PubSubMirror) Close() error {
	m.topic.Stop()
	return m.client.Close()
}

// HealthCheck verifies the configured topic is still reachable.
func (m *PubSubMirror) HealthCheck(ctx context.Context) error {
	exists, err := m.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("events: topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("events: topic does not exist")
	}
	return nil
}

var _ Emitter = (*PubSubMirror)(nil)
