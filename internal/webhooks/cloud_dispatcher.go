package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// CloudDispatcher delivers webhook events through Google Cloud Tasks for
// durable, retried delivery, falling back to an in-memory Dispatcher when
// enqueueing fails.
type CloudDispatcher struct {
	registry  *Registry
	client    *cloudtasks.Client
	queuePath string
	fallback  *Dispatcher
}

// NewCloudDispatcher connects to the Cloud Tasks queue identified by
// projectID/locationID/queueID. If fallbackWorkers > 0, an in-memory
// Dispatcher backs failed enqueues.
func NewCloudDispatcher(registry *Registry, projectID, locationID, queueID string, fallbackWorkers int) (*CloudDispatcher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("webhooks: cloudtasks.NewClient: %w", err)
	}

	cd := &CloudDispatcher{
		registry:  registry,
		client:    client,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
	}
	if fallbackWorkers > 0 {
		cd.fallback = NewDispatcher(registry, fallbackWorkers)
	}
	return cd, nil
}

// Emit enqueues a Cloud Task per matching subscriber.
func (cd *CloudDispatcher) Emit(eventType EventType, data map[string]interface{}) {
	subscribers := cd.registry.GetSubscribers(eventType)
	if len(subscribers) == 0 {
		return
	}

	event := &Event{
		ID:        fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		Type:      eventType,
		Source:    "slimlo",
		Timestamp: time.Now(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhooks: failed to marshal event", "error", err)
		return
	}

	for _, sub := range subscribers {
		cd.enqueueTask(sub, event, payload)
	}
}

func (cd *CloudDispatcher) enqueueTask(sub *Subscription, event *Event, payload []byte) {
	headers := map[string]string{
		"Content-Type":              "application/json",
		"X-SlimLO-Event-Type":       string(event.Type),
		"X-SlimLO-Event-ID":         event.ID,
		"X-SlimLO-Delivery-Attempt": "1",
	}
	if sub.Secret != "" {
		headers["X-SlimLO-Signature"] = "sha256=" + SignPayload(payload, sub.Secret)
	}

	req := &taskspb.CreateTaskRequest{
		Parent: cd.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        sub.URL,
					Headers:    headers,
					Body:       payload,
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := cd.client.CreateTask(ctx, req); err != nil {
			slog.Error("webhooks: cloud task enqueue failed", "event_id", event.ID, "url", sub.URL, "error", err)
			if cd.fallback != nil {
				cd.fallback.Emit(event.Type, event.Data)
			}
		}
	}()
}

// Shutdown closes the Cloud Tasks client and any fallback dispatcher.
func (cd *CloudDispatcher) Shutdown() {
	if cd.fallback != nil {
		cd.fallback.Shutdown()
	}
	if err := cd.client.Close(); err != nil {
		slog.Warn("webhooks: cloud tasks client close error", "error", err)
	}
}

var _ Emitter = (*Dispatcher)(nil)
var _ Emitter = (*CloudDispatcher)(nil)
