package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Dispatcher delivers webhook events over plain HTTP through a background
// worker pool. A delivery whose request fails at the transport level is
// retried up to three attempts in all, after a delay of attempt² seconds
// (1s, then 4s); a response with status >= 400 counts as a failure but is
// not retried.
type Dispatcher struct {
	registry   *Registry
	httpClient *http.Client
	queue      chan *deliveryJob
	wg         sync.WaitGroup
}

type deliveryJob struct {
	subscriber *Subscription
	event      *Event
	attempt    int
}

// NewDispatcher starts workers background delivery goroutines backed by
// registry.
func NewDispatcher(registry *Registry, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryJob, 1000),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Emit enqueues eventType/data for delivery to every matching subscriber.
func (d *Dispatcher) Emit(eventType EventType, data map[string]interface{}) {
	subscribers := d.registry.GetSubscribers(eventType)
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

	for _, sub := range subscribers {
		select {
		case d.queue <- &deliveryJob{subscriber: sub, event: event, attempt: 1}:
		default:
			slog.Warn("webhooks: queue full, dropping delivery", "event_id", event.ID, "subscriber", sub.ID)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job *deliveryJob) {
	payload, err := json.Marshal(job.event)
	if err != nil {
		slog.Error("webhooks: failed to marshal event", "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, job.subscriber.URL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("webhooks: failed to build request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SlimLO-Event-Type", string(job.event.Type))
	req.Header.Set("X-SlimLO-Event-ID", job.event.ID)
	req.Header.Set("X-SlimLO-Delivery-Attempt", fmt.Sprintf("%d", job.attempt))
	if job.subscriber.Secret != "" {
		req.Header.Set("X-SlimLO-Signature", "sha256="+SignPayload(payload, job.subscriber.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.registry.MarkFailed(job.subscriber.ID)
		if job.attempt < 3 {
			time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
			job.attempt++
			select {
			case d.queue <- job:
			default:
			}
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.registry.MarkFailed(job.subscriber.ID)
	}
}

// Shutdown drains the delivery queue and stops all workers.
func (d *Dispatcher) Shutdown() {
	close(d.queue)
	d.wg.Wait()
}
