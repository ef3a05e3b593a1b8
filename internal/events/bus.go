// Package events is SlimLO's in-process pub/sub bus for conversion
// lifecycle events (worker started, conversion completed, worker crashed),
// with an optional Cloud Pub/Sub mirror for consumers outside this process.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event type constants for the conversion lifecycle.
const (
	TypeWorkerStarted       = "com.slimlo.worker.started"
	TypeWorkerCrashed       = "com.slimlo.worker.crashed"
	TypeWorkerRecycled      = "com.slimlo.worker.recycled"
	TypeConversionCompleted = "com.slimlo.conversion.completed"
	TypeConversionFailed    = "com.slimlo.conversion.failed"
)

// Emitter publishes CloudEvents. Both Bus and the optional PubSubMirror
// satisfy it.
type Emitter interface {
	Emit(eventType, subject string, data map[string]interface{})
}

// CloudEvent is the CloudEvents 1.0 envelope used for every SlimLO event.
type CloudEvent struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// NewCloudEvent builds a CloudEvent with source fixed to "slimlo".
func NewCloudEvent(eventType, subject string, data map[string]interface{}) *CloudEvent {
	return &CloudEvent{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      "slimlo",
		ID:          fmt.Sprintf("ce-%d", time.Now().UnixNano()),
		Time:        time.Now(),
		Subject:     subject,
		Data:        data,
	}
}

// JSON serializes the event.
func (ce *CloudEvent) JSON() ([]byte, error) {
	return json.Marshal(ce)
}

// SSEFormat renders the event in Server-Sent Events wire format. The
// live-diagnostics stream does not use it; that stream sends JSON over a
// websocket.
func (ce *CloudEvent) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\nid: %s\n\n", ce.Type, data, ce.ID), nil
}

// Bus is an in-process pub/sub event bus: subscribers receive CloudEvents
// as they're published, with a bounded per-subscriber buffer so a slow
// reader drops events rather than blocking conversions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *CloudEvent
	allSubs     []chan *CloudEvent
	bufferSize  int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *CloudEvent),
		bufferSize:  100,
	}
}

// Subscribe returns a channel receiving events of the given types, or every
// event if eventTypes is empty.
func (b *Bus) Subscribe(eventTypes ...string) chan *CloudEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *CloudEvent, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			b.subscribers[et] = append(b.subscribers[et], ch)
		}
	}
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(ch chan *CloudEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		b.subscribers[et] = removeChan(subs, ch)
	}
	b.allSubs = removeChan(b.allSubs, ch)
	close(ch)
}

func removeChan(subs []chan *CloudEvent, ch chan *CloudEvent) []chan *CloudEvent {
	filtered := make([]chan *CloudEvent, 0, len(subs))
	for _, s := range subs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// Publish delivers event to every matching subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *Bus) Publish(event *CloudEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			slog.Warn("events: dropping event for full subscriber", "type", event.Type)
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit builds and publishes a CloudEvent in one call.
func (b *Bus) Emit(eventType, subject string, data map[string]interface{}) {
	b.Publish(NewCloudEvent(eventType, subject, data))
}

// SubscriberCount returns the total number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
