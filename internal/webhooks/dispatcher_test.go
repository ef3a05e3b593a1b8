package webhooks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToRegisteredSubscriber(t *testing.T) {
	var mu sync.Mutex
	var received Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.NotEmpty(t, r.Header.Get("X-SlimLO-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := NewRegistry()
	require.NoError(t, registry.Register(&Subscription{
		URL:    srv.URL,
		Events: []EventType{EventConversionCompleted},
		Secret: "s3cr3t",
	}))

	d := NewDispatcher(registry, 1)
	defer d.Shutdown()

	d.Emit(EventConversionCompleted, map[string]interface{}{"request_id": "req-1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received.ID != ""
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, EventConversionCompleted, received.Type)
}

func TestDispatcherMarksFailureOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	registry := NewRegistry()
	sub := &Subscription{URL: srv.URL, Events: []EventType{EventConversionFailed}}
	require.NoError(t, registry.Register(sub))

	d := NewDispatcher(registry, 1)
	defer d.Shutdown()

	d.Emit(EventConversionFailed, nil)

	require.Eventually(t, func() bool {
		return sub.FailCount > 0
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherSkipsEmitWithNoSubscribers(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 1)
	defer d.Shutdown()

	// Must not block or panic with zero matching subscribers.
	d.Emit(EventWorkerCrashed, nil)
}
