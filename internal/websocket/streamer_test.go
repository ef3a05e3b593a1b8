package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ocx/slimlo/internal/events"
)

func TestStreamerBroadcastsToConnectedClient(t *testing.T) {
	s := NewStreamer()
	stop := make(chan struct{})
	go s.Run(stop)
	defer close(stop)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.Stats()["connected_clients"] == 1
	}, time.Second, 10*time.Millisecond)

	s.Broadcast(events.NewCloudEvent(events.TypeConversionCompleted, "req-1", nil))

	var got events.CloudEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, events.TypeConversionCompleted, got.Type)
	require.Equal(t, "req-1", got.Subject)
}
