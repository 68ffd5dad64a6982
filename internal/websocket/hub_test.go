package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/pkg/contracts/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startFeed(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testLogger())
	hub.Start()
	srv := httptest.NewServer(NewHandler(hub, config.Default().WebSocket, testLogger()))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) events.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg events.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsConnectMessage(t *testing.T) {
	hub, srv := startFeed(t)
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, events.MessageTypeConnect, msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, srv := startFeed(t)
	first := dial(t, srv)
	second := dial(t, srv)
	readMessage(t, first)
	readMessage(t, second)

	ctx := infrastructure.WithTraceID(context.Background(), "trace-42")
	hub.Publish(ctx, events.MessageTypeCheck, events.LicenseActivity{
		Key:    "ABCD****",
		IP:     "203.0.113.9",
		Result: "success",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, events.MessageTypeCheck, msg.Type)
		assert.Equal(t, "trace-42", msg.TraceID)

		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "ABCD****", data["key"])
		assert.Equal(t, "success", data["result"])
	}
	assert.GreaterOrEqual(t, hub.Stats()["messages_sent"], int64(4))
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv := startFeed(t)
	conn := dial(t, srv)
	readMessage(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub, srv := startFeed(t)
	conn := dial(t, srv)
	readMessage(t, conn)

	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())

	// Publishing and stopping again after shutdown are no-ops
	hub.Publish(context.Background(), events.MessageTypeHeartbeat, nil)
	hub.Stop()
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	slow := &Client{
		hub:         hub,
		send:        make(chan []byte, 1),
		id:          "slow",
		connectedAt: time.Now(),
		logger:      testLogger(),
	}
	slow.send <- []byte("backlog")
	require.True(t, hub.Register(slow))

	// The connect message cannot be queued, so the client is dropped
	assert.Eventually(t, func() bool { return hub.Stats()["total_connections"] == 1 && hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestRegisterAfterStop(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	hub.Stop()

	assert.False(t, hub.Register(&Client{send: make(chan []byte, 1)}))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), events.MessageTypeCheck, nil)
	})
}
