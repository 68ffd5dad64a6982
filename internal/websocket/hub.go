// Package websocket implements the admin event feed: a hub that fans out
// license activity to connected admin clients over WebSocket.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/pkg/contracts/events"
)

// Publisher is what the license service needs from the feed
type Publisher interface {
	Publish(ctx context.Context, msgType events.MessageType, data interface{})
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, events.MessageType, interface{}) {}

// broadcastQueue bounds the number of events waiting for the hub loop
const broadcastQueue = 256

// Hub maintains the set of active clients and broadcasts messages to them.
// The client map is owned by the hub loop.
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	clients map[*Client]bool
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}

	clientCount      atomic.Int64
	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		now:        time.Now,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background. A hub cannot be restarted
// once stopped.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running || h.stopped {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.drop(client)
			}
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.clientCount.Store(int64(len(h.clients)))
			h.totalConnections.Add(1)

			h.logger.Info("Client registered",
				slog.Int("total_clients", len(h.clients)),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			if data, err := h.encode(context.Background(), events.MessageTypeConnect, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}); err == nil {
				h.deliver(client, data)
			}

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Info("Client unregistered",
					slog.Int("total_clients", len(h.clients)),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver queues message for client, disconnecting it when its buffer is full
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
		h.messagesSent.Add(1)
	default:
		h.drop(client)
		h.logger.Warn("Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.clientCount.Store(int64(len(h.clients)))
}

func (h *Hub) encode(ctx context.Context, msgType events.MessageType, data interface{}) ([]byte, error) {
	msg := events.Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: h.now().UTC(),
		TraceID:   infrastructure.GetTraceID(ctx),
		Data:      data,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to marshal feed message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return payload, nil
}

// Publish broadcasts an event to every connected client. It never blocks:
// when the queue is full or the hub is stopped the event is dropped.
func (h *Hub) Publish(ctx context.Context, msgType events.MessageType, data interface{}) {
	payload, err := h.encode(ctx, msgType, data)
	if err != nil {
		return
	}
	select {
	case <-h.quit:
		return
	default:
	}
	select {
	case h.broadcast <- payload:
	default:
		h.messagesDropped.Add(1)
		h.logger.WarnContext(ctx, "Feed queue full, dropping event",
			slog.String("type", string(msgType)))
	}
}

// Register adds a client. It returns false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Stats returns hub counters for the health endpoint
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"active_clients":    h.clientCount.Load(),
		"total_connections": h.totalConnections.Load(),
		"messages_sent":     h.messagesSent.Load(),
		"messages_dropped":  h.messagesDropped.Load(),
	}
}

// Stop closes every client and waits for the hub loop to exit
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.stopped = true
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}
