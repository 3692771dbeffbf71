package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"licensecore/internal/infrastructure"
)

// Message types sent to clients
const (
	TypeConnection = "connection"
	TypeLicense    = "license"
	TypeGrace      = "grace"
	TypeJob        = "job"
)

const broadcastBuffer = 256

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type outbound struct {
	msgType string
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *OTelMetrics
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *OTelMetrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			cctx := client.context()
			h.metrics.recordConnection(cctx)
			h.logger.InfoContext(cctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			if payload, err := h.encode(TypeConnection, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}); err == nil {
				h.deliver(client, TypeConnection, payload)
			}

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				h.deliver(client, msg.msgType, msg.payload)
			}
		}
	}
}

// deliver queues payload for client, disconnecting it when its buffer is full
func (h *Hub) deliver(client *Client, msgType string, payload []byte) {
	select {
	case client.send <- payload:
		h.metrics.recordMessage(client.context(), msgType)
	default:
		h.metrics.recordDropped(client.context(), "client_buffer_full")
		h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	duration := time.Since(client.connectedAt)
	h.metrics.recordDisconnection(client.context(), duration)
	h.logger.InfoContext(client.context(), "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", duration))
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// Publish broadcasts data under msgType. It never blocks: when the hub is
// stopped or its queue is full the message is dropped.
func (h *Hub) Publish(msgType string, data any) {
	payload, err := h.encode(msgType, data)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", msgType))
		return
	}

	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- outbound{msgType: msgType, payload: payload}:
	default:
		h.metrics.recordDropped(context.Background(), "hub_queue_full")
		h.logger.Warn("Broadcast queue full, dropping message", slog.String("message_type", msgType))
	}
}

func (h *Hub) encode(msgType string, data any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Data: data, Timestamp: h.now().UTC()})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Forward returns a listener that publishes every event it receives under
// msgType. It fits the Subscribe methods of the validator, grace manager and
// job queue.
func Forward[T any](h *Hub, msgType string) func(T) {
	return func(ev T) {
		h.Publish(msgType, ev)
	}
}
