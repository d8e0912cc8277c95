package websocket

import (
	"sync"

	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// Message is the envelope sent to dashboard clients.
type Message struct {
	Type string      `json:"type"` // "health" or "gate"
	Data interface{} `json:"data"`
}

// Hub manages dashboard WebSocket clients and pushes health snapshots and
// gate verdicts to them. Implements port.Notifier.
//
// All client registration and delivery happens on the Run goroutine; the
// mutex only guards the map for ClientCount readers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	logger *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run owns the client set. Must run in its own goroutine.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer: drop the connection rather than block
					// every other client.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastHealth pushes a system health snapshot to all clients.
func (h *Hub) BroadcastHealth(health resilience.SystemHealth) {
	h.send(Message{Type: "health", Data: health})
}

// BroadcastGate pushes a gate verdict to all clients.
func (h *Hub) BroadcastGate(result *gate.Result) {
	h.send(Message{Type: "gate", Data: result})
}

func (h *Hub) send(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
