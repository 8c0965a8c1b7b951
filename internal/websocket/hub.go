package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/contrib/websocket"

	"github.com/zentag/api/internal/model"
)

// Client represents a WebSocket subscriber of one record
type Client struct {
	RecordID string
	Send     chan []byte
}

// Hub fans job events out to the WebSocket subscribers of each record
type Hub struct {
	// Clients grouped by record ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	// closed once Run has returned
	done chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	RecordID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done. It must be
// called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.RecordID] == nil {
				h.clients[client.RecordID] = make(map[*Client]bool)
			}
			h.clients[client.RecordID][client] = true
			h.mu.Unlock()
			log.Debug("websocket client registered", "recordId", client.RecordID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Debug("websocket client unregistered", "recordId", client.RecordID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.RecordID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow subscriber
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops client; callers hold mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.RecordID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.RecordID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			close(client.Send)
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}

// Subscribers returns the number of clients watching a record
func (h *Hub) Subscribers(recordID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[recordID])
}

// Register adds a new client. It reports false once the hub has shut down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client; after shutdown it is a no-op since closeAll
// already released every client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify converts a job event into the subscriber message for its status.
// It never blocks the write path; events are dropped when the hub is backed up.
func (h *Hub) Notify(ctx context.Context, event model.JobEvent) {
	var msg any
	switch event.Status {
	case model.JobStatusCompleted:
		msg = model.WSCompleteMessage{
			Type:     model.WSMessageTypeComplete,
			RecordID: event.RecordID,
			JobID:    event.JobID,
			Result:   event.Result,
		}
	case model.JobStatusFailed, model.JobStatusCancelled:
		code := "JOB_FAILED"
		message := event.Error
		if event.Status == model.JobStatusCancelled {
			code = "JOB_CANCELLED"
			message = "Job cancelled"
		}
		msg = model.WSErrorMessage{
			Type:     model.WSMessageTypeError,
			RecordID: event.RecordID,
			JobID:    event.JobID,
			Status:   event.Status,
			Error:    model.WSError{Code: code, Message: message},
		}
	default:
		msg = model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			RecordID: event.RecordID,
			JobID:    event.JobID,
			Progress: event.Progress,
			Status:   event.Status,
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to marshal websocket message", "err", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{RecordID: event.RecordID, Message: data}:
	default:
		log.Warn("websocket broadcast queue full, dropping event", "recordId", event.RecordID)
	}
}

// HandleConnection serves one WebSocket subscriber until it disconnects
func (h *Hub) HandleConnection(c *websocket.Conn, recordID string) {
	client := &Client{
		RecordID: recordID,
		Send:     make(chan []byte, 256),
	}

	if !h.Register(client) {
		c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read error", "recordId", recordID, "err", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.broadcastTo(client, data)
		}
	}
}

// broadcastTo sends a direct reply while client is still registered. Send is
// closed only under the write lock, so holding the read lock keeps it open.
func (h *Hub) broadcastTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[client.RecordID][client] {
		select {
		case client.Send <- data:
		default:
		}
	}
}
