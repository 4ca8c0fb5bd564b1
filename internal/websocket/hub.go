// Package websocket pushes change events to connected clients.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vdavid/bbs2ch/internal/bbs"
)

// TopicAll receives every event.
const TopicAll = "*"

// BoardTopic returns the topic for events about a board and its threads.
func BoardTopic(boardID string) string { return "board:" + boardID }

// ThreadTopic returns the topic for events about a thread.
func ThreadTopic(threadID string) string { return "thread:" + threadID }

// Client wraps a WebSocket connection.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages active WebSocket connections per topic.
// A topic may have several connections (e.g., multiple tabs).
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]map[*Client]struct{} // topic -> set of clients
	maxPerTopic int
}

// NewHub creates a new Hub with a per-topic connection limit.
func NewHub(maxPerTopic int) *Hub {
	if maxPerTopic <= 0 {
		maxPerTopic = 10
	}
	return &Hub{
		clients:     make(map[string]map[*Client]struct{}),
		maxPerTopic: maxPerTopic,
	}
}

// Register subscribes a WebSocket connection to a topic.
// If the per-topic limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(topic string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[topic]
	if !ok {
		topicClients = make(map[*Client]struct{})
		h.clients[topic] = topicClients
	}

	if len(topicClients) >= h.maxPerTopic {
		log.Printf("websocket: topic %s exceeded max connections (%d), closing new connection", topic, h.maxPerTopic)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this topic"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	topicClients[client] = struct{}{}
	return client
}

// Unregister removes a client from a topic and closes the connection.
func (h *Hub) Unregister(topic string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, topic)
		}
	}

	_ = client.conn.Close()
}

// Send broadcasts a message to all clients subscribed to the topic.
func (h *Hub) Send(topic string, msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[topic]))
	for client := range h.clients[topic] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(msg); err != nil {
			log.Printf("websocket: failed to write message for topic %s: %v", topic, err)
			go h.Unregister(topic, client)
		}
	}
}

// Notify broadcasts a change event to the catch-all topic and to the topics
// of the board and thread it concerns.
func (h *Hub) Notify(event bbs.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to encode event: %v", err)
		return
	}

	h.Send(TopicAll, msg)
	if event.BoardID != "" {
		h.Send(BoardTopic(event.BoardID), msg)
	}
	if event.ThreadID != "" {
		h.Send(ThreadTopic(event.ThreadID), msg)
	}
}

// ActiveConnections returns the number of active WebSocket connections for a topic.
func (h *Hub) ActiveConnections(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[topic])
}

var _ bbs.Notifier = (*Hub)(nil)
