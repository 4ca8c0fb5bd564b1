package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	ws "github.com/vdavid/bbs2ch/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for real-time updates.
type WebSocketHandler struct {
	hub *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// For now, allow all origins. This server is expected to be used
		// behind a reverse proxy in a trusted environment.
		return true
	},
}

// topicFromRequest picks the subscription topic: ?thread=<id>, ?board=<id>, or everything.
func topicFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if threadID := q.Get("thread"); threadID != "" {
		return ws.ThreadTopic(threadID)
	}
	if boardID := q.Get("board"); boardID != "" {
		return ws.BoardTopic(boardID)
	}
	return ws.TopicAll
}

// Handle upgrades the HTTP connection to a WebSocket and subscribes it to a topic.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	topic := topicFromRequest(r)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for topic %s: %v", topic, err)
		return
	}

	client := h.hub.Register(topic, conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for topic %s (max connections exceeded)", topic)
		return
	}

	go h.readLoop(topic, client)
}

// readLoop reads messages from the WebSocket until the connection is closed,
// then unregisters the client.
func (h *WebSocketHandler) readLoop(topic string, client *ws.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(topic, client)
}
