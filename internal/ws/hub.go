package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/theset/setlist-server/pkg/pubsub"
)

// conn wraps a websocket connection with a write lock; gorilla allows only
// one concurrent writer per connection.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks which connections are watching which show and fans setlist
// events out to them. Membership doubles as live viewer presence: the room
// size is the viewer count, and it is broadcast on every join and leave.
type Hub struct {
	// showID -> connID -> conn
	rooms map[string]map[string]*conn
	mu    sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*conn)}
}

// Message types pushed to viewers.
type setlistMessage struct {
	Type string `json:"type"`
	*pubsub.SetlistEvent
}

type presenceMessage struct {
	Type    string `json:"type"`
	ShowID  string `json:"show_id"`
	Viewers int    `json:"viewers"`
}

func (h *Hub) Join(showID, connID string, ws *websocket.Conn) {
	h.mu.Lock()
	if _, exists := h.rooms[showID]; !exists {
		h.rooms[showID] = make(map[string]*conn)
	}
	h.rooms[showID][connID] = &conn{ws: ws}
	viewers := len(h.rooms[showID])
	h.mu.Unlock()

	h.broadcastPresence(showID, viewers)
}

func (h *Hub) Leave(showID, connID string) {
	h.mu.Lock()
	viewers := 0
	if room, exists := h.rooms[showID]; exists {
		if c, exists := room[connID]; exists {
			c.ws.Close()
			delete(room, connID)
		}
		viewers = len(room)
		if viewers == 0 {
			delete(h.rooms, showID)
		}
	}
	h.mu.Unlock()

	if viewers > 0 {
		h.broadcastPresence(showID, viewers)
	}
}

// ViewerCount returns the number of live connections watching the show.
func (h *Hub) ViewerCount(showID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[showID])
}

// BroadcastSetlistEvent pushes a committed ledger change to every viewer of
// the show. Wired as the pubsub.Subscriber handler so events flow to all
// server instances.
func (h *Hub) BroadcastSetlistEvent(event *pubsub.SetlistEvent) {
	h.broadcast(event.ShowID, setlistMessage{Type: "setlist", SetlistEvent: event})
}

func (h *Hub) broadcastPresence(showID string, viewers int) {
	h.broadcast(showID, presenceMessage{Type: "presence", ShowID: showID, Viewers: viewers})
}

func (h *Hub) broadcast(showID string, message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal ws message: %v", err)
		return
	}

	h.mu.RLock()
	room := h.rooms[showID]
	conns := make([]*conn, 0, len(room))
	for _, c := range room {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(payload); err != nil {
			log.Printf("Failed to send ws message: %v", err)
		}
	}
}
