package ws

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// Handler upgrades viewers onto a show's live channel. The socket is a
// one-way delta stream: mutations go through the REST API, and after any
// disconnect the client is expected to re-subscribe and re-fetch the ranked
// list.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/shows/:id", h.HandleShowChannel)
}

func (h *Handler) HandleShowChannel(c *gin.Context) {
	showID := c.Param("id")
	if showID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "show id is required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	// Every socket gets its own room key: the same user may watch a show
	// from several tabs, and each must be delivered to and counted
	// independently. On exit each handler removes exactly the conn it added.
	connID := uuid.New().String()

	h.hub.Join(showID, connID, ws)
	defer h.hub.Leave(showID, connID)

	// Drain until the peer goes away; inbound frames carry nothing.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}
