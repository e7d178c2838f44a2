package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theset/setlist-server/pkg/pubsub"
)

// wsMessage covers every frame the hub pushes; Type tells them apart.
type wsMessage struct {
	Type      string           `json:"type"`
	ShowID    string           `json:"show_id"`
	Viewers   int              `json:"viewers"`
	SongID    uuid.UUID        `json:"song_id"`
	Votes     int              `json:"votes"`
	EventType pubsub.EventType `json:"event_type"`
}

func newTestServer(t *testing.T, hub *Hub, middleware ...gin.HandlerFunc) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(hub).RegisterRoutes(router.Group("/", middleware...))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialShow(t *testing.T, srv *httptest.Server, showID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/shows/" + showID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg wsMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func waitForViewers(t *testing.T, hub *Hub, showID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ViewerCount(showID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("wanted %d viewers for %s, got %d", want, showID, hub.ViewerCount(showID))
}

func TestPresenceOnJoinAndLeave(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)

	first := dialShow(t, srv, "show-1")
	msg := readMessage(t, first)
	assert.Equal(t, "presence", msg.Type)
	assert.Equal(t, "show-1", msg.ShowID)
	assert.Equal(t, 1, msg.Viewers)

	second := dialShow(t, srv, "show-1")
	// Both sockets see the second join.
	assert.Equal(t, 2, readMessage(t, first).Viewers)
	assert.Equal(t, 2, readMessage(t, second).Viewers)
	assert.Equal(t, 2, hub.ViewerCount("show-1"))

	require.NoError(t, second.Close())
	msg = readMessage(t, first)
	assert.Equal(t, "presence", msg.Type)
	assert.Equal(t, 1, msg.Viewers)
	waitForViewers(t, hub, "show-1", 1)
}

func TestBroadcastReachesAllViewersOfShow(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)

	first := dialShow(t, srv, "show-1")
	second := dialShow(t, srv, "show-1")
	other := dialShow(t, srv, "show-2")
	readMessage(t, first) // own join
	readMessage(t, first) // second join
	readMessage(t, second)
	readMessage(t, other)
	waitForViewers(t, hub, "show-1", 2)

	songID := uuid.New()
	hub.BroadcastSetlistEvent(&pubsub.SetlistEvent{
		ShowID:    "show-1",
		SongID:    songID,
		Votes:     7,
		EventType: pubsub.EventUpdated,
		At:        time.Now(),
	})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, "setlist", msg.Type)
		assert.Equal(t, "show-1", msg.ShowID)
		assert.Equal(t, songID, msg.SongID)
		assert.Equal(t, 7, msg.Votes)
		assert.Equal(t, pubsub.EventUpdated, msg.EventType)
	}

	// The other show's viewer must not receive it.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

// A user watching the same show from two tabs holds two independent
// connections: closing one must not evict the other from the room.
func TestSameUserTwoTabs(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})

	tab1 := dialShow(t, srv, "show-1")
	tab2 := dialShow(t, srv, "show-1")
	readMessage(t, tab1) // own join
	readMessage(t, tab1) // tab2 join
	readMessage(t, tab2)
	require.Equal(t, 2, hub.ViewerCount("show-1"))

	require.NoError(t, tab1.Close())
	msg := readMessage(t, tab2)
	assert.Equal(t, "presence", msg.Type)
	assert.Equal(t, 1, msg.Viewers)
	waitForViewers(t, hub, "show-1", 1)

	// The surviving tab still receives setlist deltas.
	songID := uuid.New()
	hub.BroadcastSetlistEvent(&pubsub.SetlistEvent{
		ShowID:    "show-1",
		SongID:    songID,
		Votes:     2,
		EventType: pubsub.EventUpdated,
		At:        time.Now(),
	})
	msg = readMessage(t, tab2)
	assert.Equal(t, "setlist", msg.Type)
	assert.Equal(t, songID, msg.SongID)
}

func TestRoomRemovedWhenLastViewerLeaves(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)

	conn := dialShow(t, srv, "show-1")
	readMessage(t, conn)
	waitForViewers(t, hub, "show-1", 1)

	require.NoError(t, conn.Close())
	waitForViewers(t, hub, "show-1", 0)

	hub.mu.RLock()
	_, exists := hub.rooms["show-1"]
	hub.mu.RUnlock()
	assert.False(t, exists)
}
