package pubsub

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInserted EventType = "inserted"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
)

// SetlistEvent is the delta published on a show's channel after every ledger
// mutation commits. It carries the new aggregate count, not the delta, so a
// subscriber can patch its view without replaying history.
type SetlistEvent struct {
	ShowID    string    `json:"show_id"`
	SongID    uuid.UUID `json:"song_id"`
	Votes     int       `json:"votes"`
	EventType EventType `json:"event_type"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

const showChannelPrefix = "setlist:"

// ShowChannel returns the Redis channel name for a show's setlist events.
func ShowChannel(showID string) string {
	return showChannelPrefix + showID
}

// ShowChannelPattern matches every show channel, for pattern subscribers.
const ShowChannelPattern = showChannelPrefix + "*"
