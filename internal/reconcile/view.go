// Package reconcile implements the viewer-side setlist state machine: apply
// a predicted vote immediately, merge remote deltas underneath it, and settle
// on the server-confirmed state when the round-trip completes.
package reconcile

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theset/setlist-server/pkg/pubsub"
)

var (
	ErrVotePending  = errors.New("a vote for this song is already in flight")
	ErrAlreadyVoted = errors.New("already voted for this song")
	ErrNotVoted     = errors.New("no vote to retract for this song")
	ErrUnknownSong  = errors.New("song not in view")
)

// Snapshot is one ranked entry as the viewer should display it.
type Snapshot struct {
	SongID    uuid.UUID
	Title     string
	Votes     int
	HasVoted  bool
	Pending   bool
	CreatedAt time.Time
}

// songState tracks a single song. The displayed count is always
// base + delta: base follows server truth (confirmations and remote events),
// delta is the local optimistic adjustment while a vote is in flight. Remote
// events arriving mid-flight move base, never delta, so the eventual
// confirmed state is base(remote) + localDelta rather than a stale snapshot.
type songState struct {
	title     string
	createdAt time.Time

	base    int
	delta   int
	pending bool

	hasVoted          bool
	committedHasVoted bool
}

// View holds a viewer's copy of one show's setlist. actorID identifies the
// local user on the event stream, so the echo of an in-flight mutation can be
// told apart from other viewers' votes; empty for anonymous viewers.
type View struct {
	mu      sync.Mutex
	actorID string
	songs   map[uuid.UUID]*songState
}

func NewView(actorID string) *View {
	return &View{actorID: actorID, songs: make(map[uuid.UUID]*songState)}
}

// Load replaces the whole view with an authoritative ranked list, e.g. after
// first subscribe or after a channel reconnect. Pending local state is
// discarded: a reconnect means any in-flight outcome is unknown and server
// truth wins.
func (v *View) Load(entries []Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.songs = make(map[uuid.UUID]*songState, len(entries))
	for _, e := range entries {
		v.songs[e.SongID] = &songState{
			title:             e.Title,
			createdAt:         e.CreatedAt,
			base:              e.Votes,
			hasVoted:          e.HasVoted,
			committedHasVoted: e.HasVoted,
		}
	}
}

// ApplyEvent merges a remote delta from the show channel. The returned flag
// asks the caller for a full re-fetch when the event cannot be patched in
// locally (an insert carries no title, and deltas for unknown songs mean the
// view has drifted).
func (v *View) ApplyEvent(event *pubsub.SetlistEvent) (resync bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, known := v.songs[event.SongID]
	switch event.EventType {
	case pubsub.EventDeleted:
		delete(v.songs, event.SongID)
		return false
	case pubsub.EventUpdated:
		if !known {
			return true
		}
		if state.pending && v.actorID != "" && event.ActorID == v.actorID {
			// The echo of our own in-flight mutation: its count already
			// includes the local delta, so merging it into base would
			// double-count until Confirm lands. Confirm settles it instead.
			return false
		}
		state.base = event.Votes
		return false
	case pubsub.EventInserted:
		if known {
			state.base = event.Votes
			return false
		}
		v.songs[event.SongID] = &songState{base: event.Votes, createdAt: event.At}
		return true
	default:
		return true
	}
}

// BeginVote applies the optimistic +1 and flips the local vote flag before
// the server round-trip. At most one vote mutation per song may be in
// flight.
func (v *View) BeginVote(songID uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return ErrUnknownSong
	}
	if state.pending {
		return ErrVotePending
	}
	if state.hasVoted {
		return ErrAlreadyVoted
	}

	state.pending = true
	state.delta = 1
	state.hasVoted = true
	return nil
}

// BeginRetract applies the optimistic -1, mirroring BeginVote.
func (v *View) BeginRetract(songID uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return ErrUnknownSong
	}
	if state.pending {
		return ErrVotePending
	}
	if !state.hasVoted {
		return ErrNotVoted
	}

	state.pending = true
	state.delta = -1
	state.hasVoted = false
	return nil
}

// Confirm settles an in-flight mutation with the server's receipt. The
// server count becomes the new base; the optimistic delta is retired. An
// idempotent no-op receipt (changed=false) still settles to server truth.
func (v *View) Confirm(songID uuid.UUID, serverVotes int, changed bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return ErrUnknownSong
	}

	state.pending = false
	state.delta = 0
	state.base = serverVotes
	state.committedHasVoted = state.hasVoted
	return nil
}

// Fail reverts an in-flight mutation to the pre-click state. Remote deltas
// merged into base while pending are kept.
func (v *View) Fail(songID uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return ErrUnknownSong
	}

	state.pending = false
	state.delta = 0
	state.hasVoted = state.committedHasVoted
	return nil
}

// Resync overwrites one song with authoritative state; used after an
// unknown-outcome timeout where neither success nor failure may be assumed.
func (v *View) Resync(songID uuid.UUID, votes int, hasVoted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return
	}
	state.pending = false
	state.delta = 0
	state.base = votes
	state.hasVoted = hasVoted
	state.committedHasVoted = hasVoted
}

// Votes returns the displayed count for a song.
func (v *View) Votes(songID uuid.UUID) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	if !ok {
		return 0, false
	}
	return displayedVotes(state), true
}

// HasVoted returns the displayed vote flag for a song.
func (v *View) HasVoted(songID uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.songs[songID]
	return ok && state.hasVoted
}

// Ranked returns the view sorted the way the server ranks: votes descending,
// earliest suggestion first on ties, so every converged client shows the
// same order.
func (v *View) Ranked() []Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Snapshot, 0, len(v.songs))
	for id, state := range v.songs {
		out = append(out, Snapshot{
			SongID:    id,
			Title:     state.title,
			Votes:     displayedVotes(state),
			HasVoted:  state.hasVoted,
			Pending:   state.pending,
			CreatedAt: state.createdAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func displayedVotes(state *songState) int {
	votes := state.base + state.delta
	if votes < 0 {
		votes = 0
	}
	return votes
}
