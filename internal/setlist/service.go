package setlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/models"
	"github.com/theset/setlist-server/pkg/pubsub"
)

var (
	ErrShowLocked    = errors.New("show has already taken place")
	ErrTitleRequired = errors.New("song title is required")
)

// Broadcaster fans a setlist event out to every live viewer of the show.
type Broadcaster interface {
	PublishSetlistEvent(ctx context.Context, event *pubsub.SetlistEvent) error
}

// EventLog appends setlist events to the durable event pipeline for
// downstream consumers (analytics, ingestion). Fire-and-forget with respect
// to the request path.
type EventLog interface {
	LogSetlistEvent(ctx context.Context, event *pubsub.SetlistEvent) error
}

// Service owns the vote ledger and aggregate counter semantics: one vote per
// user per song, counter always equal to the live vote rows, and a change
// event on the show's channel after every committed mutation.
type Service struct {
	db            *database.DB
	broadcaster   Broadcaster
	events        EventLog
	lockPastShows bool
}

func NewService(db *database.DB, broadcaster Broadcaster, events EventLog, lockPastShows bool) *Service {
	return &Service{
		db:            db,
		broadcaster:   broadcaster,
		events:        events,
		lockPastShows: lockPastShows,
	}
}

// CastVote records userID's vote for songID. Voting twice is an idempotent
// no-op: the receipt reports Changed=false and the count is untouched.
func (s *Service) CastVote(ctx context.Context, userID, songID uuid.UUID) (*database.VoteReceipt, error) {
	if s.lockPastShows {
		song, err := s.db.GetSetlistSong(ctx, songID)
		if err != nil {
			return nil, err
		}
		if err := s.checkShowOpen(ctx, song.ShowID); err != nil {
			return nil, err
		}
	}

	receipt, err := s.db.CastVote(ctx, userID, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote: %w", err)
	}

	if receipt.Changed {
		s.emit(ctx, &pubsub.SetlistEvent{
			ShowID:    receipt.ShowID,
			SongID:    receipt.SongID,
			Votes:     receipt.Votes,
			EventType: pubsub.EventUpdated,
			ActorID:   userID.String(),
			At:        time.Now(),
		})
	}
	return receipt, nil
}

// RetractVote removes userID's vote for songID. Retracting a vote that does
// not exist is an idempotent no-op.
func (s *Service) RetractVote(ctx context.Context, userID, songID uuid.UUID) (*database.VoteReceipt, error) {
	receipt, err := s.db.RetractVote(ctx, userID, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to retract vote: %w", err)
	}

	if receipt.Changed {
		s.emit(ctx, &pubsub.SetlistEvent{
			ShowID:    receipt.ShowID,
			SongID:    receipt.SongID,
			Votes:     receipt.Votes,
			EventType: pubsub.EventUpdated,
			ActorID:   userID.String(),
			At:        time.Now(),
		})
	}
	return receipt, nil
}

// SuggestSong adds a new candidate song to the show's setlist with the
// suggester's own vote already counted.
func (s *Service) SuggestSong(ctx context.Context, showID string, userID uuid.UUID, title, sourceTrackID string) (*models.SetlistSong, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	show, err := s.db.GetShowByID(showID)
	if err != nil {
		return nil, database.ErrShowNotFound
	}
	if s.lockPastShows && s.showConcluded(show) {
		return nil, ErrShowLocked
	}

	song := &models.SetlistSong{
		ShowID:        showID,
		ArtistID:      show.ArtistID,
		Title:         title,
		SourceTrackID: sourceTrackID,
		SuggestedBy:   &userID,
	}
	if artist, err := s.db.GetArtistByID(show.ArtistID); err == nil {
		song.ArtistName = artist.Name
	}

	if err := s.db.CreateSuggestion(ctx, song); err != nil {
		return nil, err
	}

	s.emit(ctx, &pubsub.SetlistEvent{
		ShowID:    showID,
		SongID:    song.ID,
		Votes:     song.Votes,
		EventType: pubsub.EventInserted,
		ActorID:   userID.String(),
		At:        time.Now(),
	})
	return song, nil
}

// DeleteSuggestion removes a suggestion and all votes on it. Only the
// original suggester may delete.
func (s *Service) DeleteSuggestion(ctx context.Context, songID, requestingUserID uuid.UUID) error {
	song, err := s.db.DeleteSuggestion(ctx, songID, requestingUserID)
	if err != nil {
		return err
	}

	s.emit(ctx, &pubsub.SetlistEvent{
		ShowID:    song.ShowID,
		SongID:    song.ID,
		Votes:     0,
		EventType: pubsub.EventDeleted,
		ActorID:   requestingUserID.String(),
		At:        time.Now(),
	})
	return nil
}

// RankedSong is a setlist entry annotated with the reading user's own vote
// state.
type RankedSong struct {
	*models.SetlistSong
	HasVoted bool `json:"has_voted"`
}

// ListRankedSongs returns the show's setlist ordered by votes descending,
// earliest suggestion first on ties. When userID is non-nil each entry
// carries that user's HasVoted flag.
func (s *Service) ListRankedSongs(ctx context.Context, showID string, userID *uuid.UUID) ([]*RankedSong, error) {
	songs, err := s.db.ListRankedSongs(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("failed to list setlist: %w", err)
	}

	var voted map[uuid.UUID]bool
	if userID != nil {
		voted, err = s.db.ListUserVotes(ctx, *userID, showID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user votes: %w", err)
		}
	}

	ranked := make([]*RankedSong, 0, len(songs))
	for _, song := range songs {
		ranked = append(ranked, &RankedSong{
			SetlistSong: song,
			HasVoted:    voted[song.ID],
		})
	}
	return ranked, nil
}

// SuggestionCandidates returns the artist's catalog tracks not yet suggested
// for the show, for seeding the suggestion picker.
func (s *Service) SuggestionCandidates(ctx context.Context, showID string) ([]*models.TopTrack, error) {
	show, err := s.db.GetShowByID(showID)
	if err != nil {
		return nil, database.ErrShowNotFound
	}

	tracks, err := s.db.ListTopTracks(show.ArtistID)
	if err != nil {
		return nil, err
	}
	songs, err := s.db.ListRankedSongs(ctx, showID)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool, len(songs))
	for _, song := range songs {
		taken[strings.ToLower(song.Title)] = true
	}

	candidates := make([]*models.TopTrack, 0, len(tracks))
	for _, track := range tracks {
		if !taken[strings.ToLower(track.Name)] {
			candidates = append(candidates, track)
		}
	}
	return candidates, nil
}

func (s *Service) checkShowOpen(ctx context.Context, showID string) error {
	show, err := s.db.GetShowByID(showID)
	if err != nil {
		return database.ErrShowNotFound
	}
	if s.showConcluded(show) {
		return ErrShowLocked
	}
	return nil
}

func (s *Service) showConcluded(show *models.Show) bool {
	return !show.Date.IsZero() && show.Date.Before(time.Now())
}

// emit publishes the event to the live channel and appends it to the event
// log. Neither failure is allowed to fail the committed mutation; a missed
// delta is recovered by the client's next full re-fetch. The mutation is
// already committed, so the requester hanging up must not cancel delivery to
// everyone else.
func (s *Service) emit(ctx context.Context, event *pubsub.SetlistEvent) {
	ctx = context.WithoutCancel(ctx)
	if s.broadcaster != nil {
		if err := s.broadcaster.PublishSetlistEvent(ctx, event); err != nil {
			log.Printf("Warning: failed to publish setlist event: %v", err)
		}
	}
	if s.events != nil {
		if err := s.events.LogSetlistEvent(ctx, event); err != nil {
			log.Printf("Warning: failed to log setlist event: %v", err)
		}
	}
}
