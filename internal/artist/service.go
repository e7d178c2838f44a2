package artist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/theset/setlist-server/internal/spotify"
	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/models"
)

// Service is thin fetch-and-upsert glue between the Spotify catalog and the
// local store. Nothing here is on the voting hot path.
type Service struct {
	db      *database.DB
	spotify *spotify.Client
}

func NewService(db *database.DB, spotifyClient *spotify.Client) *Service {
	return &Service{db: db, spotify: spotifyClient}
}

func (s *Service) ListArtists(limit int) ([]*models.Artist, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.db.ListArtists(limit)
}

func (s *Service) GetArtist(id string) (*models.Artist, error) {
	return s.db.GetArtistByID(id)
}

func (s *Service) GetTopTracks(artistID string) ([]*models.TopTrack, error) {
	return s.db.ListTopTracks(artistID)
}

// SyncArtist refreshes the artist profile and top-track catalog from
// Spotify. The tracks feed the setlist suggestion candidates.
func (s *Service) SyncArtist(ctx context.Context, accessToken, artistID string) (*models.Artist, error) {
	profile, err := s.spotify.GetArtist(ctx, accessToken, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artist: %w", err)
	}

	artist := &models.Artist{
		ID:        profile.ID,
		Name:      profile.Name,
		Followers: profile.Followers.Total,
		Genres:    strings.Join(profile.Genres, ","),
		UpdatedAt: time.Now(),
	}
	if len(profile.Images) > 0 {
		artist.ImageURL = profile.Images[0].URL
	}
	if err := s.db.UpsertArtist(artist); err != nil {
		return nil, fmt.Errorf("failed to store artist: %w", err)
	}

	tracks, err := s.spotify.GetArtistTopTracks(ctx, accessToken, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top tracks: %w", err)
	}
	for _, track := range tracks {
		if err := s.db.UpsertTopTrack(&models.TopTrack{
			ID:         track.ID,
			ArtistID:   artistID,
			Name:       track.Name,
			Popularity: track.Popularity,
			UpdatedAt:  time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("failed to store top track: %w", err)
		}
	}

	return artist, nil
}
