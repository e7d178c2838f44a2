package show

import (
	"context"
	"fmt"
	"time"

	"github.com/theset/setlist-server/internal/ticketmaster"
	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/models"
)

// Service is fetch-and-upsert glue between the Ticketmaster discovery feed
// and the local show/venue catalog.
type Service struct {
	db           *database.DB
	ticketmaster *ticketmaster.Client
}

func NewService(db *database.DB, tmClient *ticketmaster.Client) *Service {
	return &Service{db: db, ticketmaster: tmClient}
}

func (s *Service) ListUpcomingShows(limit int) ([]*models.Show, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.db.ListUpcomingShows(limit)
}

func (s *Service) GetShow(id string) (*models.Show, error) {
	return s.db.GetShowByID(id)
}

func (s *Service) ListShowsByArtist(artistID string) ([]*models.Show, error) {
	return s.db.ListShowsByArtist(artistID)
}

// IngestShows pulls upcoming events for an artist and upserts shows and
// venues. Returns how many shows were stored.
func (s *Service) IngestShows(ctx context.Context, artistID string) (int, error) {
	artist, err := s.db.GetArtistByID(artistID)
	if err != nil {
		return 0, fmt.Errorf("unknown artist %s: %w", artistID, err)
	}

	events, err := s.ticketmaster.SearchEvents(ctx, artist.Name, 50)
	if err != nil {
		return 0, fmt.Errorf("failed to search events: %w", err)
	}

	stored := 0
	for _, ev := range events {
		venueID := ""
		if len(ev.Embedded.Venues) > 0 {
			v := ev.Embedded.Venues[0]
			venueID = v.ID
			if err := s.db.UpsertVenue(&models.Venue{
				ID:        v.ID,
				Name:      v.Name,
				City:      v.City.Name,
				State:     v.State.StateCode,
				Country:   v.Country.CountryCode,
				UpdatedAt: time.Now(),
			}); err != nil {
				return stored, fmt.Errorf("failed to store venue: %w", err)
			}
		}

		if err := s.db.UpsertShow(&models.Show{
			ID:        ev.ID,
			Name:      ev.Name,
			Date:      ev.Dates.Start.DateTime,
			Status:    ev.Dates.Status.Code,
			ArtistID:  artistID,
			VenueID:   venueID,
			TicketURL: ev.URL,
			UpdatedAt: time.Now(),
		}); err != nil {
			return stored, fmt.Errorf("failed to store show: %w", err)
		}
		stored++
	}
	return stored, nil
}
