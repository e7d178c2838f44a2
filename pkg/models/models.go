package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	SpotifyID   string    `json:"spotify_id" gorm:"unique"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Artist struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	ImageURL  string    `json:"image_url"`
	Genres    string    `json:"genres"`
	Followers int       `json:"followers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Venue struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Show struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	ArtistID  string    `json:"artist_id" gorm:"index"`
	VenueID   string    `json:"venue_id"`
	TicketURL string    `json:"ticket_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TopTrack is a catalog entry used to seed setlist suggestion candidates.
type TopTrack struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ArtistID   string    `json:"artist_id" gorm:"index"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	Popularity int       `json:"popularity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SetlistSong is a candidate song on a show's setlist. Votes is a
// denormalized counter; it is mutated only through the vote operations in
// pkg/database so it never drifts from the vote rows.
type SetlistSong struct {
	ID            uuid.UUID  `json:"id" gorm:"primaryKey"`
	ShowID        string     `json:"show_id" gorm:"index;uniqueIndex:idx_song_show_title"`
	ArtistID      string     `json:"artist_id"`
	ArtistName    string     `json:"artist_name"`
	Title         string     `json:"title" gorm:"size:255;not null;uniqueIndex:idx_song_show_title"`
	SourceTrackID string     `json:"source_track_id,omitempty"`
	Votes         int        `json:"votes" gorm:"not null;default:0"`
	Position      int        `json:"position"`
	SuggestedBy   *uuid.UUID `json:"suggested_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Vote records a single user's vote for a single setlist song. The unique
// index on (user_id, setlist_song_id) is the authoritative guard against
// duplicate votes; callers must never rely on a read-then-write check.
type Vote struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey"`
	UserID        uuid.UUID `json:"user_id" gorm:"uniqueIndex:idx_vote_user_song"`
	SetlistSongID uuid.UUID `json:"setlist_song_id" gorm:"uniqueIndex:idx_vote_user_song;index"`
	ShowID        string    `json:"show_id" gorm:"index"`
	Type          string    `json:"type" gorm:"size:8;default:up"`
	CreatedAt     time.Time `json:"created_at"`
}

const VoteTypeUp = "up"

type Favorite struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"uniqueIndex:idx_fav_user_item"`
	ItemID    string    `json:"item_id" gorm:"uniqueIndex:idx_fav_user_item"`
	ItemType  string    `json:"item_type" gorm:"size:16;uniqueIndex:idx_fav_user_item"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	FavoriteArtist = "artist"
	FavoriteShow   = "show"
)
