package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/theset/setlist-server/pkg/models"
)

var (
	ErrSongNotFound     = errors.New("setlist song not found")
	ErrShowNotFound     = errors.New("show not found")
	ErrAlreadyVoted     = errors.New("user already voted for this song")
	ErrNotVoted         = errors.New("user has not voted for this song")
	ErrAlreadySuggested = errors.New("song already suggested for this show")
	ErrNotSuggester     = errors.New("only the suggester may delete a suggestion")
)

// VoteReceipt reports the outcome of a vote mutation. Changed is false for
// the idempotent no-op cases (already voted, not voted); Votes always carries
// the current aggregate count for the song.
type VoteReceipt struct {
	SongID  uuid.UUID `json:"song_id"`
	ShowID  string    `json:"show_id"`
	Votes   int       `json:"votes"`
	Changed bool      `json:"changed"`
}

// CastVote inserts a vote row for (userID, songID) and increments the song's
// counter in the same transaction. The unique index on the vote pair resolves
// racing casts to exactly one row; the counter update is a server-side
// votes = votes + 1, never a read-modify-write. If the song disappears
// between the insert and the increment the whole transaction rolls back, so
// no orphan vote can survive.
func (db *DB) CastVote(ctx context.Context, userID, songID uuid.UUID) (*VoteReceipt, error) {
	receipt := &VoteReceipt{SongID: songID}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var song models.SetlistSong
		if err := tx.Select("id", "show_id").First(&song, "id = ?", songID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		receipt.ShowID = song.ShowID

		vote := &models.Vote{
			ID:            uuid.New(),
			UserID:        userID,
			SetlistSongID: songID,
			ShowID:        song.ShowID,
			Type:          models.VoteTypeUp,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			return err
		}

		res := tx.Model(&models.SetlistSong{}).
			Where("id = ?", songID).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Song deleted concurrently; rolling back removes the vote row.
			return ErrSongNotFound
		}

		return tx.Model(&models.SetlistSong{}).
			Select("votes").
			Where("id = ?", songID).
			Scan(&receipt.Votes).Error
	})

	switch {
	case err == nil:
		receipt.Changed = true
		return receipt, nil
	case errors.Is(err, ErrAlreadyVoted):
		if countErr := db.currentVotes(ctx, songID, receipt); countErr != nil {
			return nil, countErr
		}
		return receipt, nil
	default:
		return nil, err
	}
}

// RetractVote deletes the (userID, songID) vote row and decrements the
// counter, floored at zero, in one transaction.
func (db *DB) RetractVote(ctx context.Context, userID, songID uuid.UUID) (*VoteReceipt, error) {
	receipt := &VoteReceipt{SongID: songID}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND setlist_song_id = ?", userID, songID).
			Delete(&models.Vote{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotVoted
		}

		// The votes > 0 guard keeps the counter floored without a
		// dialect-specific GREATEST expression.
		if err := tx.Model(&models.SetlistSong{}).
			Where("id = ? AND votes > 0", songID).
			UpdateColumn("votes", gorm.Expr("votes - ?", 1)).Error; err != nil {
			return err
		}

		var song models.SetlistSong
		if err := tx.Select("show_id", "votes").First(&song, "id = ?", songID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		receipt.ShowID = song.ShowID
		receipt.Votes = song.Votes
		return nil
	})

	switch {
	case err == nil:
		receipt.Changed = true
		return receipt, nil
	case errors.Is(err, ErrNotVoted):
		if countErr := db.currentVotes(ctx, songID, receipt); countErr != nil {
			return nil, countErr
		}
		return receipt, nil
	default:
		return nil, err
	}
}

func (db *DB) currentVotes(ctx context.Context, songID uuid.UUID, receipt *VoteReceipt) error {
	var song models.SetlistSong
	if err := db.WithContext(ctx).Select("show_id", "votes").First(&song, "id = ?", songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSongNotFound
		}
		return err
	}
	receipt.ShowID = song.ShowID
	receipt.Votes = song.Votes
	receipt.Changed = false
	return nil
}

// CreateSuggestion stores a new setlist song with an initial count of one and
// the suggester's own vote, atomically. A duplicate title for the show is
// rejected via the (show_id, title) unique index.
func (db *DB) CreateSuggestion(ctx context.Context, song *models.SetlistSong) error {
	if song.SuggestedBy == nil {
		return errors.New("suggestion requires a suggester")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		song.ID = uuid.New()
		song.Votes = 1
		song.CreatedAt = time.Now()

		if err := tx.Create(song).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySuggested
			}
			return err
		}

		vote := &models.Vote{
			ID:            uuid.New(),
			UserID:        *song.SuggestedBy,
			SetlistSongID: song.ID,
			ShowID:        song.ShowID,
			Type:          models.VoteTypeUp,
			CreatedAt:     song.CreatedAt,
		}
		return tx.Create(vote).Error
	})
}

// DeleteSuggestion removes a song and every vote referencing it. Only the
// original suggester may delete.
func (db *DB) DeleteSuggestion(ctx context.Context, songID, requestingUserID uuid.UUID) (*models.SetlistSong, error) {
	var song models.SetlistSong

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&song, "id = ?", songID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		if song.SuggestedBy == nil || *song.SuggestedBy != requestingUserID {
			return ErrNotSuggester
		}

		if err := tx.Where("setlist_song_id = ?", songID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.SetlistSong{}, "id = ?", songID).Error
	})
	if err != nil {
		return nil, err
	}
	return &song, nil
}

// ListRankedSongs returns a show's setlist ordered by votes descending with
// creation time as the deterministic tie-break.
func (db *DB) ListRankedSongs(ctx context.Context, showID string) ([]*models.SetlistSong, error) {
	var songs []*models.SetlistSong
	if err := db.WithContext(ctx).
		Where("show_id = ?", showID).
		Order("votes DESC, created_at ASC").
		Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

// ListUserVotes returns the set of song ids the user has voted for within a
// show, for annotating ranked reads with per-user vote state.
func (db *DB) ListUserVotes(ctx context.Context, userID uuid.UUID, showID string) (map[uuid.UUID]bool, error) {
	var votes []*models.Vote
	if err := db.WithContext(ctx).
		Where("user_id = ? AND show_id = ?", userID, showID).
		Find(&votes).Error; err != nil {
		return nil, err
	}

	voted := make(map[uuid.UUID]bool, len(votes))
	for _, v := range votes {
		voted[v.SetlistSongID] = true
	}
	return voted, nil
}

// CountVotes recounts the live vote rows for a song. Used by tests to check
// the counter never drifts from the ledger.
func (db *DB) CountVotes(ctx context.Context, songID uuid.UUID) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&models.Vote{}).
		Where("setlist_song_id = ?", songID).
		Count(&n).Error
	return n, err
}

func (db *DB) GetSetlistSong(ctx context.Context, songID uuid.UUID) (*models.SetlistSong, error) {
	var song models.SetlistSong
	if err := db.WithContext(ctx).First(&song, "id = ?", songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, err
	}
	return &song, nil
}
