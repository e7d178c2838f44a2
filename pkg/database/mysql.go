package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theset/setlist-server/pkg/models"
)

// DB wraps a gorm handle. Production code opens it against MySQL via
// NewMySQLDB; tests construct one from any dialector through NewDB.
type DB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Surfaces unique-key violations as gorm.ErrDuplicatedKey, which the
		// vote operations rely on for idempotence signals.
		TranslateError: true,
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewDB(db)
}

// NewDB wraps an already-open gorm handle and runs migrations.
func NewDB(db *gorm.DB) (*DB, error) {
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(
		&models.User{},
		&models.Artist{},
		&models.Venue{},
		&models.Show{},
		&models.TopTrack{},
		&models.SetlistSong{},
		&models.Vote{},
		&models.Favorite{},
	)
}

// User operations
func (db *DB) CreateUser(user *models.User) error {
	return db.Create(user).Error
}

func (db *DB) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *DB) GetUserBySpotifyID(spotifyID string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "spotify_id = ?", spotifyID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Artist operations
func (db *DB) UpsertArtist(artist *models.Artist) error {
	return db.Save(artist).Error
}

func (db *DB) GetArtistByID(id string) (*models.Artist, error) {
	var artist models.Artist
	if err := db.First(&artist, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &artist, nil
}

func (db *DB) ListArtists(limit int) ([]*models.Artist, error) {
	var artists []*models.Artist
	if err := db.Order("followers DESC").Limit(limit).Find(&artists).Error; err != nil {
		return nil, err
	}
	return artists, nil
}

// Show and venue operations
func (db *DB) UpsertShow(show *models.Show) error {
	return db.Save(show).Error
}

func (db *DB) UpsertVenue(venue *models.Venue) error {
	return db.Save(venue).Error
}

func (db *DB) GetShowByID(id string) (*models.Show, error) {
	var show models.Show
	if err := db.First(&show, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &show, nil
}

func (db *DB) ListUpcomingShows(limit int) ([]*models.Show, error) {
	var shows []*models.Show
	if err := db.Where("date >= ?", time.Now()).
		Order("date ASC").
		Limit(limit).
		Find(&shows).Error; err != nil {
		return nil, err
	}
	return shows, nil
}

func (db *DB) ListShowsByArtist(artistID string) ([]*models.Show, error) {
	var shows []*models.Show
	if err := db.Where("artist_id = ?", artistID).
		Order("date ASC").
		Find(&shows).Error; err != nil {
		return nil, err
	}
	return shows, nil
}

// Top track operations
func (db *DB) UpsertTopTrack(track *models.TopTrack) error {
	return db.Save(track).Error
}

func (db *DB) ListTopTracks(artistID string) ([]*models.TopTrack, error) {
	var tracks []*models.TopTrack
	if err := db.Where("artist_id = ?", artistID).
		Order("popularity DESC").
		Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

// Favorite operations
func (db *DB) AddFavorite(fav *models.Favorite) error {
	return db.Create(fav).Error
}

func (db *DB) RemoveFavorite(userID, itemID, itemType string) error {
	return db.Where("user_id = ? AND item_id = ? AND item_type = ?", userID, itemID, itemType).
		Delete(&models.Favorite{}).Error
}

func (db *DB) ListFavorites(userID, itemType string) ([]*models.Favorite, error) {
	var favs []*models.Favorite
	if err := db.Where("user_id = ? AND item_type = ?", userID, itemType).
		Order("created_at DESC").
		Find(&favs).Error; err != nil {
		return nil, err
	}
	return favs, nil
}
