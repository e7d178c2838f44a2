package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/theset/setlist-server/internal/artist"
	"github.com/theset/setlist-server/internal/auth"
	"github.com/theset/setlist-server/internal/favorites"
	"github.com/theset/setlist-server/internal/setlist"
	"github.com/theset/setlist-server/internal/show"
	"github.com/theset/setlist-server/internal/spotify"
	"github.com/theset/setlist-server/internal/ticketmaster"
	"github.com/theset/setlist-server/internal/ws"
	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/events"
	"github.com/theset/setlist-server/pkg/pubsub"
	"github.com/theset/setlist-server/pkg/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// A missing signing secret would make every session forgeable; refuse to
	// start rather than fall back to anything guessable.
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// MySQL
	db, err := database.NewMySQLDB(
		os.Getenv("MYSQL_HOST"),
		os.Getenv("MYSQL_PORT"),
		os.Getenv("MYSQL_USER"),
		os.Getenv("MYSQL_PASSWORD"),
		os.Getenv("MYSQL_DATABASE"),
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis (token store + live fan-out channels)
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     os.Getenv("REDIS_HOST") + ":" + os.Getenv("REDIS_PORT"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	// Kafka event log
	kafkaClient := events.NewKafkaClient(
		strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		"setlist-events",
	)
	defer kafkaClient.Close()

	// External API clients
	spotifyClient := spotify.NewClient(
		os.Getenv("SPOTIFY_CLIENT_ID"),
		os.Getenv("SPOTIFY_CLIENT_SECRET"),
		os.Getenv("SPOTIFY_REDIRECT_URI"),
	)
	tmClient := ticketmaster.NewClient(os.Getenv("TICKETMASTER_API_KEY"))

	// Services
	tokenStore := redis.NewTokenStore(redisClient)
	publisher := pubsub.NewPublisher(redisClient)
	lockPastShows := os.Getenv("LOCK_PAST_SHOWS") == "true"
	setlistService := setlist.NewService(db, publisher, kafkaClient, lockPastShows)
	artistService := artist.NewService(db, spotifyClient)
	showService := show.NewService(db, tmClient)

	// Live fan-out: Redis subscriber feeds the local WebSocket hub so every
	// server instance pushes deltas to its own connected viewers.
	hub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(redisClient, hub.BroadcastSetlistEvent)
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	go subscriber.Run(subCtx)

	// Handlers
	authHandler := auth.NewHandler(spotifyClient, tokenStore, db)
	artistHandler := artist.NewHandler(artistService)
	showHandler := show.NewHandler(showService)
	setlistHandler := setlist.NewHandler(setlistService)
	favoritesHandler := favorites.NewHandler(db)
	wsHandler := ws.NewHandler(hub)

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(os.Getenv("CORS_ORIGINS"), ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes; optional auth annotates reads with per-user vote
	// state.
	authHandler.RegisterRoutes(v1)
	public := v1.Group("/", auth.OptionalMiddleware())
	{
		artistHandler.RegisterRoutes(public)
		showHandler.RegisterRoutes(public)
		setlistHandler.RegisterRoutes(public)
		wsHandler.RegisterRoutes(public)
	}

	// Protected routes
	protected := v1.Group("/", auth.Middleware(tokenStore))
	{
		setlistHandler.RegisterProtectedRoutes(protected)
		artistHandler.RegisterProtectedRoutes(protected)
		showHandler.RegisterProtectedRoutes(protected)
		favoritesHandler.RegisterRoutes(protected)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
