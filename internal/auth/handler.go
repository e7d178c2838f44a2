package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/theset/setlist-server/internal/spotify"
	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/jwt"
	"github.com/theset/setlist-server/pkg/models"
	"github.com/theset/setlist-server/pkg/redis"
)

// Handler runs the Spotify OAuth code flow and mints app session tokens.
// The rest of the system only ever sees the resulting opaque user id.
type Handler struct {
	spotifyClient *spotify.Client
	tokenStore    *redis.TokenStore
	db            *database.DB
}

func NewHandler(spotifyClient *spotify.Client, tokenStore *redis.TokenStore, db *database.DB) *Handler {
	return &Handler{
		spotifyClient: spotifyClient,
		tokenStore:    tokenStore,
		db:            db,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)

		protected := auth.Group("", Middleware(h.tokenStore))
		protected.GET("/me", h.me)
		protected.POST("/logout", h.logout)
	}
}

func (h *Handler) login(c *gin.Context) {
	state := uuid.New().String()
	c.Redirect(http.StatusTemporaryRedirect, h.spotifyClient.GetAuthURL(state))
}

func (h *Handler) callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	ctx := c.Request.Context()
	token, err := h.spotifyClient.ExchangeToken(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to exchange authorization code"})
		return
	}

	profile, err := h.spotifyClient.GetUser(ctx, token.AccessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch user profile"})
		return
	}

	user, err := h.db.GetUserBySpotifyID(profile.ID)
	if err != nil {
		user = &models.User{
			ID:          uuid.New(),
			SpotifyID:   profile.ID,
			DisplayName: profile.DisplayName,
			Email:       profile.Email,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := h.db.CreateUser(user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}
	}

	if err := h.tokenStore.StoreTokens(ctx, user.ID.String(), &redis.TokenInfo{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store session"})
		return
	}

	session, err := jwt.GenerateToken(user.ID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.SetCookie("auth_token", session, int((7 * 24 * time.Hour).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": session, "user": user})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.db.GetUserByID(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.tokenStore.DeleteTokens(c.Request.Context(), c.GetString("user_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}
	c.SetCookie("auth_token", "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}
