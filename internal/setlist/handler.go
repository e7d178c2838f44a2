package setlist

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/theset/setlist-server/pkg/database"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the read-only setlist routes; identity is optional
// there and only enriches the response with per-user vote state.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/shows/:id/setlist", h.listRankedSongs)
	r.GET("/shows/:id/setlist/candidates", h.listCandidates)
}

// RegisterProtectedRoutes mounts the mutating routes, which require an
// authenticated user id in the Gin context.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/shows/:id/setlist/songs", h.suggestSong)
	r.POST("/songs/:id/vote", h.castVote)
	r.DELETE("/songs/:id/vote", h.retractVote)
	r.DELETE("/songs/:id", h.deleteSuggestion)
}

func (h *Handler) listRankedSongs(c *gin.Context) {
	showID := c.Param("id")

	var userID *uuid.UUID
	if raw := c.GetString("user_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			userID = &id
		}
	}

	songs, err := h.service.ListRankedSongs(c.Request.Context(), showID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, songs)
}

func (h *Handler) listCandidates(c *gin.Context) {
	candidates, err := h.service.SuggestionCandidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

type SuggestSongRequest struct {
	Title         string `json:"title" binding:"required"`
	SourceTrackID string `json:"source_track_id"`
}

func (h *Handler) suggestSong(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SuggestSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := h.service.SuggestSong(c.Request.Context(), c.Param("id"), userID, req.Title, req.SourceTrackID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, song)
}

func (h *Handler) castVote(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	songID, ok := parseSongID(c)
	if !ok {
		return
	}

	receipt, err := h.service.CastVote(c.Request.Context(), userID, songID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) retractVote(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	songID, ok := parseSongID(c)
	if !ok {
		return
	}

	receipt, err := h.service.RetractVote(c.Request.Context(), userID, songID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) deleteSuggestion(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	songID, ok := parseSongID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSuggestion(c.Request.Context(), songID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("user_id")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return uuid.Nil, false
	}
	return id, true
}

func parseSongID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the setlist error taxonomy onto HTTP statuses. Integrity
// signals that are semantically no-ops never reach here; anything else is a
// non-fatal, user-visible notification.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrSongNotFound), errors.Is(err, database.ErrShowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrNotSuggester):
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only delete songs you suggested"})
	case errors.Is(err, database.ErrAlreadySuggested):
		c.JSON(http.StatusConflict, gin.H{"error": "that song is already on the setlist"})
	case errors.Is(err, ErrShowLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "voting is closed for past shows"})
	case errors.Is(err, ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "please try again"})
	}
}
