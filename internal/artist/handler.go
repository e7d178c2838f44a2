package artist

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	artists := r.Group("/artists")
	{
		artists.GET("", h.listArtists)
		artists.GET("/:id", h.getArtist)
		artists.GET("/:id/top-tracks", h.getTopTracks)
	}
}

func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/artists/:id/sync", h.syncArtist)
}

func (h *Handler) listArtists(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	artists, err := h.service.ListArtists(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, artists)
}

func (h *Handler) getArtist(c *gin.Context) {
	artist, err := h.service.GetArtist(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artist not found"})
		return
	}
	c.JSON(http.StatusOK, artist)
}

func (h *Handler) getTopTracks(c *gin.Context) {
	tracks, err := h.service.GetTopTracks(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tracks)
}

func (h *Handler) syncArtist(c *gin.Context) {
	artist, err := h.service.SyncArtist(c.Request.Context(), c.GetString("access_token"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, artist)
}
