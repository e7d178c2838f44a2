package show

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
	shows := r.Group("/shows")
	{
		shows.GET("", h.listShows)
		shows.GET("/:id", h.getShow)
	}
}

func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/artists/:id/shows/sync", h.ingestShows)
}

func (h *Handler) listShows(c *gin.Context) {
	if artistID := c.Query("artist_id"); artistID != "" {
		shows, err := h.service.ListShowsByArtist(artistID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, shows)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	shows, err := h.service.ListUpcomingShows(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, shows)
}

func (h *Handler) getShow(c *gin.Context) {
	show, err := h.service.GetShow(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "show not found"})
		return
	}
	c.JSON(http.StatusOK, show)
}

func (h *Handler) ingestShows(c *gin.Context) {
	stored, err := h.service.IngestShows(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": stored})
}
