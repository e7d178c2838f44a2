package favorites

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/models"
)

// Handler exposes the user's favorite artists and shows. Plain CRUD; toggling
// the same favorite twice is treated as a no-op via the unique index.
type Handler struct {
	db *database.DB
}

func NewHandler(db *database.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	favs := r.Group("/favorites")
	{
		favs.GET("", h.list)
		favs.POST("", h.add)
		favs.DELETE("/:itemType/:itemId", h.remove)
	}
}

type addRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	ItemType string `json:"item_type" binding:"required,oneof=artist show"`
}

func (h *Handler) add(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return
	}

	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fav := &models.Favorite{
		ID:        uuid.New(),
		UserID:    userID,
		ItemID:    req.ItemID,
		ItemType:  req.ItemType,
		CreatedAt: time.Now(),
	}
	if err := h.db.AddFavorite(fav); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusOK, gin.H{"changed": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, fav)
}

func (h *Handler) list(c *gin.Context) {
	itemType := c.DefaultQuery("type", models.FavoriteArtist)
	favs, err := h.db.ListFavorites(c.GetString("user_id"), itemType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, favs)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.db.RemoveFavorite(c.GetString("user_id"), c.Param("itemId"), c.Param("itemType")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
