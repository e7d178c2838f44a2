package setlist

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theset/setlist-server/pkg/database"
)

// newTestRouter builds a router around a fresh service, with a stub identity
// middleware standing in for the auth package.
func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _, _ := newTestService(t)
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("user_id", uid)
		}
	})

	v1 := router.Group("/api/v1")
	handler.RegisterRoutes(v1)
	handler.RegisterProtectedRoutes(v1)
	return router, svc
}

func doJSON(router *gin.Engine, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSuggestAndVoteOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	userA := uuid.New().String()
	userB := uuid.New().String()

	// Suggest.
	w := doJSON(router, "POST", "/api/v1/shows/show-1/setlist/songs", userA,
		SuggestSongRequest{Title: "Encore Track"})
	require.Equal(t, http.StatusCreated, w.Code)

	var song struct {
		ID    uuid.UUID `json:"id"`
		Votes int       `json:"votes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &song))
	assert.Equal(t, 1, song.Votes)

	// Second user votes.
	w = doJSON(router, "POST", "/api/v1/songs/"+song.ID.String()+"/vote", userB, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var receipt database.VoteReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, 2, receipt.Votes)
	assert.True(t, receipt.Changed)

	// Repeat vote is reported as unchanged, not an error.
	w = doJSON(router, "POST", "/api/v1/songs/"+song.ID.String()+"/vote", userB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.False(t, receipt.Changed)
	assert.Equal(t, 2, receipt.Votes)

	// Retract.
	w = doJSON(router, "DELETE", "/api/v1/songs/"+song.ID.String()+"/vote", userB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, 1, receipt.Votes)

	// Ranked read carries the suggester's vote state.
	w = doJSON(router, "GET", "/api/v1/shows/show-1/setlist", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ranked []struct {
		ID       uuid.UUID `json:"id"`
		Votes    int       `json:"votes"`
		HasVoted bool      `json:"has_voted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ranked))
	require.Len(t, ranked, 1)
	assert.True(t, ranked[0].HasVoted)
}

func TestVoteRequiresIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, "POST", "/api/v1/songs/"+uuid.New().String()+"/vote", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, "POST", "/api/v1/shows/show-1/setlist/songs", "",
		SuggestSongRequest{Title: "Nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVoteUnknownSongIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, "POST", "/api/v1/songs/"+uuid.New().String()+"/vote", uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, "POST", "/api/v1/songs/not-a-uuid/vote", uuid.New().String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteByNonSuggesterIs403(t *testing.T) {
	router, svc := newTestRouter(t)
	suggester := uuid.New()

	song, err := svc.SuggestSong(testCtx(), "show-1", suggester, "Mine", "")
	require.NoError(t, err)

	w := doJSON(router, "DELETE", "/api/v1/songs/"+song.ID.String(), uuid.New().String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No state change: the song is still listed.
	ranked, err := svc.ListRankedSongs(testCtx(), "show-1", nil)
	require.NoError(t, err)
	assert.Len(t, ranked, 1)

	w = doJSON(router, "DELETE", "/api/v1/songs/"+song.ID.String(), suggester.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDuplicateSuggestionIs409(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, "POST", "/api/v1/shows/show-1/setlist/songs", uuid.New().String(),
		SuggestSongRequest{Title: "Twice"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, "POST", "/api/v1/shows/show-1/setlist/songs", uuid.New().String(),
		SuggestSongRequest{Title: "Twice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func testCtx() context.Context { return context.Background() }
