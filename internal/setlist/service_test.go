package setlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theset/setlist-server/pkg/database"
	"github.com/theset/setlist-server/pkg/models"
	"github.com/theset/setlist-server/pkg/pubsub"
)

// openTestDB spins up an isolated in-memory database. A single pooled
// connection keeps sqlite's writer model out of the concurrency tests.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db, err := database.NewDB(gdb)
	require.NoError(t, err)
	return db
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []*pubsub.SetlistEvent
}

func (c *captureBroadcaster) PublishSetlistEvent(_ context.Context, event *pubsub.SetlistEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureBroadcaster) all() []*pubsub.SetlistEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pubsub.SetlistEvent(nil), c.events...)
}

func seedShow(t *testing.T, db *database.DB, showID string, date time.Time) {
	t.Helper()
	require.NoError(t, db.UpsertArtist(&models.Artist{ID: "artist-1", Name: "The Strokes"}))
	require.NoError(t, db.UpsertShow(&models.Show{
		ID: showID, Name: "Test Show", Date: date, ArtistID: "artist-1",
	}))
}

func newTestService(t *testing.T) (*Service, *database.DB, *captureBroadcaster) {
	db := openTestDB(t)
	bc := &captureBroadcaster{}
	seedShow(t, db, "show-1", time.Now().Add(24*time.Hour))
	return NewService(db, bc, nil, false), db, bc
}

func TestSuggestSongCreatesInitialVote(t *testing.T) {
	svc, db, bc := newTestService(t)
	ctx := context.Background()
	userA := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", userA, "Encore Track", "")
	require.NoError(t, err)

	assert.Equal(t, 1, song.Votes)
	assert.Equal(t, "The Strokes", song.ArtistName)
	require.NotNil(t, song.SuggestedBy)
	assert.Equal(t, userA, *song.SuggestedBy)

	// The suggester's own vote is on the ledger.
	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	events := bc.all()
	require.Len(t, events, 1)
	assert.Equal(t, pubsub.EventInserted, events[0].EventType)
	assert.Equal(t, 1, events[0].Votes)
}

func TestSuggestSongValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "   ", "")
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = svc.SuggestSong(ctx, "missing-show", uuid.New(), "Song", "")
	assert.ErrorIs(t, err, database.ErrShowNotFound)

	_, err = svc.SuggestSong(ctx, "show-1", uuid.New(), "Reptilia", "")
	require.NoError(t, err)
	_, err = svc.SuggestSong(ctx, "show-1", uuid.New(), "Reptilia", "")
	assert.ErrorIs(t, err, database.ErrAlreadySuggested)
}

func TestVoteLifecycle(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	suggester := uuid.New()
	userA := uuid.New()
	userB := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", suggester, "Last Nite", "")
	require.NoError(t, err)

	// A votes: 1 -> 2.
	receipt, err := svc.CastVote(ctx, userA, song.ID)
	require.NoError(t, err)
	assert.True(t, receipt.Changed)
	assert.Equal(t, 2, receipt.Votes)

	ranked, err := svc.ListRankedSongs(ctx, "show-1", &userA)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.True(t, ranked[0].HasVoted)

	// B votes: 2 -> 3.
	receipt, err = svc.CastVote(ctx, userB, song.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Votes)

	// A retracts: 3 -> 2, hasVoted flips off.
	receipt, err = svc.RetractVote(ctx, userA, song.ID)
	require.NoError(t, err)
	assert.True(t, receipt.Changed)
	assert.Equal(t, 2, receipt.Votes)

	ranked, err = svc.ListRankedSongs(ctx, "show-1", &userA)
	require.NoError(t, err)
	assert.False(t, ranked[0].HasVoted)

	// Counter always matches the ledger.
	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.EqualValues(t, receipt.Votes, rows)
}

func TestCastVoteIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userA := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Someday", "")
	require.NoError(t, err)

	first, err := svc.CastVote(ctx, userA, song.ID)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := svc.CastVote(ctx, userA, song.ID)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Votes, second.Votes)

	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.EqualValues(t, second.Votes, rows)
}

func TestRetractVoteNoOpWhenNotVoted(t *testing.T) {
	svc, _, bc := newTestService(t)
	ctx := context.Background()

	song, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Hard To Explain", "")
	require.NoError(t, err)
	published := len(bc.all())

	receipt, err := svc.RetractVote(ctx, uuid.New(), song.ID)
	require.NoError(t, err)
	assert.False(t, receipt.Changed)
	assert.Equal(t, 1, receipt.Votes)

	// No-ops emit nothing.
	assert.Len(t, bc.all(), published)
}

func TestVoteRoundTripRestoresCount(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	userA := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Juicebox", "")
	require.NoError(t, err)
	before := song.Votes

	_, err = svc.CastVote(ctx, userA, song.ID)
	require.NoError(t, err)
	receipt, err := svc.RetractVote(ctx, userA, song.ID)
	require.NoError(t, err)

	assert.Equal(t, before, receipt.Votes)
	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.EqualValues(t, before, rows)
}

// TestConcurrentVotes verifies that N simultaneous casts from distinct users
// land as exactly +N with no lost counter updates.
func TestConcurrentVotes(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	song, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "You Only Live Once", "")
	require.NoError(t, err)
	before := song.Votes

	const voters = 8
	var wg sync.WaitGroup
	errs := make(chan error, voters)

	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CastVote(ctx, uuid.New(), song.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	updated, err := db.GetSetlistSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, before+voters, updated.Votes)

	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.EqualValues(t, updated.Votes, rows)
}

type hangupBroadcaster struct {
	cancel       context.CancelFunc
	sawCancelled bool
}

func (b *hangupBroadcaster) PublishSetlistEvent(ctx context.Context, _ *pubsub.SetlistEvent) error {
	// The voter disconnects right after the commit.
	b.cancel()
	select {
	case <-ctx.Done():
		b.sawCancelled = true
	default:
	}
	return nil
}

// A requester hanging up after the commit must not suppress the event to
// every other viewer.
func TestEmitSurvivesRequestCancellation(t *testing.T) {
	db := openTestDB(t)
	seedShow(t, db, "show-1", time.Now().Add(24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bc := &hangupBroadcaster{cancel: cancel}
	svc := NewService(db, bc, nil, false)

	_, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Call It Fate, Call It Karma", "")
	require.NoError(t, err)
	assert.False(t, bc.sawCancelled, "publish context outlives the request")
}

func TestDeleteSuggestionCascades(t *testing.T) {
	svc, db, bc := newTestService(t)
	ctx := context.Background()
	suggester := uuid.New()
	other := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", suggester, "Ize Of The World", "")
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, other, song.ID)
	require.NoError(t, err)

	// Non-suggester may not delete.
	err = svc.DeleteSuggestion(ctx, song.ID, other)
	assert.ErrorIs(t, err, database.ErrNotSuggester)

	require.NoError(t, svc.DeleteSuggestion(ctx, song.ID, suggester))

	ranked, err := svc.ListRankedSongs(ctx, "show-1", nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	// Every vote on the song is gone, including other users'.
	rows, err := db.CountVotes(ctx, song.ID)
	require.NoError(t, err)
	assert.Zero(t, rows)

	events := bc.all()
	assert.Equal(t, pubsub.EventDeleted, events[len(events)-1].EventType)
}

func TestVoteOnDeletedSong(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	suggester := uuid.New()

	song, err := svc.SuggestSong(ctx, "show-1", suggester, "Razorblade", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSuggestion(ctx, song.ID, suggester))

	_, err = svc.CastVote(ctx, uuid.New(), song.ID)
	assert.ErrorIs(t, err, database.ErrSongNotFound)
}

func TestListRankedSongsOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Alpha", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Beta", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	third, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "Gamma", "")
	require.NoError(t, err)

	// Push Gamma to the top; Alpha and Beta stay tied on 1.
	_, err = svc.CastVote(ctx, uuid.New(), third.ID)
	require.NoError(t, err)

	ranked, err := svc.ListRankedSongs(ctx, "show-1", nil)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, third.ID, ranked[0].ID)
	// Ties break by earliest creation, so the order is deterministic.
	assert.Equal(t, first.ID, ranked[1].ID)
	assert.Equal(t, second.ID, ranked[2].ID)
}

func TestPastShowLock(t *testing.T) {
	db := openTestDB(t)
	bc := &captureBroadcaster{}
	seedShow(t, db, "past-show", time.Now().Add(-24*time.Hour))
	ctx := context.Background()

	unlocked := NewService(db, bc, nil, false)
	song, err := unlocked.SuggestSong(ctx, "past-show", uuid.New(), "Throwback", "")
	require.NoError(t, err)

	locked := NewService(db, bc, nil, true)
	_, err = locked.SuggestSong(ctx, "past-show", uuid.New(), "Too Late", "")
	assert.ErrorIs(t, err, ErrShowLocked)

	_, err = locked.CastVote(ctx, uuid.New(), song.ID)
	assert.ErrorIs(t, err, ErrShowLocked)
}

func TestSuggestionCandidatesFilterTaken(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertTopTrack(&models.TopTrack{ID: "t1", ArtistID: "artist-1", Name: "Reptilia", Popularity: 90}))
	require.NoError(t, db.UpsertTopTrack(&models.TopTrack{ID: "t2", ArtistID: "artist-1", Name: "Last Nite", Popularity: 80}))

	_, err := svc.SuggestSong(ctx, "show-1", uuid.New(), "reptilia", "t1")
	require.NoError(t, err)

	candidates, err := svc.SuggestionCandidates(ctx, "show-1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Last Nite", candidates[0].Name)
}
