package rest_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/agriapp/server/api/rest"
	"github.com/agriapp/server/cache"
	"github.com/agriapp/server/model"
	"github.com/agriapp/server/progress"
	"github.com/agriapp/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newRankingRouter(t *testing.T) (*gin.Engine, *gorm.DB, *progress.Ranking) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	ranking := progress.NewRanking(c, 100)
	h := rest.NewRankingHandler(db, ranking, progress.NewGormProgressStore(db), nopLogger())
	r := gin.New()
	r.GET("/api/ranking/likes", h.TopLiked)
	return r, db, ranking
}

// seedLiked creates an account, its progress on plan-1 and sets its likes.
func seedLiked(t *testing.T, db *gorm.DB, username, progressID string, likes int64) {
	t.Helper()
	acc := &model.Account{Username: username, PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	rec := model.NewPlantProgress(acc.UserKey(), "plan-1")
	rec.ID = progressID
	rec.Likes = likes
	require.NoError(t, db.Create(&rec).Error)
}

type rankingBody struct {
	Ranking []rest.RankEntry `json:"ranking"`
}

func TestTopLiked_FallsBackToDatabase(t *testing.T) {
	r, db, ranking := newRankingRouter(t)
	testutil.SeedPlan(t, db, "plan-1", []string{"m1"})
	seedLiked(t, db, "alice", "p-a", 3)
	seedLiked(t, db, "bob", "p-b", 9)
	seedLiked(t, db, "carol", "p-c", 0)

	w := doJSON(r, http.MethodGet, "/api/ranking/likes?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body rankingBody
	decode(t, w, &body)
	require.Len(t, body.Ranking, 2)
	assert.Equal(t, "p-b", body.Ranking[0].ProgressID)
	assert.Equal(t, "bob", body.Ranking[0].Username)
	assert.Equal(t, "plan plan-1", body.Ranking[0].PlanTitle)
	assert.Equal(t, 2, body.Ranking[1].Rank)

	// The fallback warms the cache.
	top, err := ranking.Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestTopLiked_FromCache(t *testing.T) {
	r, db, ranking := newRankingRouter(t)
	testutil.SeedPlan(t, db, "plan-1", []string{"m1"})
	seedLiked(t, db, "alice", "p-a", 1)
	seedLiked(t, db, "bob", "p-b", 2)

	ctx := context.Background()
	require.NoError(t, ranking.Record(ctx, "p-a", 50))
	require.NoError(t, ranking.Record(ctx, "p-b", 40))

	w := doJSON(r, http.MethodGet, "/api/ranking/likes?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body rankingBody
	decode(t, w, &body)
	require.Len(t, body.Ranking, 1)
	assert.Equal(t, "p-a", body.Ranking[0].ProgressID)
	assert.Equal(t, int64(50), body.Ranking[0].Likes, "cached score is reported")
	assert.Equal(t, "alice", body.Ranking[0].Username)
}

func TestTopLiked_Empty(t *testing.T) {
	r, _, _ := newRankingRouter(t)
	w := doJSON(r, http.MethodGet, "/api/ranking/likes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ranking":[]}`, w.Body.String())
}

// brokenZSetCache fails every sorted-set call.
type brokenZSetCache struct {
	cache.Cache
}

var errZSetDown = errors.New("zset unavailable")

func (brokenZSetCache) ZAdd(context.Context, string, float64, string) error { return errZSetDown }

func (brokenZSetCache) ZRevRangeWithScores(context.Context, string, int64, int64) ([]string, []float64, error) {
	return nil, nil, errZSetDown
}

func TestTopLiked_CacheWriteFailureIsLogged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	core, logs := observer.New(zapcore.WarnLevel)
	h := rest.NewRankingHandler(db, progress.NewRanking(brokenZSetCache{c}, 100),
		progress.NewGormProgressStore(db), zap.New(core))
	r := gin.New()
	r.GET("/api/ranking/likes", h.TopLiked)

	testutil.SeedPlan(t, db, "plan-1", []string{"m1"})
	seedLiked(t, db, "alice", "p-a", 3)

	w := doJSON(r, http.MethodGet, "/api/ranking/likes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body rankingBody
	decode(t, w, &body)
	require.Len(t, body.Ranking, 1)
	assert.Equal(t, "p-a", body.Ranking[0].ProgressID)

	warm := logs.FilterMessage("ranking warm failed").All()
	require.Len(t, warm, 1)
	assert.Equal(t, "p-a", warm[0].ContextMap()["progress_id"])
}
