package progress

import (
	"context"
	"testing"
	"time"

	"github.com/agriapp/server/model"
	"github.com/agriapp/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, store *GormProgressStore, id, userID, planID string, updated time.Time, likes int64) model.PlantProgress {
	t.Helper()
	rec := model.NewPlantProgress(userID, planID)
	rec.ID = id
	rec.StartedAt = updated
	rec.LastUpdatedAt = updated
	rec.Likes = likes
	require.NoError(t, store.Create(context.Background(), &rec))
	return rec
}

func TestGormPlanStore_FindByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedPlan(t, db, "plan-1", []string{"m1", "m2"}, "coffee")
	store := NewGormPlanStore(db)
	ctx := context.Background()

	plan, err := store.FindByID(ctx, "plan-1")
	require.NoError(t, err)
	assert.Len(t, plan.Milestones, 2)
	assert.True(t, plan.HasTag("coffee"))

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormProgressStore_Queries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewGormProgressStore(db)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	seedRecord(t, store, "p1", "alice", "plan-a", base, 0)
	seedRecord(t, store, "p2", "alice", "plan-b", base.Add(2*time.Hour), 4)
	seedRecord(t, store, "p3", "bob", "plan-a", base.Add(time.Hour), 9)

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3", "p2"}, ids(all))

	byUser, err := store.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(byUser))

	byPlan, err := store.FindByPlanID(ctx, "plan-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, ids(byPlan))

	recent, err := store.FindByUserIDOrderByLastUpdatedDesc(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids(recent))

	top, err := store.FindTopLiked(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2"}, ids(top))

	one, err := store.FindByUserAndPlan(ctx, "bob", "plan-a")
	require.NoError(t, err)
	assert.Equal(t, "p3", one.ID)

	_, err = store.FindByUserAndPlan(ctx, "bob", "plan-b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormProgressStore_EmptyListsAreNotNil(t *testing.T) {
	store := NewGormProgressStore(testutil.SetupTestDB(t))
	ctx := context.Background()

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	byUser, err := store.FindByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, byUser)
}

func TestGormProgressStore_LoadedContainersAreNotNil(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewGormProgressStore(db)
	// Insert bypassing Normalize so the JSON columns hold null.
	require.NoError(t, db.Create(&model.PlantProgress{ID: "raw", UserID: "u1", PlantingPlanID: "plan-1"}).Error)

	rec, err := store.FindByID(context.Background(), "raw")
	require.NoError(t, err)
	assert.NotNil(t, rec.CompletedMilestones)
	assert.NotNil(t, rec.AwardedBadges)
}

func TestGormProgressStore_SaveRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewGormProgressStore(db)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	rec := seedRecord(t, store, "p1", "alice", "plan-a", at, 0)
	rec.CompletedMilestones = append(rec.CompletedMilestones, model.CompletedMilestone{MilestoneID: "m1", CompletedAt: at, Notes: "planted"})
	rec.AwardedBadges = append(rec.AwardedBadges, model.BadgeHalfwayHero)
	rec.ProgressPercentage = 50
	require.NoError(t, store.Save(ctx, &rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := store.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 50.0, got.ProgressPercentage)
	require.Len(t, got.CompletedMilestones, 1)
	assert.Equal(t, "planted", got.CompletedMilestones[0].Notes)
	assert.True(t, got.CompletedMilestones[0].CompletedAt.Equal(at))
	assert.Equal(t, []string{model.BadgeHalfwayHero}, []string(got.AwardedBadges))
}

func TestGormProgressStore_SaveStaleVersion(t *testing.T) {
	store := NewGormProgressStore(testutil.SetupTestDB(t))
	ctx := context.Background()
	rec := seedRecord(t, store, "p1", "alice", "plan-a", time.Now().UTC(), 0)

	first := rec.Clone()
	second := rec.Clone()
	first.Likes = 1
	require.NoError(t, store.Save(ctx, &first))

	second.Likes = 7
	err := store.Save(ctx, &second)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(0), second.Version, "failed save must not bump the version")

	got, err := store.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Likes)
}

func TestGormProgressStore_SaveAndDeleteMissing(t *testing.T) {
	store := NewGormProgressStore(testutil.SetupTestDB(t))
	ctx := context.Background()

	ghost := model.NewPlantProgress("u1", "plan-1")
	ghost.ID = "ghost"
	assert.ErrorIs(t, store.Save(ctx, &ghost), ErrNotFound)
	assert.ErrorIs(t, store.DeleteByID(ctx, "ghost"), ErrNotFound)
}

func TestGormProgressStore_StorageFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewGormProgressStore(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = store.FindByID(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrStorage)
	_, err = store.FindAll(context.Background())
	assert.ErrorIs(t, err, ErrStorage)
}

func ids(recs []model.PlantProgress) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestGormProgressStore_CreateDuplicateUserPlan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewGormProgressStore(db)
	seedRecord(t, store, "p1", "alice", "plan-a", time.Now().UTC(), 0)

	dup := model.NewPlantProgress("alice", "plan-a")
	dup.ID = "p2"
	err := store.Create(context.Background(), &dup)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrStorage)

	_, err = store.FindByID(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrNotFound)
}
