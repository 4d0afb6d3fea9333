package testutil

import (
	"testing"

	"github.com/agriapp/server/cache"
	"github.com/agriapp/server/config"
	dbadapter "github.com/agriapp/server/db"
	"github.com/agriapp/server/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an isolated in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeSQLiteMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// SeedPlan inserts a planting plan with the given milestone ids and tags.
func SeedPlan(t *testing.T, db *gorm.DB, id string, milestoneIDs []string, tags ...string) *model.PlantingPlan {
	t.Helper()
	plan := &model.PlantingPlan{ID: id, Title: "plan " + id, Tags: tags}
	for _, mid := range milestoneIDs {
		plan.Milestones = append(plan.Milestones, model.Milestone{ID: mid, Title: "step " + mid})
	}
	plan.Normalize()
	require.NoError(t, db.Create(plan).Error, "SeedPlan")
	return plan
}
