package model_test

import (
	"testing"
	"time"

	"github.com/agriapp/server/model"
	"github.com/agriapp/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	acc := &model.Account{Username: "test_user", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	plan := &model.PlantingPlan{
		ID:    "plan-1",
		Title: "Arabica at home",
		Tags:  []string{"coffee", "shrub"},
		Milestones: []model.Milestone{
			{ID: "m1", Title: "Germinate"},
			{ID: "m2", Title: "Transplant", EstimatedDays: 30},
		},
	}
	require.NoError(t, db.Create(plan).Error)

	var gotPlan model.PlantingPlan
	require.NoError(t, db.First(&gotPlan, "id = ?", "plan-1").Error)
	assert.Len(t, gotPlan.Milestones, 2)
	assert.Equal(t, 30, gotPlan.Milestones[1].EstimatedDays)
	assert.True(t, gotPlan.HasTag("coffee"))

	now := time.Now().UTC().Truncate(time.Second)
	rec := model.NewPlantProgress(acc.UserKey(), plan.ID)
	rec.ID = "prog-1"
	rec.StartedAt = now
	rec.LastUpdatedAt = now
	rec.CompletedMilestones = append(rec.CompletedMilestones, model.CompletedMilestone{
		MilestoneID: "m1", CompletedAt: now, Notes: "sprouted",
	})
	rec.AwardedBadges = append(rec.AwardedBadges, model.BadgeHalfwayHero)
	require.NoError(t, db.Create(&rec).Error)

	var got model.PlantProgress
	require.NoError(t, db.First(&got, "id = ?", "prog-1").Error)
	require.Len(t, got.CompletedMilestones, 1)
	assert.Equal(t, "sprouted", got.CompletedMilestones[0].Notes)
	assert.True(t, got.HasBadge(model.BadgeHalfwayHero))
	assert.True(t, got.HasMilestone("m1"))
	assert.Equal(t, int64(0), got.Version)

	require.NoError(t, db.Create(&model.AuditLog{TraceID: "t", Action: "progress.like"}).Error)
}

func TestPlantProgress_NormalizeAndClone(t *testing.T) {
	var p model.PlantProgress
	p.Normalize()
	assert.NotNil(t, p.CompletedMilestones)
	assert.NotNil(t, p.AwardedBadges)

	p.AwardedBadges = append(p.AwardedBadges, "A")
	c := p.Clone()
	c.AwardedBadges[0] = "B"
	assert.Equal(t, "A", p.AwardedBadges[0])
}

func TestPlantingPlan_MilestoneIDs(t *testing.T) {
	plan := model.PlantingPlan{Milestones: []model.Milestone{{ID: "a"}, {ID: "b"}}}
	ids := plan.MilestoneIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a")
	assert.False(t, plan.HasTag("coffee"))
}
