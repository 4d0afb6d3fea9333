package model

import (
	"time"

	"gorm.io/datatypes"
)

// Badge identifiers granted by the progress engine.
const (
	BadgeCompletionMaster = "COMPLETION_MASTER"
	BadgeHalfwayHero      = "HALFWAY_HERO"
	BadgeCoffeeGrower     = "COFFEE_GROWER"
)

// CompletedMilestone records that a milestone of the plan was finished.
type CompletedMilestone struct {
	MilestoneID string    `json:"milestone_id" validate:"required,max=64"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       string    `json:"notes,omitempty" validate:"max=2000"`
}

// PlantProgress tracks one user's progress through one planting plan.
// Version is bumped on every save and used for optimistic concurrency.
type PlantProgress struct {
	ID                  string                                  `gorm:"primaryKey;size:36" json:"id"`
	UserID              string                                  `gorm:"size:64;not null;uniqueIndex:idx_progress_user_plan;index:idx_progress_user_updated" json:"user_id" validate:"required,max=64"`
	PlantingPlanID      string                                  `gorm:"size:36;not null;uniqueIndex:idx_progress_user_plan;index:idx_progress_plan" json:"planting_plan_id" validate:"required,max=36"`
	StartedAt           time.Time                               `json:"started_at"`
	LastUpdatedAt       time.Time                               `gorm:"index:idx_progress_user_updated" json:"last_updated_at"`
	CompletedMilestones datatypes.JSONSlice[CompletedMilestone] `json:"completed_milestones" validate:"dive"`
	ProgressPercentage  float64                                 `json:"progress_percentage"`
	AwardedBadges       datatypes.JSONSlice[string]             `json:"awarded_badges"`
	Likes               int64                                   `gorm:"not null;default:0" json:"likes"`
	Version             int64                                   `gorm:"not null;default:0" json:"version"`
}

// NewPlantProgress returns a record for userID on planID with empty containers.
func NewPlantProgress(userID, planID string) PlantProgress {
	return PlantProgress{
		UserID:              userID,
		PlantingPlanID:      planID,
		CompletedMilestones: datatypes.JSONSlice[CompletedMilestone]{},
		AwardedBadges:       datatypes.JSONSlice[string]{},
	}
}

// Normalize replaces nil containers with empty ones.
func (p *PlantProgress) Normalize() {
	if p.CompletedMilestones == nil {
		p.CompletedMilestones = datatypes.JSONSlice[CompletedMilestone]{}
	}
	if p.AwardedBadges == nil {
		p.AwardedBadges = datatypes.JSONSlice[string]{}
	}
}

// HasBadge reports whether badge has already been awarded.
func (p *PlantProgress) HasBadge(badge string) bool {
	for _, b := range p.AwardedBadges {
		if b == badge {
			return true
		}
	}
	return false
}

// HasMilestone reports whether milestoneID is already in the completed set.
func (p *PlantProgress) HasMilestone(milestoneID string) bool {
	for _, m := range p.CompletedMilestones {
		if m.MilestoneID == milestoneID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can transform without aliasing.
func (p PlantProgress) Clone() PlantProgress {
	out := p
	out.CompletedMilestones = append(datatypes.JSONSlice[CompletedMilestone]{}, p.CompletedMilestones...)
	out.AwardedBadges = append(datatypes.JSONSlice[string]{}, p.AwardedBadges...)
	return out
}
