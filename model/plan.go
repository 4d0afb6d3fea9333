package model

import (
	"time"

	"gorm.io/datatypes"
)

// Milestone is one checklist step of a planting plan.
type Milestone struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
	Tips          string `json:"tips,omitempty"`
}

// PlantingPlan is a template users work through milestone by milestone.
type PlantingPlan struct {
	ID          string                         `gorm:"primaryKey;size:36" json:"id"`
	Title       string                         `gorm:"size:128;not null" json:"title"`
	Description string                         `gorm:"type:text" json:"description"`
	Category    string                         `gorm:"size:64;index:idx_plan_category" json:"category"`
	Difficulty  string                         `gorm:"size:32" json:"difficulty"`
	Tags        datatypes.JSONSlice[string]    `json:"tags"`
	Milestones  datatypes.JSONSlice[Milestone] `json:"milestones"`
	IsPublic    bool                           `json:"is_public"`
	Likes       int64                          `gorm:"not null;default:0" json:"likes"`
	CreatedBy   string                         `gorm:"size:64;index:idx_plan_creator" json:"created_by"`
	CreatedAt   time.Time                      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasTag reports whether the plan carries the given tag.
func (p *PlantingPlan) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MilestoneIDs returns the set of milestone identifiers defined by the plan.
func (p *PlantingPlan) MilestoneIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Milestones))
	for _, m := range p.Milestones {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// Normalize replaces nil containers with empty ones.
func (p *PlantingPlan) Normalize() {
	if p.Tags == nil {
		p.Tags = datatypes.JSONSlice[string]{}
	}
	if p.Milestones == nil {
		p.Milestones = datatypes.JSONSlice[Milestone]{}
	}
}
