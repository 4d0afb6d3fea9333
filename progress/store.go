package progress

import (
	"context"
	"errors"

	"github.com/agriapp/server/model"
	"gorm.io/gorm"
)

// PlanStore is the read-only view of planting plans the engine needs.
type PlanStore interface {
	FindByID(ctx context.Context, id string) (model.PlantingPlan, error)
}

// ProgressStore persists progress records. Save is version-checked: it
// fails with ErrConflict when the stored version differs from rec.Version
// and bumps rec.Version on success.
type ProgressStore interface {
	FindByID(ctx context.Context, id string) (model.PlantProgress, error)
	FindAll(ctx context.Context) ([]model.PlantProgress, error)
	FindByUserID(ctx context.Context, userID string) ([]model.PlantProgress, error)
	FindByPlanID(ctx context.Context, planID string) ([]model.PlantProgress, error)
	FindByUserAndPlan(ctx context.Context, userID, planID string) (model.PlantProgress, error)
	FindByUserIDOrderByLastUpdatedDesc(ctx context.Context, userID string) ([]model.PlantProgress, error)
	FindTopLiked(ctx context.Context, limit int) ([]model.PlantProgress, error)
	Create(ctx context.Context, rec *model.PlantProgress) error
	Save(ctx context.Context, rec *model.PlantProgress) error
	DeleteByID(ctx context.Context, id string) error
}

// GormPlanStore reads plans with GORM.
type GormPlanStore struct {
	db *gorm.DB
}

// NewGormPlanStore creates a GormPlanStore.
func NewGormPlanStore(db *gorm.DB) *GormPlanStore {
	return &GormPlanStore{db: db}
}

func (s *GormPlanStore) FindByID(ctx context.Context, id string) (model.PlantingPlan, error) {
	var plan model.PlantingPlan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PlantingPlan{}, notFound("planting plan", id)
	}
	if err != nil {
		return model.PlantingPlan{}, storageFailure("find plan", err)
	}
	plan.Normalize()
	return plan, nil
}

// GormProgressStore persists progress records with GORM.
type GormProgressStore struct {
	db *gorm.DB
}

// NewGormProgressStore creates a GormProgressStore.
func NewGormProgressStore(db *gorm.DB) *GormProgressStore {
	return &GormProgressStore{db: db}
}

func (s *GormProgressStore) FindByID(ctx context.Context, id string) (model.PlantProgress, error) {
	var rec model.PlantProgress
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PlantProgress{}, notFound("progress", id)
	}
	if err != nil {
		return model.PlantProgress{}, storageFailure("find progress", err)
	}
	rec.Normalize()
	return rec, nil
}

func (s *GormProgressStore) find(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) ([]model.PlantProgress, error) {
	var recs []model.PlantProgress
	if err := scope(s.db.WithContext(ctx)).Find(&recs).Error; err != nil {
		return nil, storageFailure(op, err)
	}
	for i := range recs {
		recs[i].Normalize()
	}
	if recs == nil {
		recs = []model.PlantProgress{}
	}
	return recs, nil
}

func (s *GormProgressStore) FindAll(ctx context.Context) ([]model.PlantProgress, error) {
	return s.find(ctx, "list progress", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("started_at ASC")
	})
}

func (s *GormProgressStore) FindByUserID(ctx context.Context, userID string) ([]model.PlantProgress, error) {
	return s.find(ctx, "list progress by user", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID).Order("started_at ASC")
	})
}

func (s *GormProgressStore) FindByPlanID(ctx context.Context, planID string) ([]model.PlantProgress, error) {
	return s.find(ctx, "list progress by plan", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("planting_plan_id = ?", planID).Order("started_at ASC")
	})
}

func (s *GormProgressStore) FindByUserIDOrderByLastUpdatedDesc(ctx context.Context, userID string) ([]model.PlantProgress, error) {
	return s.find(ctx, "list recent progress", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID).Order("last_updated_at DESC")
	})
}

func (s *GormProgressStore) FindTopLiked(ctx context.Context, limit int) ([]model.PlantProgress, error) {
	return s.find(ctx, "list top liked", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("likes > 0").Order("likes DESC").Limit(limit)
	})
}

func (s *GormProgressStore) FindByUserAndPlan(ctx context.Context, userID, planID string) (model.PlantProgress, error) {
	var rec model.PlantProgress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND planting_plan_id = ?", userID, planID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PlantProgress{}, notFound("progress for user/plan", userID+"/"+planID)
	}
	if err != nil {
		return model.PlantProgress{}, storageFailure("find progress by user and plan", err)
	}
	rec.Normalize()
	return rec, nil
}

func (s *GormProgressStore) Create(ctx context.Context, rec *model.PlantProgress) error {
	rec.Normalize()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKey(err) {
			return conflict("progress already exists for user and plan", rec.UserID+"/"+rec.PlantingPlanID)
		}
		return storageFailure("create progress", err)
	}
	return nil
}

func (s *GormProgressStore) Save(ctx context.Context, rec *model.PlantProgress) error {
	rec.Normalize()
	next := rec.Version + 1
	res := s.db.WithContext(ctx).Model(&model.PlantProgress{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]interface{}{
			"user_id":              rec.UserID,
			"planting_plan_id":     rec.PlantingPlanID,
			"started_at":           rec.StartedAt,
			"last_updated_at":      rec.LastUpdatedAt,
			"completed_milestones": rec.CompletedMilestones,
			"progress_percentage":  rec.ProgressPercentage,
			"awarded_badges":       rec.AwardedBadges,
			"likes":                rec.Likes,
			"version":              next,
		})
	if res.Error != nil {
		return storageFailure("save progress", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&model.PlantProgress{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
			return storageFailure("save progress", err)
		}
		if n == 0 {
			return notFound("progress", rec.ID)
		}
		return conflict("stale version for progress", rec.ID)
	}
	rec.Version = next
	return nil
}

func (s *GormProgressStore) DeleteByID(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PlantProgress{})
	if res.Error != nil {
		return storageFailure("delete progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("progress", id)
	}
	return nil
}
