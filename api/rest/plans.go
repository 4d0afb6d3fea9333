package rest

import (
	"errors"
	"net/http"

	mw "github.com/agriapp/server/middleware"
	"github.com/agriapp/server/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlanHandler maintains the planting plans progress records refer to.
type PlanHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(db *gorm.DB, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{db: db, logger: logger}
}

type planRequest struct {
	Title       string            `json:"title" binding:"required,max=128"`
	Description string            `json:"description"`
	Category    string            `json:"category" binding:"max=64"`
	Difficulty  string            `json:"difficulty" binding:"max=32"`
	Tags        []string          `json:"tags"`
	Milestones  []model.Milestone `json:"milestones"`
	IsPublic    bool              `json:"is_public"`
}

var errDuplicateMilestone = errors.New("duplicate milestone id")

// apply copies the request onto plan, generating ids for unnamed milestones.
func (req *planRequest) apply(plan *model.PlantingPlan) error {
	seen := make(map[string]struct{}, len(req.Milestones))
	milestones := make([]model.Milestone, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if _, dup := seen[m.ID]; dup {
			return errDuplicateMilestone
		}
		seen[m.ID] = struct{}{}
		milestones = append(milestones, m)
	}
	plan.Title = req.Title
	plan.Description = req.Description
	plan.Category = req.Category
	plan.Difficulty = req.Difficulty
	plan.Tags = datatypes.JSONSlice[string](req.Tags)
	plan.Milestones = datatypes.JSONSlice[model.Milestone](milestones)
	plan.IsPublic = req.IsPublic
	plan.Normalize()
	return nil
}

// Create handles POST /api/plans.
func (h *PlanHandler) Create(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan := model.PlantingPlan{ID: uuid.NewString(), CreatedBy: mw.GetUserID(c)}
	if err := req.apply(&plan); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&plan).Error; err != nil {
		h.logger.Error("create plan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("plan created",
		zap.String("plan_id", plan.ID),
		zap.String("user_id", plan.CreatedBy),
		zap.Int("milestones", len(plan.Milestones)))
	c.JSON(http.StatusCreated, plan)
}

// publicPlans loads public plans, optionally restricted to one category.
func (h *PlanHandler) publicPlans(c *gin.Context, category string) ([]model.PlantingPlan, error) {
	q := h.db.WithContext(c.Request.Context()).Where("is_public = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	plans := make([]model.PlantingPlan, 0)
	if err := q.Order("created_at DESC").Find(&plans).Error; err != nil {
		return nil, err
	}
	for i := range plans {
		plans[i].Normalize()
	}
	return plans, nil
}

// List handles GET /api/plans?category=.
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.publicPlans(c, c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// ByTag handles GET /api/plans/tags/:tag.
// Tags live in a JSON column, so the match runs in Go to stay portable
// across SQLite and MySQL.
func (h *PlanHandler) ByTag(c *gin.Context) {
	plans, err := h.publicPlans(c, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	tag := c.Param("tag")
	out := make([]model.PlantingPlan, 0, len(plans))
	for i := range plans {
		if plans[i].HasTag(tag) {
			out = append(out, plans[i])
		}
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (h *PlanHandler) load(c *gin.Context) (*model.PlantingPlan, bool) {
	var plan model.PlantingPlan
	err := h.db.WithContext(c.Request.Context()).First(&plan, "id = ?", c.Param("id")).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return nil, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return nil, false
	}
	plan.Normalize()
	return &plan, true
}

// loadOwned loads the plan and rejects callers other than its creator.
func (h *PlanHandler) loadOwned(c *gin.Context) (*model.PlantingPlan, bool) {
	plan, ok := h.load(c)
	if !ok {
		return nil, false
	}
	if plan.CreatedBy != mw.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the plan creator"})
		return nil, false
	}
	return plan, true
}

// Get handles GET /api/plans/:id.
func (h *PlanHandler) Get(c *gin.Context) {
	if plan, ok := h.load(c); ok {
		c.JSON(http.StatusOK, plan)
	}
}

// Update handles PUT /api/plans/:id.
func (h *PlanHandler) Update(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := req.apply(plan); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Save(plan).Error; err != nil {
		h.logger.Error("update plan failed", zap.String("plan_id", plan.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, plan)
}

// Delete handles DELETE /api/plans/:id. Progress records on the plan are
// kept; operations that need the plan report it as not found.
func (h *PlanHandler) Delete(c *gin.Context) {
	plan, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Delete(&model.PlantingPlan{}, "id = ?", plan.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("plan deleted", zap.String("plan_id", plan.ID))
	c.Status(http.StatusNoContent)
}
