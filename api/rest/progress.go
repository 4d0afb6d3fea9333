package rest

import (
	"net/http"
	"time"

	"github.com/agriapp/server/audit"
	mw "github.com/agriapp/server/middleware"
	"github.com/agriapp/server/model"
	"github.com/agriapp/server/progress"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProgressHandler exposes the progress engine over REST.
type ProgressHandler struct {
	svc    *progress.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewProgressHandler creates a ProgressHandler. audit may be nil.
func NewProgressHandler(svc *progress.Service, auditSvc *audit.Service, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{svc: svc, audit: auditSvc, logger: logger}
}

type createProgressRequest struct {
	PlantingPlanID      string                     `json:"planting_plan_id" binding:"required"`
	StartedAt           time.Time                  `json:"started_at"`
	CompletedMilestones []model.CompletedMilestone `json:"completed_milestones"`
	AwardedBadges       []string                   `json:"awarded_badges"`
}

type updateProgressRequest struct {
	StartedAt           time.Time                  `json:"started_at"`
	CompletedMilestones []model.CompletedMilestone `json:"completed_milestones"`
	AwardedBadges       []string                   `json:"awarded_badges"`
}

type completeMilestoneRequest struct {
	MilestoneID string    `json:"milestone_id" binding:"required"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       string    `json:"notes"`
}

// record enqueues an audit entry for a mutating call.
func (h *ProgressHandler) record(c *gin.Context, action, progressID string, req interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		UserID:     mw.GetUserID(c),
		ProgressID: progressID,
		Action:     action,
		Request:    req,
		IP:         c.ClientIP(),
		Duration:   time.Since(start),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.audit.Log(e)
}

// owned loads the record in the path and rejects callers other than its owner.
func (h *ProgressHandler) owned(c *gin.Context) (model.PlantProgress, bool) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return model.PlantProgress{}, false
	}
	if rec.UserID != mw.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the record owner"})
		return model.PlantProgress{}, false
	}
	return rec, true
}

func listResponse(c *gin.Context, recs []model.PlantProgress, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": recs})
}

// Create handles POST /api/progress. The record belongs to the caller.
func (h *ProgressHandler) Create(c *gin.Context) {
	start := time.Now()
	var req createProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := model.NewPlantProgress(mw.GetUserID(c), req.PlantingPlanID)
	rec.StartedAt = req.StartedAt
	rec.CompletedMilestones = append(rec.CompletedMilestones, req.CompletedMilestones...)
	rec.AwardedBadges = append(rec.AwardedBadges, req.AwardedBadges...)

	out, err := h.svc.Create(c.Request.Context(), rec)
	h.record(c, "progress.create", out.ID, req, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// List handles GET /api/progress.
func (h *ProgressHandler) List(c *gin.Context) {
	recs, err := h.svc.List(c.Request.Context())
	listResponse(c, recs, err)
}

// Get handles GET /api/progress/:id.
func (h *ProgressHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ByUser handles GET /api/progress/users/:userId.
func (h *ProgressHandler) ByUser(c *gin.Context) {
	recs, err := h.svc.ListByUser(c.Request.Context(), c.Param("userId"))
	listResponse(c, recs, err)
}

// ByPlan handles GET /api/progress/plans/:planId.
func (h *ProgressHandler) ByPlan(c *gin.Context) {
	recs, err := h.svc.ListByPlan(c.Request.Context(), c.Param("planId"))
	listResponse(c, recs, err)
}

// ByUserAndPlan handles GET /api/progress/users/:userId/plans/:planId.
// The response holds zero or one record.
func (h *ProgressHandler) ByUserAndPlan(c *gin.Context) {
	rec, err := h.svc.GetByUserAndPlan(c.Request.Context(), c.Param("userId"), c.Param("planId"))
	switch {
	case err == nil:
		listResponse(c, []model.PlantProgress{rec}, nil)
	case isNotFound(err):
		listResponse(c, []model.PlantProgress{}, nil)
	default:
		respondError(c, err)
	}
}

// Recent handles GET /api/progress/users/:userId/recent.
func (h *ProgressHandler) Recent(c *gin.Context) {
	recs, err := h.svc.RecentByUser(c.Request.Context(), c.Param("userId"))
	listResponse(c, recs, err)
}

// Update handles PUT /api/progress/:id.
func (h *ProgressHandler) Update(c *gin.Context) {
	start := time.Now()
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, ok := h.owned(c)
	if !ok {
		return
	}
	patch := model.NewPlantProgress(rec.UserID, rec.PlantingPlanID)
	patch.StartedAt = req.StartedAt
	patch.CompletedMilestones = append(patch.CompletedMilestones, req.CompletedMilestones...)
	patch.AwardedBadges = append(patch.AwardedBadges, req.AwardedBadges...)

	out, err := h.svc.Update(c.Request.Context(), rec.ID, patch)
	h.record(c, "progress.update", rec.ID, req, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Delete handles DELETE /api/progress/:id.
func (h *ProgressHandler) Delete(c *gin.Context) {
	start := time.Now()
	rec, ok := h.owned(c)
	if !ok {
		return
	}
	err := h.svc.Delete(c.Request.Context(), rec.ID)
	h.record(c, "progress.delete", rec.ID, nil, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CompleteMilestone handles POST /api/progress/:id/milestones.
func (h *ProgressHandler) CompleteMilestone(c *gin.Context) {
	start := time.Now()
	var req completeMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, ok := h.owned(c)
	if !ok {
		return
	}
	out, added, err := h.svc.CompleteMilestone(c.Request.Context(), rec.ID, model.CompletedMilestone{
		MilestoneID: req.MilestoneID,
		CompletedAt: req.CompletedAt,
		Notes:       req.Notes,
	})
	h.record(c, "progress.complete_milestone", rec.ID, req, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": out, "added": added})
}

// RefreshPercentage handles PUT /api/progress/:id/percentage.
func (h *ProgressHandler) RefreshPercentage(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	out, granted, err := h.svc.RefreshPercentage(c.Request.Context(), id)
	h.record(c, "progress.refresh", id, nil, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	if granted == nil {
		granted = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"progress": out, "granted": granted})
}

// AwardBadge handles PUT /api/progress/:id/badges/:badge.
func (h *ProgressHandler) AwardBadge(c *gin.Context) {
	start := time.Now()
	id, badge := c.Param("id"), c.Param("badge")
	out, added, err := h.svc.AwardBadge(c.Request.Context(), id, badge)
	h.record(c, "progress.award_badge", id, gin.H{"badge": badge}, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": out, "added": added})
}

// Like handles PUT /api/progress/:id/like.
func (h *ProgressHandler) Like(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	out, err := h.svc.Like(c.Request.Context(), id)
	h.record(c, "progress.like", id, nil, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
