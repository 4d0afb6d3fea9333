package rest

import (
	"net/http"
	"strconv"

	"github.com/agriapp/server/model"
	"github.com/agriapp/server/progress"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rankingMaxLimit = 100

// RankingHandler serves the likes leaderboard.
type RankingHandler struct {
	db      *gorm.DB
	ranking *progress.Ranking
	store   progress.ProgressStore
	logger  *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, ranking *progress.Ranking, store progress.ProgressStore, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, ranking: ranking, store: store, logger: logger}
}

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank       int     `json:"rank"`
	ProgressID string  `json:"progress_id"`
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	PlanID     string  `json:"planting_plan_id"`
	PlanTitle  string  `json:"plan_title"`
	Likes      int64   `json:"likes"`
	Percentage float64 `json:"progress_percentage"`
}

// TopLiked returns the most liked progress records.
// GET /api/ranking/likes?limit=20
func (h *RankingHandler) TopLiked(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingMaxLimit {
		limit = l
	}
	ctx := c.Request.Context()

	cached, err := h.ranking.Top(ctx, limit)
	if err == nil && len(cached) > 0 {
		entries := make([]RankEntry, len(cached))
		for i, e := range cached {
			entries[i] = RankEntry{Rank: e.Rank, ProgressID: e.ProgressID, Likes: e.Likes}
		}
		h.enrich(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}
	if err != nil {
		h.logger.Warn("ranking cache read failed", zap.Error(err))
	}

	// Fall back to the store and warm the cache.
	recs, err := h.store.FindTopLiked(ctx, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	entries := make([]RankEntry, len(recs))
	for i, rec := range recs {
		entries[i] = RankEntry{
			Rank:       i + 1,
			ProgressID: rec.ID,
			UserID:     rec.UserID,
			PlanID:     rec.PlantingPlanID,
			Likes:      rec.Likes,
			Percentage: rec.ProgressPercentage,
		}
		if err := h.ranking.Record(ctx, rec.ID, rec.Likes); err != nil {
			h.logger.Warn("ranking warm failed", zap.String("progress_id", rec.ID), zap.Error(err))
		}
	}
	h.enrich(entries)
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// enrich fills owner and plan details from the database.
func (h *RankingHandler) enrich(entries []RankEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ProgressID
	}
	var recs []model.PlantProgress
	h.db.Select("id, user_id, planting_plan_id, likes, progress_percentage").Where("id IN ?", ids).Find(&recs)
	recMap := make(map[string]model.PlantProgress, len(recs))
	for _, r := range recs {
		recMap[r.ID] = r
	}

	var accountIDs []int64
	var planIDs []string
	for i := range entries {
		r, ok := recMap[entries[i].ProgressID]
		if !ok {
			continue
		}
		entries[i].UserID = r.UserID
		entries[i].PlanID = r.PlantingPlanID
		entries[i].Percentage = r.ProgressPercentage
		if aid, err := strconv.ParseInt(r.UserID, 10, 64); err == nil {
			accountIDs = append(accountIDs, aid)
		}
		planIDs = append(planIDs, r.PlantingPlanID)
	}

	names := make(map[string]string)
	if len(accountIDs) > 0 {
		var accs []model.Account
		h.db.Select("id, username").Where("id IN ?", accountIDs).Find(&accs)
		for i := range accs {
			names[accs[i].UserKey()] = accs[i].Username
		}
	}
	titles := make(map[string]string)
	if len(planIDs) > 0 {
		var plans []model.PlantingPlan
		h.db.Select("id, title").Where("id IN ?", planIDs).Find(&plans)
		for _, p := range plans {
			titles[p.ID] = p.Title
		}
	}
	for i := range entries {
		entries[i].Username = names[entries[i].UserID]
		entries[i].PlanTitle = titles[entries[i].PlanID]
	}
}
