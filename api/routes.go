// Package api mounts the REST and SSE handlers on a gin router.
package api

import (
	"net/http"

	"github.com/agriapp/server/api/rest"
	"github.com/agriapp/server/api/sse"
	"github.com/gin-gonic/gin"
)

// Routes holds every handler the server exposes.
type Routes struct {
	Auth     *rest.AuthHandler
	Plans    *rest.PlanHandler
	Progress *rest.ProgressHandler
	Ranking  *rest.RankingHandler
	Admin    *rest.AdminHandler
	SSE      *sse.Handler

	// RequireAuth guards routes acting on behalf of a user.
	RequireAuth gin.HandlerFunc
	// AdminGuards run in order before every /api/admin route.
	AdminGuards []gin.HandlerFunc
}

// Register mounts /health, /sse and the /api tree on r.
func (rt *Routes) Register(r gin.IRouter) {
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/sse", rt.SSE.ServeSSE)

	api := r.Group("/api")

	authG := api.Group("/auth")
	authG.POST("/login", rt.Auth.Login)
	authG.POST("/logout", rt.RequireAuth, rt.Auth.Logout)
	authG.POST("/refresh", rt.RequireAuth, rt.Auth.Refresh)

	plansG := api.Group("/plans")
	plansG.GET("", rt.Plans.List)
	plansG.GET("/tags/:tag", rt.Plans.ByTag)
	plansG.GET("/:id", rt.Plans.Get)
	plansG.POST("", rt.RequireAuth, rt.Plans.Create)
	plansG.PUT("/:id", rt.RequireAuth, rt.Plans.Update)
	plansG.DELETE("/:id", rt.RequireAuth, rt.Plans.Delete)

	progressG := api.Group("/progress")
	progressG.GET("", rt.Progress.List)
	progressG.GET("/:id", rt.Progress.Get)
	progressG.GET("/users/:userId", rt.Progress.ByUser)
	progressG.GET("/users/:userId/recent", rt.Progress.Recent)
	progressG.GET("/users/:userId/plans/:planId", rt.Progress.ByUserAndPlan)
	progressG.GET("/plans/:planId", rt.Progress.ByPlan)
	progressG.POST("", rt.RequireAuth, rt.Progress.Create)
	progressG.PUT("/:id", rt.RequireAuth, rt.Progress.Update)
	progressG.DELETE("/:id", rt.RequireAuth, rt.Progress.Delete)
	progressG.POST("/:id/milestones", rt.RequireAuth, rt.Progress.CompleteMilestone)
	progressG.PUT("/:id/percentage", rt.RequireAuth, rt.Progress.RefreshPercentage)
	progressG.PUT("/:id/badges/:badge", rt.RequireAuth, rt.Progress.AwardBadge)
	progressG.PUT("/:id/like", rt.RequireAuth, rt.Progress.Like)

	rankG := api.Group("/ranking")
	rankG.GET("/likes", rt.Ranking.TopLiked)

	adminG := api.Group("/admin", rt.AdminGuards...)
	adminG.GET("/metrics", rt.Admin.Metrics)
	adminG.GET("/scheduler", rt.Admin.ListSchedulerTasks)
	adminG.POST("/ranking/refresh", rt.Admin.RefreshRanking)
	adminG.POST("/accounts/:id/ban", rt.Admin.BanAccount)
	adminG.POST("/announce", rt.Admin.Announce)
}
