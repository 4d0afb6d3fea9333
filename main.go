package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agriapp/server/api"
	apirest "github.com/agriapp/server/api/rest"
	"github.com/agriapp/server/api/sse"
	"github.com/agriapp/server/audit"
	"github.com/agriapp/server/cache"
	"github.com/agriapp/server/config"
	dbadapter "github.com/agriapp/server/db"
	mw "github.com/agriapp/server/middleware"
	"github.com/agriapp/server/model"
	"github.com/agriapp/server/progress"
	"github.com/agriapp/server/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("distributed", cacheConfig.IsDistributed()))

	// ---- Progress engine ----
	// Record locks must be shared when several instances use the same Redis.
	var locker progress.Locker = progress.NewLocalLocker()
	if cacheConfig.IsDistributed() {
		locker = progress.NewCacheLocker(c, cfg.Progress.LockTTL, cfg.Progress.LockWait)
	}
	ranking := progress.NewRanking(c, cfg.Progress.RankingSize)
	records := progress.NewGormProgressStore(db)
	progressSvc := progress.NewService(
		progress.NewGormPlanStore(db),
		records,
		logger,
		progress.WithLocker(locker),
		progress.WithPublisher(pubsub),
		progress.WithRanking(ranking),
	)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker(apirest.RankingRefreshTask, cfg.Progress.RankingRefresh, func(ctx context.Context) error {
		n, err := ranking.Rebuild(ctx, records)
		if err != nil {
			return err
		}
		logger.Debug("likes ranking rebuilt", zap.Int("entries", n))
		return nil
	})
	if err := sched.RunNow(apirest.RankingRefreshTask); err != nil {
		logger.Warn("initial ranking rebuild failed", zap.Error(err))
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	routes := &api.Routes{
		Auth:        apirest.NewAuthHandler(db, c, cfg.Security),
		Plans:       apirest.NewPlanHandler(db, logger),
		Progress:    apirest.NewProgressHandler(progressSvc, auditSvc, logger),
		Ranking:     apirest.NewRankingHandler(db, ranking, records, logger),
		Admin:       apirest.NewAdminHandler(db, sched, sseH, logger),
		SSE:         sseH,
		RequireAuth: mw.Auth(cfg.Security, c),
		AdminGuards: []gin.HandlerFunc{
			mw.IPWhitelist(cfg.Server.AdminIPs, logger),
			apirest.AdminAuth(cfg.Server.AdminKey),
		},
	}
	routes.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := auditSvc.Stop(shutdownCtx); err != nil {
		logger.Warn("audit flush incomplete", zap.Error(err))
	}
}
