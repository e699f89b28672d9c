package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-grade-engine/api/swagger"
	"github.com/noah-isme/sma-grade-engine/internal/handler"
	"github.com/noah-isme/sma-grade-engine/internal/middleware"
	"github.com/noah-isme/sma-grade-engine/internal/models"
	"github.com/noah-isme/sma-grade-engine/internal/repository"
	"github.com/noah-isme/sma-grade-engine/internal/service"
	"github.com/noah-isme/sma-grade-engine/pkg/cache"
	"github.com/noah-isme/sma-grade-engine/pkg/config"
	"github.com/noah-isme/sma-grade-engine/pkg/database"
	"github.com/noah-isme/sma-grade-engine/pkg/lock"
	"github.com/noah-isme/sma-grade-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-grade-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-grade-engine/pkg/middleware/requestid"
)

// @title SMA Grade Engine API
// @version 1.0.0
// @description Grade resolution, grading policy lifecycle and class ranking
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	assessmentRepo := repository.NewAssessmentRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	policyRepo := repository.NewGradingPolicyRepository(db)
	rankRepo := repository.NewRankRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "grade-engine:", logr)

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Ranking.DistributedLock && redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, "grade-engine:lock:", cfg.Ranking.LockTTL, logr)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Ranking.CacheTTL, logr, cfg.Ranking.CacheEnabled && redisClient != nil)
	policySvc := service.NewPolicyService(policyRepo, validate, logr)
	rankSvc := service.NewRankService(assessmentRepo, rosterRepo, policyRepo, rankRepo, locker, cacheSvc, metricsSvc,
		service.RankServiceConfig{ResolveConcurrency: cfg.Ranking.ResolveConcurrency, CacheTTL: cfg.Ranking.CacheTTL}, logr)
	switcher := service.NewPolicyAutoSwitcher(policyRepo, locker, cfg.Grading.AutoSwitchEnabled, metricsSvc, logr)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, policyRepo, rankSvc, switcher, validate, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = redisCheck(redisClient)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix, middleware.JWT(tokenSvc)),
		handler.NewPolicyHandler(policySvc),
		handler.NewAssessmentHandler(assessmentSvc),
		handler.NewRankHandler(rankSvc),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func registerRoutes(api *gin.RouterGroup, policies *handler.PolicyHandler, assessments *handler.AssessmentHandler, ranks *handler.RankHandler) {
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	policyGroup := api.Group("/grading-policies")
	policyGroup.GET("", staff, policies.List)
	policyGroup.GET("/active", policies.Active)
	policyGroup.GET("/:id", staff, policies.Get)
	policyGroup.POST("", admins, policies.Create)
	policyGroup.PUT("/:id", admins, policies.Update)
	policyGroup.POST("/:id/activate", admins, policies.Activate)
	policyGroup.POST("/:id/archive", admins, policies.Archive)

	api.POST("/assessments/submit", staff, assessments.Submit)
	api.POST("/assessments/preview", staff, assessments.Preview)
	api.GET("/students/:studentId/results", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleTeacher), middleware.SelfRole), assessments.StudentResults)

	rankGroup := api.Group("/classes/:classId/terms/:termId/ranks")
	rankGroup.GET("", staff, ranks.List)
	rankGroup.POST("/recompute", staff, ranks.Recompute)
	rankGroup.GET("/export", staff, ranks.Export)
}

func redisCheck(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
