package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/handler"
	internalmiddleware "github.com/noah-isme/serenia-tutor-api/internal/middleware"
	"github.com/noah-isme/serenia-tutor-api/internal/service"
	"github.com/noah-isme/serenia-tutor-api/pkg/config"
	"github.com/noah-isme/serenia-tutor-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/serenia-tutor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/serenia-tutor-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *service.MetricsService
	snapshots *service.SnapshotCache
	auth      *service.AuthService
	tutors    *service.TutorService
	dashboard *service.DashboardService
	reports   *service.ReportService
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(d.metrics))

	metricsHandler := handler.NewMetricsHandler(d.metrics, d.snapshots)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())

	authHandler := handler.NewAuthHandler(d.auth)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(d.auth))

	tutorHandler := handler.NewTutorHandler(d.tutors)
	secured.GET("/tutors/me", tutorHandler.Overview)

	groupHandler := handler.NewGroupHandler(d.tutors, d.dashboard, d.logger)
	dashboardHandler := handler.NewDashboardHandler(d.tutors, d.dashboard)
	groups := secured.Group("/groups")
	groups.GET("", groupHandler.List)
	groups.POST("", groupHandler.Add)
	groups.PUT("/:name", groupHandler.Rename)
	groups.DELETE("/:name", groupHandler.Remove)
	groups.GET("/:name/students", groupHandler.Students)
	groups.GET("/:name/metrics", dashboardHandler.GroupMetrics)

	studentHandler := handler.NewStudentHandler(d.tutors, d.dashboard)
	secured.GET("/students/:id/history", studentHandler.History)
	secured.GET("/students/:id/recommendations", studentHandler.Recommendations)

	cacheHandler := handler.NewCacheHandler(d.snapshots, d.dashboard, d.logger)
	secured.POST("/cache/reload", cacheHandler.Reload)
	secured.GET("/cache/status", cacheHandler.Status)

	secured.GET("/metrics/system", metricsHandler.System)

	if d.reports != nil {
		reportHandler := handler.NewReportHandler(d.reports)
		secured.POST("/reports/groups", reportHandler.Generate)
		secured.GET("/reports", reportHandler.List)
		secured.GET("/reports/:id", reportHandler.Status)
		api.GET("/export/:token", reportHandler.Download)
	}

	return r
}
